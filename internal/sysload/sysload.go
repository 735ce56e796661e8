//go:build linux

// Package sysload reads the system load average used to drive the
// pause/resume policy.
package sysload

import "golang.org/x/sys/unix"

// loadShift is the kernel's SI_LOAD_SHIFT: sysinfo load averages are
// fixed-point values scaled by 1<<16.
const loadShift = 16

// Load1 returns the 1-minute load average.
func Load1() (float64, error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return 0, err
	}
	return fromFixed(uint64(si.Loads[0])), nil
}

func fromFixed(v uint64) float64 {
	return float64(v) / float64(uint64(1)<<loadShift)
}
