// Package units parses the value suffixes shared by the dmon tools:
// time periods ("30", "5m", "2h", "1d", "1w") and byte sizes
// ("4096", "150k", "2m", "1g").
package units

import (
	"fmt"
	"strconv"
)

// ParsePeriod converts a period string into seconds. A bare integer is
// taken as seconds; a single trailing suffix scales it: 'm' minutes,
// 'h' hours, 'd' days, 'w' weeks.
func ParsePeriod(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty period value")
	}

	mult := uint64(1)
	num := s
	switch s[len(s)-1] {
	case 'm':
		mult = 60
		num = s[:len(s)-1]
	case 'h':
		mult = 60 * 60
		num = s[:len(s)-1]
	case 'd':
		mult = 60 * 60 * 24
		num = s[:len(s)-1]
	case 'w':
		mult = 60 * 60 * 24 * 7
		num = s[:len(s)-1]
	}

	v, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid period %q", s)
	}
	return v * mult, nil
}

// ParseBytes converts a byte-size string into bytes. A bare integer is
// taken as bytes; a single trailing suffix scales it in 1024 steps:
// 'k', 'm', 'g'.
func ParseBytes(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty size value")
	}

	mult := uint64(1)
	num := s
	switch s[len(s)-1] {
	case 'k':
		mult = 1 << 10
		num = s[:len(s)-1]
	case 'm':
		mult = 1 << 20
		num = s[:len(s)-1]
	case 'g':
		mult = 1 << 30
		num = s[:len(s)-1]
	}

	v, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return v * mult, nil
}
