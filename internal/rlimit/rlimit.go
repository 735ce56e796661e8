//go:build linux

// Package rlimit maps the symbolic resource-limit names accepted by the
// --limit flag onto the kernel resources and applies them.
//
// Limits are applied to the supervisor process itself and inherited by
// every child it spawns.
package rlimit

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/aperezdc/dmon/internal/units"
)

// ErrHelp is returned by Parse for the special argument "help"; the
// caller is expected to print Help() and exit cleanly.
var ErrHelp = fmt.Errorf("limit help requested")

type spec struct {
	name     string
	resource int
	parse    func(string) (int64, error)
	desc     string
}

var specs = []spec{
	{"vmem", unix.RLIMIT_AS, parseBytes, "Maximum size of process' virtual memory (bytes)"},
	{"core", unix.RLIMIT_CORE, parseBytes, "Maximum size of core file (bytes)"},
	{"cpu", unix.RLIMIT_CPU, parseTime, "Maximum CPU time used (seconds)"},
	{"data", unix.RLIMIT_DATA, parseBytes, "Maximum size of data segment (bytes)"},
	{"fsize", unix.RLIMIT_FSIZE, parseBytes, "Maximum size of created files (bytes)"},
	{"locks", unix.RLIMIT_LOCKS, parseNumber, "Maximum number of locked files"},
	{"mlock", unix.RLIMIT_MEMLOCK, parseBytes, "Maximum number of bytes locked in RAM (bytes)"},
	{"msgq", unix.RLIMIT_MSGQUEUE, parseNumber, "Maximum number of bytes used in message queues (bytes)"},
	{"nice", unix.RLIMIT_NICE, parseNumber, "Ceiling for the process nice value"},
	{"files", unix.RLIMIT_NOFILE, parseNumber, "Maximum number of open files"},
	{"nproc", unix.RLIMIT_NPROC, parseNumber, "Maximum number of processes"},
	{"rss", unix.RLIMIT_RSS, parseNumber, "Maximum number of pages resident in RAM"},
	{"rtprio", unix.RLIMIT_RTPRIO, parseNumber, "Ceiling for the real-time priority"},
	{"rttime", unix.RLIMIT_RTTIME, parseTime, "Maximum real-time CPU time used (seconds)"},
	{"sigpending", unix.RLIMIT_SIGPENDING, parseNumber, "Maximum number of queued signals"},
	{"stack", unix.RLIMIT_STACK, parseBytes, "Maximum stack segment size (bytes)"},
}

func parseBytes(s string) (int64, error) {
	v, err := units.ParseBytes(s)
	return int64(v), err
}

func parseTime(s string) (int64, error) {
	v, err := units.ParsePeriod(s)
	return int64(v), err
}

func parseNumber(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// Parse interprets a "name=value" limit argument. A negative value
// means "use the hard maximum". The argument "help" yields ErrHelp.
func Parse(arg string) (resource int, value int64, err error) {
	if arg == "help" {
		return 0, 0, ErrHelp
	}

	name, val, found := strings.Cut(arg, "=")
	if !found {
		return 0, 0, fmt.Errorf("invalid limit %q, expected name=value", arg)
	}

	for _, s := range specs {
		if s.name != name {
			continue
		}
		if n, err := strconv.ParseInt(val, 10, 64); err == nil && n < 0 {
			return s.resource, n, nil
		}
		v, err := s.parse(val)
		if err != nil {
			return 0, 0, fmt.Errorf("limit %s: %w", name, err)
		}
		return s.resource, v, nil
	}
	return 0, 0, fmt.Errorf("unknown limit name %q", name)
}

// Apply sets the soft limit for the resource, clamping to the current
// hard maximum. Negative values select the hard maximum.
func Apply(resource int, value int64) error {
	var r unix.Rlimit
	if err := unix.Getrlimit(resource, &r); err != nil {
		return fmt.Errorf("getrlimit(%s): %w", Name(resource), err)
	}

	r.Cur = clamp(value, r.Max)

	if err := unix.Setrlimit(resource, &r); err != nil {
		return fmt.Errorf("setrlimit(%s=%d): %w", Name(resource), value, err)
	}
	return nil
}

func clamp(value int64, hard uint64) uint64 {
	if value < 0 || uint64(value) > hard {
		return hard
	}
	return uint64(value)
}

// Name returns the symbolic name for a resource, for diagnostics.
func Name(resource int) string {
	for _, s := range specs {
		if s.resource == resource {
			return s.name
		}
	}
	return "<unknown>"
}

// Help lists every known limit name with its description.
func Help() string {
	var sb strings.Builder
	for _, s := range specs {
		fmt.Fprintf(&sb, "%s -- %s\n", s.name, s.desc)
	}
	return sb.String()
}
