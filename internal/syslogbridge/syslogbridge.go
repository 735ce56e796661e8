//go:build linux

// Package syslogbridge implements the dslog core: it forwards input
// lines to syslog under a configurable facility and priority.
package syslogbridge

import (
	"fmt"
	"log/syslog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/aperezdc/dmon/internal/lineio"
)

// ErrInput marks a failure reading the input stream; the tool exits
// with code 111 for those.
var ErrInput = fmt.Errorf("error reading input")

// Options control the forwarding.
type Options struct {
	Facility  string `default:"daemon"`
	Priority  string `default:"warning"`
	InputFD   int    `default:"0"`
	Console   bool
	SkipEmpty bool
}

// The facility and priority name tables are closed: unknown names are
// configuration errors.

var facilities = map[string]syslog.Priority{
	"auth":    syslog.LOG_AUTH,
	"cron":    syslog.LOG_CRON,
	"daemon":  syslog.LOG_DAEMON,
	"ftp":     syslog.LOG_FTP,
	"kern":    syslog.LOG_KERN,
	"kernel":  syslog.LOG_KERN,
	"local0":  syslog.LOG_LOCAL0,
	"local1":  syslog.LOG_LOCAL1,
	"local2":  syslog.LOG_LOCAL2,
	"local3":  syslog.LOG_LOCAL3,
	"local4":  syslog.LOG_LOCAL4,
	"local5":  syslog.LOG_LOCAL5,
	"local6":  syslog.LOG_LOCAL6,
	"local7":  syslog.LOG_LOCAL7,
	"lpr":     syslog.LOG_LPR,
	"print":   syslog.LOG_LPR,
	"printer": syslog.LOG_LPR,
	"mail":    syslog.LOG_MAIL,
	"news":    syslog.LOG_NEWS,
	"user":    syslog.LOG_USER,
	"uucp":    syslog.LOG_UUCP,
}

var priorities = map[string]syslog.Priority{
	"emerg":     syslog.LOG_EMERG,
	"emergency": syslog.LOG_EMERG,
	"alert":     syslog.LOG_ALERT,
	"crit":      syslog.LOG_CRIT,
	"critical":  syslog.LOG_CRIT,
	"err":       syslog.LOG_ERR,
	"error":     syslog.LOG_ERR,
	"warn":      syslog.LOG_WARNING,
	"warning":   syslog.LOG_WARNING,
	"notice":    syslog.LOG_NOTICE,
	"info":      syslog.LOG_INFO,
	"debug":     syslog.LOG_DEBUG,
}

// Facility resolves a facility name, case-insensitively.
func Facility(name string) (syslog.Priority, error) {
	if f, ok := facilities[strings.ToLower(name)]; ok {
		return f, nil
	}
	return 0, fmt.Errorf("unknown facility %q", name)
}

// Priority resolves a priority name, case-insensitively.
func Priority(name string) (syslog.Priority, error) {
	if p, ok := priorities[strings.ToLower(name)]; ok {
		return p, nil
	}
	return 0, fmt.Errorf("unknown priority %q", name)
}

// Run forwards input lines to syslog under the given tag until end of
// input. With Console enabled, lines that could not be sent are
// written to standard error instead of being dropped silently.
func Run(log *zap.Logger, opts Options, tag string) error {
	facility, err := Facility(opts.Facility)
	if err != nil {
		return err
	}
	priority, err := Priority(opts.Priority)
	if err != nil {
		return err
	}

	w, err := syslog.New(facility|priority, tag)
	if err != nil {
		return fmt.Errorf("cannot open syslog: %w", err)
	}
	defer w.Close()

	in := os.NewFile(uintptr(opts.InputFD), "input")
	lines, errc := lineio.Lines(in)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	for {
		select {
		case <-sigs:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if opts.SkipEmpty && line == "" {
				continue
			}
			if _, err := fmt.Fprint(w, line); err != nil {
				log.Warn("cannot send to syslog", zap.Error(err))
				if opts.Console {
					fmt.Fprintln(os.Stderr, line)
				}
			}
		case err := <-errc:
			return fmt.Errorf("%w: %v", ErrInput, err)
		}
	}
}
