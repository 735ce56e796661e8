//go:build linux

// dslog forwards input lines to syslog under a configurable facility
// and priority.
//
// Usage: dslog [options] name
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mcuadros/go-defaults"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/aperezdc/dmon/internal/conf"
	"github.com/aperezdc/dmon/internal/logging"
	"github.com/aperezdc/dmon/internal/syslogbridge"
)

func main() {
	log := logging.New("dslog")
	defer log.Sync()

	var opts syslogbridge.Options
	defaults.SetDefaults(&opts)

	fs := pflag.NewFlagSet("dslog", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.StringVarP(&opts.Facility, "facility", "f", opts.Facility,
		"Log facility (default: daemon).")
	fs.StringVarP(&opts.Priority, "priority", "p", opts.Priority,
		"Log priority (default: warning).")
	fs.IntVarP(&opts.InputFD, "input-fd", "i", opts.InputFD,
		"File descriptor to read input from (default: stdin).")
	fs.BoolVarP(&opts.Console, "console", "c", opts.Console,
		"Log to console if sending messages to logger fails.")
	fs.BoolVarP(&opts.SkipEmpty, "skip-empty", "e", opts.SkipEmpty,
		"Ignore empty lines with no characters.")

	args := os.Args[1:]
	if env := os.Getenv("DSLOG_OPTIONS"); env != "" {
		tokens, err := conf.SplitTokens(env)
		if err != nil {
			log.Fatal("DSLOG_OPTIONS", zap.Error(err))
		}
		args = append(tokens, args...)
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal("invalid options", zap.Error(err))
	}

	if fs.NArg() == 0 {
		log.Fatal("process name not specified")
	}

	if err := syslogbridge.Run(log, opts, fs.Arg(0)); err != nil {
		if errors.Is(err, syslogbridge.ErrInput) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(111)
		}
		log.Fatal("dslog", zap.Error(err))
	}
}
