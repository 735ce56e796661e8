//go:build linux

// dlog reads lines from a file descriptor, optionally tags them with a
// timestamp and a prefix, and appends them to standard output or to a
// log file.
//
// Usage: dlog [options] [logfile-path]
package main

import (
	"errors"
	"os"

	"github.com/mcuadros/go-defaults"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/aperezdc/dmon/internal/conf"
	"github.com/aperezdc/dmon/internal/linelog"
	"github.com/aperezdc/dmon/internal/logging"
)

func main() {
	log := logging.New("dlog")
	defer log.Sync()

	var opts linelog.Options
	defaults.SetDefaults(&opts)

	fs := pflag.NewFlagSet("dlog", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.StringVarP(&opts.Prefix, "prefix", "p", opts.Prefix,
		"Insert the given prefix string between timestamps and logged text.")
	fs.IntVarP(&opts.InputFD, "input-fd", "i", opts.InputFD,
		"File descriptor to read input from (default: stdin).")
	fs.BoolVarP(&opts.Buffered, "buffered", "b", opts.Buffered,
		"Buffered operation, do not use flush to disk after each line.")
	fs.BoolVarP(&opts.Timestamp, "timestamp", "t", opts.Timestamp,
		"Prepend a timestamp in YYYY-MM-DD/HH:MM:SS format to each line.")
	fs.BoolVarP(&opts.SkipEmpty, "skip-empty", "e", opts.SkipEmpty,
		"Ignore empty lines with no characters.")

	args := os.Args[1:]
	if env := os.Getenv("DLOG_OPTIONS"); env != "" {
		tokens, err := conf.SplitTokens(env)
		if err != nil {
			log.Fatal("DLOG_OPTIONS", zap.Error(err))
		}
		args = append(tokens, args...)
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal("invalid options", zap.Error(err))
	}

	var path string
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	if err := linelog.Run(log, opts, path); err != nil {
		log.Fatal("dlog", zap.Error(err))
	}
}
