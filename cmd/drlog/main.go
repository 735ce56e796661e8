//go:build linux

// drlog writes input lines to DIR/current, rotating by size and age
// and keeping a bounded number of rotated files.
//
// Usage: drlog [options] logdir-path
package main

import (
	"errors"
	"os"
	"strconv"

	"github.com/mcuadros/go-defaults"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/aperezdc/dmon/internal/conf"
	"github.com/aperezdc/dmon/internal/logging"
	"github.com/aperezdc/dmon/internal/rotlog"
	"github.com/aperezdc/dmon/internal/units"
)

func main() {
	log := logging.New("drlog")
	defer log.Sync()

	var opts rotlog.Options
	defaults.SetDefaults(&opts)

	fs := pflag.NewFlagSet("drlog", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.UintVarP(&opts.MaxFiles, "max-files", "m", opts.MaxFiles,
		"Maximum number of log files to keep.")
	fs.VarP(&periodFlag{&opts.MaxTime}, "max-time", "T",
		"Maximum time to use a log file (suffixes: mhdw).")
	fs.VarP(&bytesFlag{&opts.MaxSize}, "max-size", "s",
		"Maximum size of each log file (suffixes: kmg).")
	fs.IntVarP(&opts.InputFD, "input-fd", "i", opts.InputFD,
		"File descriptor to read input from (default: stdin).")
	fs.BoolVarP(&opts.Buffered, "buffered", "b", opts.Buffered,
		"Buffered operation, do not flush to disk after each line.")
	fs.BoolVarP(&opts.Timestamp, "timestamp", "t", opts.Timestamp,
		"Prepend a timestamp in YYYY-MM-DD/HH:MM:SS format to each line.")
	fs.BoolVarP(&opts.SkipEmpty, "skip-empty", "e", opts.SkipEmpty,
		"Ignore empty lines with no characters.")

	args := os.Args[1:]
	if env := os.Getenv("DRLOG_OPTIONS"); env != "" {
		tokens, err := conf.SplitTokens(env)
		if err != nil {
			log.Fatal("DRLOG_OPTIONS", zap.Error(err))
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
		log.Fatal("no log directory path was specified")
	}

	if err := rotlog.Run(log, opts, fs.Arg(0)); err != nil {
		log.Fatal("drlog", zap.Error(err))
	}
}

type periodFlag struct{ dst *uint64 }

func (f *periodFlag) Set(s string) error {
	v, err := units.ParsePeriod(s)
	if err != nil {
		return err
	}
	*f.dst = v
	return nil
}

func (f *periodFlag) String() string { return strconv.FormatUint(*f.dst, 10) }
func (f *periodFlag) Type() string   { return "period" }

type bytesFlag struct{ dst *uint64 }

func (f *bytesFlag) Set(s string) error {
	v, err := units.ParseBytes(s)
	if err != nil {
		return err
	}
	*f.dst = v
	return nil
}

func (f *bytesFlag) String() string { return strconv.FormatUint(*f.dst, 10) }
func (f *bytesFlag) Type() string   { return "bytes" }
