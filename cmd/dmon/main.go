//go:build linux

// dmon supervises a command process and an optional log process
// connected to it through a pipe, keeping both running under the
// configured respawn, timeout, interval and load policies.
//
// Usage: dmon [options] cmd [cmd-options] [ -- log-cmd [log-cmd-options] ]
package main

import (
	"errors"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/aperezdc/dmon/internal/conf"
	"github.com/aperezdc/dmon/internal/daemon"
	"github.com/aperezdc/dmon/internal/logging"
	"github.com/aperezdc/dmon/internal/status"
	"github.com/aperezdc/dmon/internal/supervisor"
	"github.com/aperezdc/dmon/internal/sysload"
)

func main() {
	log := logging.New("dmon").With(zap.String("run_id", uuid.NewString()))
	defer log.Sync()

	opts, err := conf.Parse(log, os.Args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal("invalid configuration", zap.Error(err))
	}

	if ce := log.Check(zap.DebugLevel, "effective configuration"); ce != nil {
		ce.Write(zap.String("dump", spew.Sdump(opts)))
	}

	// True in the re-executed daemon child: it inherits its working
	// directory from the parent that already moved there.
	daemonized := daemon.Daemonized()

	if opts.WorkDir != "" && !daemonized {
		if err := os.Chdir(opts.WorkDir); err != nil {
			log.Fatal("cannot use work directory",
				zap.String("dir", opts.WorkDir), zap.Error(err))
		}
	}

	var st *status.Writer
	if opts.StatusPath != "" {
		if st, err = status.Open(opts.StatusPath, log); err != nil {
			log.Fatal("cannot open status file", zap.Error(err))
		}
	}

	if opts.LoadEnabled() {
		if _, err := sysload.Load1(); err != nil {
			log.Fatal("cannot read load average", zap.Error(err))
		}
	}

	if opts.PidfilePath != "" {
		if err := daemon.CheckPidfile(opts.PidfilePath); err != nil {
			log.Fatal("cannot open PID file", zap.Error(err))
		}
	}

	if !opts.NoDaemon && !daemonized {
		st.Close()
		if err := daemon.Detach(log); err != nil {
			log.Fatal("cannot daemonize", zap.Error(err))
		}
	}

	if opts.PidfilePath != "" {
		if err := daemon.WritePidfile(opts.PidfilePath); err != nil {
			log.Warn("writing PID file", zap.Error(err))
		}
	}

	s, err := supervisor.New(log, st, supervisor.Config{
		CmdArgv:     opts.CmdArgv,
		LogArgv:     opts.LogArgv,
		CmdUser:     opts.CmdUser,
		LogUser:     opts.LogUser,
		StderrRedir: opts.StderrRedir,
		CmdSignals:  opts.CmdSignals,
		LogSignals:  opts.LogSignals,
		SuccessExit: opts.Once,
		NumRespawns: opts.MaxRespawns,
		LoadHigh:    opts.LoadHigh,
		LoadLow:     opts.LoadLow,
		Timeout:     opts.Timeout,
		Interval:    opts.Interval,
	})
	if err != nil {
		log.Fatal("cannot set up supervisor", zap.Error(err))
	}

	os.Exit(s.Run())
}
