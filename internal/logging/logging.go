//go:build linux

// Package logging builds the diagnostic logger used by every dmon tool.
//
// The logger is controlled through the environment, compatible with the
// historical behaviour of the tools:
//
//	LOG_DEBUG           enable debug-level messages
//	LOG_COLOR_MESSAGES  force colored level names on or off
//	LOG_FATAL_ERRORS    abort the process after an error message (default on)
//	LOG_FATAL_WARNINGS  abort the process after a warning message
//
// A variable set to the empty string or "0" counts as disabled.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sys/unix"
)

// New returns a logger named after the tool, configured from the LOG_*
// environment variables. It never fails; a broken configuration falls
// back to zap's development defaults.
func New(name string) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.TimeKey = ""
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true

	if useColors() {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	if envEnabled("LOG_DEBUG", false) {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	log := zap.Must(cfg.Build(zap.Hooks(fatalHook())))
	return log.Named(name)
}

// fatalHook enforces LOG_FATAL_ERRORS / LOG_FATAL_WARNINGS: once the
// offending entry has been written, the process is aborted.
func fatalHook() func(zapcore.Entry) error {
	fatalErrors := envEnabled("LOG_FATAL_ERRORS", true)
	fatalWarnings := envEnabled("LOG_FATAL_WARNINGS", false)

	return func(e zapcore.Entry) error {
		if (e.Level == zapcore.ErrorLevel && fatalErrors) ||
			(e.Level == zapcore.WarnLevel && fatalWarnings) {
			os.Exit(1)
		}
		return nil
	}
}

func useColors() bool {
	if v, ok := os.LookupEnv("LOG_COLOR_MESSAGES"); ok {
		return v != "" && v != "0"
	}
	return isTerminal(os.Stderr.Fd())
}

func isTerminal(fd uintptr) bool {
	_, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
	return err == nil
}

func envEnabled(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	return v != "" && v != "0"
}
