//go:build linux

// Package daemon detaches the supervisor from its controlling
// terminal and manages the pidfile.
//
// Go processes cannot fork() and continue running the runtime, so
// detaching re-executes the binary: the foreground parent spawns
// itself with standard streams on /dev/null, a new session, and a
// marker variable in the environment, then exits. The child recognises
// the marker and carries on as the daemonised supervisor.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"go.uber.org/zap"
)

const markerVar = "_DMON_DAEMONIZED"

// Daemonized reports whether this process is the re-executed daemon
// child. The marker is removed from the environment so it does not
// leak into supervised children.
func Daemonized() bool {
	_, ok := os.LookupEnv(markerVar)
	if ok {
		os.Unsetenv(markerVar)
	}
	return ok
}

// Detach re-executes the binary as a session leader with its standard
// streams redirected to /dev/null and exits the calling process. It
// only returns on error.
func Detach(log *zap.Logger) error {
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("cannot daemonize, unable to open %s: %w", os.DevNull, err)
	}
	defer devnull.Close()

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cannot daemonize: %w", err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Stdin = devnull
	cmd.Stdout = devnull
	cmd.Stderr = devnull
	cmd.Env = append(os.Environ(), markerVar+"=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("cannot daemonize: %w", err)
	}

	log.Debug("daemon child started", zap.Int("pid", cmd.Process.Pid))
	os.Exit(0)
	return nil
}

// WritePidfile truncates the file at path and writes the current pid
// followed by a newline. The open is expected to have been validated
// beforehand; a failed write is reported for the caller to warn about.
func WritePidfile(path string) error {
	f, err := os.OpenFile(path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o666)
	if err != nil {
		return fmt.Errorf("cannot open %q for writing: %w", path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return fmt.Errorf("writing to PID file: %w", err)
	}
	return nil
}

// CheckPidfile verifies that the pidfile can be created, without
// writing the pid yet.
func CheckPidfile(path string) error {
	f, err := os.OpenFile(path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o666)
	if err != nil {
		return fmt.Errorf("cannot open %q for writing: %w", path, err)
	}
	return f.Close()
}
