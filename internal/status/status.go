// Package status implements the optional line-oriented side-channel
// through which the supervisor reports lifecycle events.
//
// The event grammar is fixed:
//
//	cmd|log start            (the pid follows on its own line)
//	<pid>
//	cmd|log stop <pid>
//	cmd|log signal <pid> <signum>
//	cmd|log exit <pid> <status>
//	cmd timeout <pid>
//	cmd resume <pid>
//	cmd pause <pid>
//
// A nil *Writer discards every event, so callers never need to guard
// for the side-channel being disabled. Write errors are warnings and
// never interrupt supervision.
package status

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Writer appends event lines to the status sink. The sink may be a
// regular file or a FIFO; it is opened append-only and every event is
// written as a complete line.
type Writer struct {
	f   *os.File
	log *zap.Logger
}

// Open creates the status sink at path.
func Open(path string, log *zap.Logger) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return nil, fmt.Errorf("cannot open %q for writing: %w", path, err)
	}
	return &Writer{f: f, log: log}, nil
}

// Close closes the sink. Safe on a nil receiver.
func (w *Writer) Close() {
	if w == nil || w.f == nil {
		return
	}
	if err := w.f.Close(); err != nil {
		w.log.Warn("closing status file", zap.Error(err))
	}
	w.f = nil
}

func (w *Writer) printf(format string, args ...any) {
	if w == nil || w.f == nil {
		return
	}
	if _, err := fmt.Fprintf(w.f, format, args...); err != nil {
		w.log.Warn("writing to status file", zap.Error(err))
	}
}

// Start reports that a task is about to be started. The pid of the new
// child follows in a separate Pid line once the start completed.
func (w *Writer) Start(what string) { w.printf("%s start\n", what) }

// Pid reports the pid produced by the start that was just announced.
func (w *Writer) Pid(pid int) { w.printf("%d\n", pid) }

// Stop reports that a task is being stopped.
func (w *Writer) Stop(what string, pid int) { w.printf("%s stop %d\n", what, pid) }

// Signal reports a signal delivery to a task.
func (w *Writer) Signal(what string, pid, signum int) {
	w.printf("%s signal %d %d\n", what, pid, signum)
}

// Exit reports a reaped child with its raw wait status.
func (w *Writer) Exit(what string, pid, status int) {
	w.printf("%s exit %d %d\n", what, pid, status)
}

// Timeout reports that the command exceeded its allotted run time.
func (w *Writer) Timeout(pid int) { w.printf("cmd timeout %d\n", pid) }

// Pause reports that the command was stopped due to system load.
func (w *Writer) Pause(pid int) { w.printf("cmd pause %d\n", pid) }

// Resume reports that the command was resumed after a load pause.
func (w *Writer) Resume(pid int) { w.printf("cmd resume %d\n", pid) }
