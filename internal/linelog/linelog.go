// Package linelog implements the dlog core: it reads input line by
// line, optionally tags each line with a timestamp and a prefix, and
// writes the result to standard output or to an append-only log file.
package linelog

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aperezdc/dmon/internal/lineio"
)

const timestampFormat = "2006-01-02/15:04:05"

// Options control how lines are tagged and flushed.
type Options struct {
	Prefix    string
	InputFD   int `default:"0"`
	Buffered  bool
	Timestamp bool
	SkipEmpty bool
}

// Writer tags lines and appends them to the destination. The log file
// is opened lazily, on the first line that needs it, and reopened the
// same way after a hangup.
type Writer struct {
	log  *zap.Logger
	opts Options
	path string // empty means standard output
	out  *os.File
}

// NewWriter returns a line writer for the given destination path; an
// empty path selects standard output.
func NewWriter(log *zap.Logger, opts Options, path string) *Writer {
	return &Writer{log: log, opts: opts, path: path}
}

func (w *Writer) format(line string, now time.Time) string {
	var sb strings.Builder
	if w.opts.Timestamp {
		sb.WriteString(now.UTC().Format(timestampFormat))
		sb.WriteByte(' ')
	}
	if w.opts.Prefix != "" {
		sb.WriteString(w.opts.Prefix)
		sb.WriteByte(' ')
	}
	sb.WriteString(line)
	sb.WriteByte('\n')
	return sb.String()
}

// WriteLine tags one line and appends it to the destination.
func (w *Writer) WriteLine(line string, now time.Time) error {
	if w.opts.SkipEmpty && line == "" {
		return nil
	}

	if w.out == nil {
		if w.path == "" {
			w.out = os.Stdout
		} else {
			f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o666)
			if err != nil {
				return fmt.Errorf("cannot open %q: %w", w.path, err)
			}
			w.out = f
		}
	}

	if _, err := io.WriteString(w.out, w.format(line, now)); err != nil {
		w.log.Warn("writing to log failed", zap.Error(err))
	}

	if !w.opts.Buffered && w.out != os.Stdout && w.out != os.Stderr {
		if err := w.out.Sync(); err != nil {
			w.log.Warn("flushing log failed", zap.Error(err))
		}
	}
	return nil
}

// Close syncs and closes the log file; subsequent lines reopen it.
func (w *Writer) Close() {
	if w.out == nil {
		return
	}
	if err := w.out.Sync(); err != nil {
		w.log.Warn("error flushing log", zap.Error(err))
	}
	if w.out != os.Stdout && w.out != os.Stderr {
		if err := w.out.Close(); err != nil {
			w.log.Warn("error closing log", zap.Error(err))
		}
		w.out = nil
	}
}

// Run copies tagged lines from the input descriptor until end of
// input. SIGHUP closes the log file so it can be rotated externally;
// SIGINT and SIGTERM flush and stop.
func Run(log *zap.Logger, opts Options, path string) error {
	w := NewWriter(log, opts, path)
	defer w.Close()

	in := os.NewFile(uintptr(opts.InputFD), "input")
	lines, errc := lineio.Lines(in)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	for {
		select {
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				w.Close()
				continue
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := w.WriteLine(line, time.Now()); err != nil {
				return err
			}
		case err := <-errc:
			return fmt.Errorf("error reading input: %w", err)
		}
	}
}
