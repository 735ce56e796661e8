// Package rotlog implements the drlog core: an append-only log
// directory with size- and time-based rotation.
//
// Lines are written to DIR/current. The sidecar file DIR/.timestamp
// stores the epoch at which the current file was started; its base
// epoch is that value rounded down to a multiple of the time limit,
// computed when the file is opened. When current grows past the size limit
// or its base epoch ages past the time limit, it is renamed to
// log-YYYY-MM-DD-HH:MM:SS and the oldest rotated files are unlinked so
// that at most the configured number remains.
package rotlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	currentName   = "current"
	timestampName = ".timestamp"
	filePrefix    = "log-"
	rotatedFormat = "2006-01-02-15:04:05"
	filePerms     = 0o640

	timestampFormat = "2006-01-02/15:04:05 "

	// writeRetryDelay paces retries when the log device is full or
	// otherwise failing; lines are never dropped.
	writeRetryDelay = 5 * time.Second
)

// Options control rotation and line tagging.
type Options struct {
	MaxFiles  uint   `default:"10"`
	MaxTime   uint64 `default:"432000"` // five days, in seconds
	MaxSize   uint64 `default:"153600"` // 150 kB
	InputFD   int    `default:"0"`
	Buffered  bool
	Timestamp bool
	SkipEmpty bool
}

// Writer maintains the log directory.
type Writer struct {
	log  *zap.Logger
	dir  string
	opts Options

	out     *os.File
	curtime uint64 // base epoch of the current file
	cursize uint64
}

// NewWriter returns a rotating writer for the given directory, which
// must already exist.
func NewWriter(log *zap.Logger, opts Options, dir string) *Writer {
	return &Writer{log: log, dir: dir, opts: opts}
}

// WriteLine appends one line, rotating beforehand when a limit was
// reached.
func (w *Writer) WriteLine(line string, now time.Time) error {
	if w.out == nil {
		if err := w.open(now); err != nil {
			return err
		}
	}

	if err := w.maybeRotate(now); err != nil {
		return err
	}

	if w.opts.SkipEmpty && line == "" {
		return nil
	}

	var sb strings.Builder
	if w.opts.Timestamp {
		sb.WriteString(now.UTC().Format(timestampFormat))
	}
	sb.WriteString(line)
	sb.WriteByte('\n')
	data := sb.String()

	for {
		n, err := w.out.WriteString(data)
		if err == nil {
			w.cursize += uint64(n)
			break
		}
		w.log.Warn("cannot write to logfile", zap.Error(err))
		time.Sleep(writeRetryDelay)
	}

	if !w.opts.Buffered {
		if err := w.out.Sync(); err != nil {
			w.log.Warn("flushing logfile failed", zap.Error(err))
		}
	}
	return nil
}

// open opens DIR/current and establishes its base epoch from the
// sidecar, creating the sidecar when missing or unreadable.
func (w *Writer) open(now time.Time) error {
	st, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("output directory does not exist: %s", w.dir)
	}
	if !st.IsDir() {
		return fmt.Errorf("output path is not a directory: %s", w.dir)
	}

	out, err := os.OpenFile(filepath.Join(w.dir, currentName),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerms)
	if err != nil {
		return fmt.Errorf("cannot open %q: %w", filepath.Join(w.dir, currentName), err)
	}
	w.out = out

	ts, err := w.readSidecar()
	if err != nil {
		ts = uint64(now.Unix())
		if err := w.writeSidecar(ts); err != nil {
			w.out.Close()
			w.out = nil
			return err
		}
	}

	w.curtime = ts
	if w.opts.MaxTime > 0 {
		w.curtime -= w.curtime % w.opts.MaxTime
	}

	if st, err := w.out.Stat(); err == nil {
		w.cursize = uint64(st.Size())
	} else {
		w.cursize = 0
	}
	return nil
}

func (w *Writer) readSidecar() (uint64, error) {
	data, err := os.ReadFile(filepath.Join(w.dir, timestampName))
	if err != nil {
		return 0, err
	}
	ts, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, err
	}
	return ts, nil
}

func (w *Writer) writeSidecar(ts uint64) error {
	path := filepath.Join(w.dir, timestampName)
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", ts)), filePerms); err != nil {
		return fmt.Errorf("unable to write timestamp to %q: %w", w.dir, err)
	}
	return nil
}

// maybeRotate renames current away and reopens a fresh one when a
// limit was exceeded. Rotation is only active when both limits are
// set.
func (w *Writer) maybeRotate(now time.Time) error {
	if w.opts.MaxSize == 0 || w.opts.MaxTime == 0 {
		return nil
	}
	if w.cursize < w.opts.MaxSize && uint64(now.Unix()) <= w.curtime+w.opts.MaxTime {
		return nil
	}

	if err := w.prune(); err != nil {
		w.log.Warn("cannot prune old logs", zap.Error(err))
	}

	w.out.Close()
	w.out = nil

	oldPath := filepath.Join(w.dir, currentName)
	newPath := filepath.Join(w.dir, filePrefix+now.UTC().Format(rotatedFormat))
	if err := os.Rename(oldPath, newPath); err != nil {
		if rmErr := os.Remove(oldPath); rmErr != nil {
			return fmt.Errorf("unable to rename %q to %q: %w", oldPath, newPath, err)
		}
	}

	os.Remove(filepath.Join(w.dir, timestampName))

	return w.open(now)
}

// prune unlinks the oldest rotated files until fewer than MaxFiles
// remain, leaving room for the rename that follows.
func (w *Writer) prune() error {
	names, err := rotatedNames(w.dir)
	if err != nil {
		return err
	}
	for uint(len(names)) >= w.opts.MaxFiles && len(names) > 0 {
		oldest := names[0]
		if err := os.Remove(filepath.Join(w.dir, oldest)); err != nil {
			return err
		}
		names = names[1:]
	}
	return nil
}

// rotatedNames lists the valid rotated log files, oldest first. The
// rotated name format sorts lexicographically by age.
func rotatedNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to open directory %q for rotation: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, filePrefix) {
			continue
		}
		if _, err := time.Parse(rotatedFormat, strings.TrimPrefix(name, filePrefix)); err != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close flushes and closes the current file; the next line reopens it.
func (w *Writer) Close() {
	if w.out == nil {
		return
	}
	if err := w.out.Sync(); err != nil {
		w.log.Warn("error flushing logfile", zap.Error(err))
	}
	if err := w.out.Close(); err != nil {
		w.log.Warn("unable to close logfile", zap.String("dir", w.dir), zap.Error(err))
	}
	w.out = nil
}
