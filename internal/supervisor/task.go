//go:build linux

package supervisor

import (
	"os"
	"syscall"
	"time"

	"github.com/aperezdc/dmon/internal/ident"
)

// NoPid marks a task without a live child process.
const NoPid = -1

// noSignal marks an empty pending-signal slot.
const noSignal = syscall.Signal(-1)

// action is the operation queued on a task, realised at the next
// dispatch.
type action int

const (
	actionNone action = iota
	actionStart
	actionStop
	actionSignal
)

// Task is the per-child record: one for the supervised command and,
// when a log command was given, one for the log process.
type Task struct {
	name string
	argv []string

	pid     int
	action  action
	signal  syscall.Signal
	started time.Time

	// Pipe endpoints wired into the child: the command's stdout and
	// the log process' stdin. A nil endpoint means the child inherits
	// the supervisor's stream.
	stdout *os.File
	stdin  *os.File

	stderrToStdout bool
	user           *ident.Credentials
}

func newTask(name string, argv []string) *Task {
	return &Task{
		name:   name,
		argv:   argv,
		pid:    NoPid,
		action: actionStart,
		signal: noSignal,
	}
}

func (t *Task) queue(a action) { t.action = a }

func (t *Task) queueSignal(sig syscall.Signal) { t.signal = sig }
