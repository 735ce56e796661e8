//go:build linux

// Package supervisor implements the dmon core: a two-task state
// machine driven by a single event loop.
//
// The loop owns every piece of mutable state. Signals and child exits
// are funnelled into channels and consumed at the loop's wait points
// (the pause at the end of an iteration and the interruptible sleeps),
// so all transitions happen on one goroutine; the per-child waiter
// goroutines only send on the exit channel, which is the SIGCHLD
// analogue of this design.
package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/aperezdc/dmon/internal/ident"
	"github.com/aperezdc/dmon/internal/status"
	"github.com/aperezdc/dmon/internal/sysload"
)

// execFailureStatus is the wait status of a child that could not be
// executed: such children report exit code 111.
const execFailureStatus = unix.WaitStatus(111 << 8)

// Config carries the policy knobs for one supervisor run.
type Config struct {
	CmdArgv []string
	LogArgv []string

	CmdUser *ident.Credentials
	LogUser *ident.Credentials

	StderrRedir bool
	CmdSignals  bool
	LogSignals  bool

	// SuccessExit ends supervision when the command exits cleanly.
	SuccessExit bool

	// NumRespawns limits restarts of the command; negative means
	// unlimited.
	NumRespawns int

	LoadHigh float64
	LoadLow  float64

	// Timeout and Interval are in seconds; zero disables.
	Timeout  uint64
	Interval uint64
}

type exitEvent struct {
	task   *Task
	pid    int
	status unix.WaitStatus
}

// Supervisor runs the command (and optional log) tasks under the
// configured policies.
type Supervisor struct {
	log    *zap.Logger
	status *status.Writer
	cfg    Config

	cmd     *Task
	logTask *Task // nil when no log command was given

	pipeR *os.File
	pipeW *os.File

	running     bool
	checkChild  bool
	paused      bool
	numRespawns int

	sigs         chan os.Signal
	exits        chan exitEvent
	pendingExits []exitEvent

	timeoutTimer *time.Timer
}

// New builds the supervisor and, when a log command is present, the
// pipe connecting the command's stdout to the log process' stdin.
// Both pipe ends stay open in the supervisor across respawns.
func New(log *zap.Logger, st *status.Writer, cfg Config) (*Supervisor, error) {
	s := &Supervisor{
		log:         log,
		status:      st,
		cfg:         cfg,
		numRespawns: cfg.NumRespawns,
		sigs:        make(chan os.Signal, 16),
		exits:       make(chan exitEvent, 8),
	}

	s.cmd = newTask("cmd", cfg.CmdArgv)
	s.cmd.user = cfg.CmdUser
	s.cmd.stderrToStdout = cfg.StderrRedir

	if len(cfg.LogArgv) > 0 {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("cannot create pipe: %w", err)
		}
		s.pipeR, s.pipeW = r, w

		s.cmd.stdout = w

		s.logTask = newTask("log", cfg.LogArgv)
		s.logTask.user = cfg.LogUser
		s.logTask.stdin = r
	}

	return s, nil
}

func (s *Supervisor) loadEnabled() bool { return s.cfg.LoadHigh > 1e-9 }

// Run drives the supervision loop until it is stopped and returns the
// process exit code: the command's exit code when its last reaped
// status was a normal exit, failure otherwise.
func (s *Supervisor) Run() int {
	signal.Notify(s.sigs,
		unix.SIGTERM, unix.SIGINT, unix.SIGHUP, unix.SIGUSR1,
		unix.SIGUSR2, unix.SIGQUIT, unix.SIGALRM, unix.SIGCONT)
	defer signal.Stop(s.sigs)

	if s.cfg.Timeout > 0 {
		s.timeoutTimer = time.NewTimer(time.Duration(s.cfg.Timeout) * time.Second)
		defer s.timeoutTimer.Stop()
	}

	s.running = true
	retcode := 0

	for s.running {
		s.log.Debug("loop iteration")

		if s.checkChild {
			s.checkChild = false
			retcode = s.reapAndCheck()

			// Wait between successful runs, reacting to signals
			// quickly: the sleep resumes after forwarded signals but
			// ends as soon as supervision is stopped.
			if s.cfg.Interval > 0 && !s.cfg.SuccessExit && retcode == 0 && s.numRespawns != 0 {
				s.sleepInterval(time.Duration(s.cfg.Interval) * time.Second)
			}

			if !s.running {
				s.cmd.queue(actionNone)
				break
			}
		}

		s.dispatch(s.cmd)
		if s.logTask != nil {
			s.dispatch(s.logTask)
		}

		if s.loadEnabled() {
			s.waitEvent(time.Second)
			load, err := sysload.Load1()
			if err != nil {
				s.log.Warn("cannot read load average", zap.Error(err))
			} else {
				s.checkLoad(load)
			}
		} else {
			// Wait for signals to arrive.
			s.waitEvent(0)
		}
	}

	s.log.Debug("exiting gracefully")

	if s.cmd.pid > 0 {
		s.status.Stop("cmd", s.cmd.pid)
		s.sendAction(s.cmd, actionStop)
	}
	if s.logTask != nil && s.logTask.pid > 0 {
		s.status.Stop("log", s.logTask.pid)
		s.sendAction(s.logTask, actionStop)
	}

	s.status.Close()

	ws := unix.WaitStatus(retcode)
	if ws.Exited() {
		return ws.ExitStatus()
	}
	return 1
}

// waitEvent blocks until a signal, child exit or command timeout
// arrives. With a non-zero duration it returns after that long at the
// latest, handling at most one event; with zero it blocks until the
// first event.
func (s *Supervisor) waitEvent(d time.Duration) {
	var timech <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timech = timer.C
	}

	select {
	case sig := <-s.sigs:
		s.handleSignal(sig)
	case ev := <-s.exits:
		s.noteExit(ev)
	case <-s.alarmC():
		s.handleTimeout()
	case <-timech:
	}
}

// sleepInterval waits the full duration, handling events as they
// arrive, and bails out early only when supervision was stopped.
func (s *Supervisor) sleepInterval(d time.Duration) {
	deadline := time.Now().Add(d)
	for s.running {
		remain := time.Until(deadline)
		if remain <= 0 {
			return
		}
		timer := time.NewTimer(remain)
		select {
		case sig := <-s.sigs:
			s.handleSignal(sig)
		case ev := <-s.exits:
			s.noteExit(ev)
		case <-s.alarmC():
			s.handleTimeout()
		case <-timer.C:
			timer.Stop()
			return
		}
		timer.Stop()
	}
}

// sleepDelay is the respawn rate limit: it waits the full duration,
// handling signals as they arrive without shortening the delay. Only a
// stop request ends it early, so shutdown is not held up.
func (s *Supervisor) sleepDelay(d time.Duration) {
	deadline := time.Now().Add(d)
	for s.running {
		remain := time.Until(deadline)
		if remain <= 0 {
			return
		}
		timer := time.NewTimer(remain)
		select {
		case sig := <-s.sigs:
			s.handleSignal(sig)
		case ev := <-s.exits:
			s.noteExit(ev)
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (s *Supervisor) alarmC() <-chan time.Time {
	if s.timeoutTimer == nil {
		return nil
	}
	return s.timeoutTimer.C
}

func (s *Supervisor) handleSignal(sig os.Signal) {
	s.log.Debug("got signal", zap.String("signal", signalName(sig)))

	// INT/TERM stop supervision gracefully.
	if sig == unix.SIGINT || sig == unix.SIGTERM {
		s.running = false
		return
	}

	// An external SIGALRM counts as a command timeout when one is
	// configured; otherwise it is forwarded like any other signal.
	if sig == unix.SIGALRM && s.cfg.Timeout > 0 {
		s.handleTimeout()
		return
	}

	num, ok := sig.(syscall.Signal)
	if !ok {
		return
	}

	if s.cfg.CmdSignals {
		s.log.Debug("delayed signal for cmd process", zap.Int("signal", int(num)))
		s.cmd.queue(actionSignal)
		s.cmd.queueSignal(num)
	}
	if s.cfg.LogSignals && s.logTask != nil {
		s.log.Debug("delayed signal for log process", zap.Int("signal", int(num)))
		s.logTask.queue(actionSignal)
		s.logTask.queueSignal(num)
	}
}

// handleTimeout stops and requeues the command when its allotted run
// time elapsed, then re-arms the timeout clock.
func (s *Supervisor) handleTimeout() {
	s.status.Timeout(s.cmd.pid)
	s.sendAction(s.cmd, actionStop)
	s.cmd.queue(actionStart)
	if s.timeoutTimer != nil {
		s.timeoutTimer.Reset(time.Duration(s.cfg.Timeout) * time.Second)
	}
}

func (s *Supervisor) noteExit(ev exitEvent) {
	s.pendingExits = append(s.pendingExits, ev)
	s.checkChild = true
}

func (s *Supervisor) takeExit() (exitEvent, bool) {
	if len(s.pendingExits) > 0 {
		ev := s.pendingExits[0]
		s.pendingExits = s.pendingExits[1:]
		return ev, true
	}
	select {
	case ev := <-s.exits:
		return ev, true
	default:
		return exitEvent{}, false
	}
}

// reapAndCheck consumes one child exit and applies the respawn policy.
// It returns the raw wait status for exits of the command, and -1 when
// no meaningful status was produced.
//
// Exits are matched by pid, not just by task: after a timeout restart
// the replacement child is already recorded on the task while the old
// one is still dying, and the old child's exit must not clobber it.
func (s *Supervisor) reapAndCheck() int {
	ev, ok := s.takeExit()
	if !ok {
		s.log.Debug("no child to reap")
		return -1
	}

	switch {
	case ev.task == s.cmd && ev.pid == s.cmd.pid:
		s.log.Debug("reaped cmd process", zap.Int("pid", ev.pid))
		s.status.Exit("cmd", ev.pid, int(ev.status))
		s.cmd.pid = NoPid

		switch {
		case s.cfg.SuccessExit && ev.status.Exited() && ev.status.ExitStatus() == 0:
			// Exit-on-success was requested and the command ended
			// cleanly: shut down instead of respawning.
			s.log.Debug("cmd process ended successfully, will exit")
			s.running = false
		case s.numRespawns == 0:
			s.log.Debug("cmd process respawned max number of times, will exit")
			s.running = false
		default:
			if s.numRespawns > 0 {
				s.numRespawns--
			}
			s.cmd.queue(actionStart)
		}
		return int(ev.status)

	case s.logTask != nil && ev.task == s.logTask && ev.pid == s.logTask.pid:
		s.log.Debug("reaped log process", zap.Int("pid", ev.pid))
		s.status.Exit("log", ev.pid, int(ev.status))
		s.logTask.pid = NoPid
		s.logTask.queue(actionStart)

	default:
		s.log.Debug("reaped unknown process", zap.Int("pid", ev.pid))
	}

	return -1
}

// dispatch realises the queued action of a task and reports it on the
// status side-channel. For a start, the new pid follows the event on
// its own line.
func (s *Supervisor) dispatch(t *Task) {
	switch t.action {
	case actionNone:
	case actionStart:
		s.status.Start(t.name)
		s.startTask(t)
		s.status.Pid(t.pid)
	case actionStop:
		s.status.Stop(t.name, t.pid)
		t.queue(actionNone)
		if t.pid > 0 {
			s.signalTask(t, unix.SIGTERM)
			s.signalTask(t, unix.SIGCONT)
		}
	case actionSignal:
		s.status.Signal(t.name, t.pid, int(t.signal))
		t.queue(actionNone)
		s.dispatchSignal(t)
	}
}

// dispatchAction is dispatch without the status reporting, for paths
// that emit their own event lines.
func (s *Supervisor) dispatchAction(t *Task) {
	switch t.action {
	case actionNone:
	case actionStart:
		s.startTask(t)
	case actionStop:
		t.queue(actionNone)
		if t.pid > 0 {
			// SIGCONT after SIGTERM so a stopped child actually
			// receives the termination request.
			s.signalTask(t, unix.SIGTERM)
			s.signalTask(t, unix.SIGCONT)
		}
	case actionSignal:
		t.queue(actionNone)
		s.dispatchSignal(t)
	}
}

// sendAction drains any queued action, then queues and dispatches the
// given one.
func (s *Supervisor) sendAction(t *Task, a action) {
	s.dispatchAction(t)
	t.queue(a)
	s.dispatchAction(t)
}

// signalTask drains any pending signal, then queues and delivers the
// given one.
func (s *Supervisor) signalTask(t *Task, sig syscall.Signal) {
	s.dispatchSignal(t)
	t.queueSignal(sig)
	s.dispatchSignal(t)
}

func (s *Supervisor) dispatchSignal(t *Task) {
	if t.signal == noSignal {
		return
	}
	if t.pid <= 0 {
		// No live child: the pid is NoPid after a reap, or 0 after a
		// failed spawn. kill(2) on either would hit other processes,
		// so drop the signal instead.
		t.queueSignal(noSignal)
		return
	}

	s.log.Debug("delivering signal",
		zap.String("task", t.name), zap.Int("pid", t.pid), zap.Int("signal", int(t.signal)))

	if err := unix.Kill(t.pid, t.signal); err != nil {
		s.log.Fatal("cannot send signal to process",
			zap.Int("pid", t.pid), zap.Int("signal", int(t.signal)), zap.Error(err))
	}
	t.queueSignal(noSignal)
}

// startTask spawns the task's command. Starts of the same task are
// kept at least one second apart so a crashing child cannot outrun the
// supervisor.
func (s *Supervisor) startTask(t *Task) {
	if delay := startDelay(t.started, time.Now()); delay > 0 {
		s.log.Debug("rate limiting respawn",
			zap.String("task", t.name), zap.Duration("delay", delay))
		s.sleepDelay(delay)
	}
	t.started = time.Now()
	t.queue(actionNone)

	c := exec.Command(t.argv[0], t.argv[1:]...)

	if t.stdout != nil {
		c.Stdout = t.stdout
	} else {
		c.Stdout = os.Stdout
	}
	if t.stdin != nil {
		c.Stdin = t.stdin
	} else {
		c.Stdin = os.Stdin
	}
	if t.stderrToStdout {
		c.Stderr = c.Stdout
	} else {
		c.Stderr = os.Stderr
	}

	if t.user != nil {
		c.SysProcAttr = &syscall.SysProcAttr{
			Credential: &syscall.Credential{
				Uid:    t.user.UID,
				Gid:    t.user.GID,
				Groups: t.user.Groups,
			},
		}
	}

	if err := c.Start(); err != nil {
		// The equivalent of a child that failed its exec: report
		// status 111 and let the respawn policy decide.
		s.log.Warn("cannot execute command",
			zap.Strings("argv", t.argv), zap.Error(err))
		t.pid = 0
		s.exits <- exitEvent{task: t, pid: 0, status: execFailureStatus}
		return
	}

	t.pid = c.Process.Pid
	s.log.Debug("child started", zap.String("task", t.name), zap.Int("pid", t.pid))

	go s.waitChild(t, c, t.pid)
}

// waitChild reaps one spawned child and reports its exit to the loop.
func (s *Supervisor) waitChild(t *Task, c *exec.Cmd, pid int) {
	err := c.Wait()

	st := execFailureStatus
	switch e := err.(type) {
	case nil:
		st = waitStatus(c.ProcessState)
	case *exec.ExitError:
		st = waitStatus(e.ProcessState)
	default:
		s.log.Warn("waiting for child", zap.Int("pid", pid), zap.Error(err))
	}

	s.exits <- exitEvent{task: t, pid: pid, status: st}
}

func waitStatus(ps *os.ProcessState) unix.WaitStatus {
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok {
		return unix.WaitStatus(ws)
	}
	return execFailureStatus
}

// startDelay computes the anti-DoS pause before a spawn: one second
// when the previous start happened less than a second ago.
func startDelay(lastStart, now time.Time) time.Duration {
	if now.Sub(lastStart) >= time.Second {
		return 0
	}
	return time.Second
}

// checkLoad applies the load-driven pause/resume policy to the
// command process.
func (s *Supervisor) checkLoad(load float64) {
	if s.paused {
		if load <= s.cfg.LoadLow {
			s.log.Debug("resuming", zap.Float64("load", load))
			s.signalTask(s.cmd, unix.SIGCONT)
			s.status.Resume(s.cmd.pid)
			s.paused = false
		}
		return
	}
	if load > s.cfg.LoadHigh {
		s.log.Debug("pausing", zap.Float64("load", load))
		s.signalTask(s.cmd, unix.SIGSTOP)
		s.status.Pause(s.cmd.pid)
		s.paused = true
	}
}

var signalNames = map[os.Signal]string{
	unix.SIGCONT: "CONT",
	unix.SIGALRM: "ALRM",
	unix.SIGQUIT: "QUIT",
	unix.SIGUSR1: "USR1",
	unix.SIGUSR2: "USR2",
	unix.SIGHUP:  "HUP",
	unix.SIGSTOP: "STOP",
	unix.SIGTERM: "TERM",
	unix.SIGINT:  "INT",
	unix.SIGKILL: "KILL",
}

func signalName(sig os.Signal) string {
	if name, ok := signalNames[sig]; ok {
		return name
	}
	return "(unknown)"
}
