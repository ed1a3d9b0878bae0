// File: master/master.go
// Package master implements the supervisor process (spec.md §4.9): it
// holds the live cycle, pre-forks worker processes via os/exec with
// listener and IPC-channel fds inherited through ExtraFiles, watches for
// OS signals and worker exits, and drives graceful reload and shutdown.
// A binary-upgrade request (SIGUSR2) and a log-reopen request (SIGUSR1)
// are logged and not otherwise acted on.
//
// Go has no fork(2) that preserves a running goroutine scheduler, so
// "pre-fork" here is re-exec of the same binary with an internal worker
// flag and inherited fds — the same fd-inheritance trick nginx itself
// relies on for binary upgrade, used here for the ordinary worker spawn
// path. Grounded on the teacher's use of golang.org/x/sys/unix for raw
// socket/process primitives; this package encodes the inherited listener
// fds with listener.EncodeInheritedFDs.
//
// Author: reactorcore contributors
// License: Apache-2.0
package master

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sirupsen/logrus"

	"github.com/nginxgo/reactorcore/config"
	"github.com/nginxgo/reactorcore/cycle"
	"github.com/nginxgo/reactorcore/ipc"
	"github.com/nginxgo/reactorcore/listener"
)

// WorkerRoleEnv signals a re-exec'd process to run the worker loop
// instead of the master loop.
const WorkerRoleEnv = "REACTORCORE_ROLE"
const WorkerRoleValue = "worker"

// WorkerChannelFDEnv carries the inherited IPC channel's fd number.
const WorkerChannelFDEnv = "REACTORCORE_CHANNEL_FD"

// WorkerSlotEnv carries the worker's slot index, for logging/metrics
// labeling and for sizing its connection table the same as its peers.
const WorkerSlotEnv = "REACTORCORE_WORKER_SLOT"

// Worker tracks one live worker process from the master's side.
type Worker struct {
	Slot    int
	PID     int
	Channel *ipc.Channel
	cmd     *exec.Cmd
	exited  chan struct{}
}

// Master supervises the worker pool for one running Cycle.
type Master struct {
	log *logrus.Logger

	mu      sync.Mutex
	cycle   *cycle.Cycle
	workers map[int]*Worker // by slot

	signals *ipc.SignalQueue
	binPath string
	args    []string

	// reloadSource reloads configuration from whatever source the caller
	// wired (file + -g overlay, typically); moduleFactory resolves the
	// reloaded config's module names. Both nil until SetReloadSource is
	// called, in which case CmdReload is logged but not acted on.
	reloadSource  func() (*config.StaticConfig, error)
	moduleFactory cycle.ModuleFactory

	stopping bool
}

// New builds a Master for the given cycle. binPath/args are the
// executable and arguments used to spawn workers.
func New(c *cycle.Cycle, log *logrus.Logger, binPath string, args []string) *Master {
	return &Master{
		log:     log,
		cycle:   c,
		workers: make(map[int]*Worker),
		signals: ipc.NewSignalQueue(256),
		binPath: binPath,
		args:    args,
	}
}

// RequestReload enqueues a reload command as if SIGHUP had been
// received. Used by the config file watcher (fsnotify) as an alternate
// reload trigger alongside the signal.
func (m *Master) RequestReload() {
	m.signals.Push(ipc.SignalEvent{Command: ipc.CmdReload})
}

// SetReloadSource wires the config source and module factory a CmdReload
// rebuilds the cycle from. cmd/reactorcore calls this once at startup,
// since Master itself has no opinion on where configuration comes from.
func (m *Master) SetReloadSource(source func() (*config.StaticConfig, error), modules cycle.ModuleFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadSource = source
	m.moduleFactory = modules
}

// InstallSignalHandlers maps OS signals onto the master's command queue
// (spec.md §4.9 signal table): SIGHUP reload, SIGUSR2 binary upgrade,
// SIGQUIT graceful stop, SIGTERM/SIGINT fast stop.
func (m *Master) InstallSignalHandlers() {
	ch := make(chan os.Signal, 16)
	signal.Notify(ch, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		for sig := range ch {
			switch sig {
			case syscall.SIGHUP:
				m.signals.Push(ipc.SignalEvent{Command: ipc.CmdReload})
			case syscall.SIGUSR1:
				m.signals.Push(ipc.SignalEvent{Command: ipc.CmdReopen})
			case syscall.SIGUSR2:
				m.signals.Push(ipc.SignalEvent{Command: ipc.CmdNewBinary})
			case syscall.SIGQUIT:
				m.signals.Push(ipc.SignalEvent{Command: ipc.CmdQuit})
			case syscall.SIGTERM, syscall.SIGINT:
				m.signals.Push(ipc.SignalEvent{Command: ipc.CmdTerminate})
			}
		}
	}()
}

// StartWorkers spawns WorkerProcesses count worker processes for the
// current cycle.
func (m *Master) StartWorkers() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.cycle.Config.WorkerProcesses
	for slot := 0; slot < n; slot++ {
		if err := m.spawnWorkerLocked(slot); err != nil {
			return fmt.Errorf("master: spawning worker %d: %w", slot, err)
		}
	}
	return nil
}

func (m *Master) spawnWorkerLocked(slot int) error {
	masterEnd, workerEnd, err := ipc.NewPair()
	if err != nil {
		return err
	}

	cmd := exec.Command(m.binPath, m.args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(),
		WorkerRoleEnv+"="+WorkerRoleValue,
		WorkerSlotEnv+"="+strconv.Itoa(slot),
	)

	extraBase := 3 // fd 0,1,2 inherited implicitly; ExtraFiles start at fd 3
	cmd.ExtraFiles = append(cmd.ExtraFiles, os.NewFile(uintptr(workerEnd.FD()), "channel"))
	cmd.Env = append(cmd.Env, WorkerChannelFDEnv+"="+strconv.Itoa(extraBase))

	listenerFDs := make([]int, 0)
	for _, l := range m.cycle.Listeners.Listeners() {
		f := os.NewFile(uintptr(l.FD()), "listener")
		cmd.ExtraFiles = append(cmd.ExtraFiles, f)
		listenerFDs = append(listenerFDs, extraBase+len(cmd.ExtraFiles)-1)
	}
	cmd.Env = append(cmd.Env, listener.ListenFDsEnv+"="+listener.EncodeInheritedFDs(listenerFDs))

	if err := cmd.Start(); err != nil {
		masterEnd.Close()
		return err
	}
	_ = workerEnd.Close() // master keeps only its own end open

	w := &Worker{Slot: slot, PID: cmd.Process.Pid, Channel: masterEnd, cmd: cmd, exited: make(chan struct{})}
	m.workers[slot] = w

	go m.reap(w)
	return nil
}

func (m *Master) reap(w *Worker) {
	err := w.cmd.Wait()
	status := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			status = exitErr.ExitCode()
		}
	}
	m.log.WithFields(logrus.Fields{"slot": w.Slot, "pid": w.PID, "exit_status": status}).Warn("worker exited")
	close(w.exited)
	m.signals.Push(ipc.SignalEvent{Command: ipc.CmdTerminate, WorkerPID: int32(w.PID)})
}

// WaitWorkersExit blocks until every currently-tracked worker has exited
// or timeout elapses, whichever comes first (spec.md §4.9 "master waits
// for workers to finish in-flight work before exiting on a graceful
// stop"). Used after StopAll during shutdown.
func (m *Master) WaitWorkersExit(timeout time.Duration) error {
	workers := m.Workers()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error {
			select {
			case <-w.exited:
				return nil
			case <-gctx.Done():
				return fmt.Errorf("worker slot %d (pid %d) did not exit within %s", w.Slot, w.PID, timeout)
			}
		})
	}
	return g.Wait()
}

// RunOnce drains one pending signal event and acts on it, returning
// whether the master should keep running. Exposed separately from a
// blocking Run loop so callers (and tests) can drive it deterministically.
func (m *Master) RunOnce() (keepRunning bool) {
	ev, ok := m.signals.Pop()
	if !ok {
		return true
	}
	switch ev.Command {
	case ipc.CmdReload:
		m.reload()
	case ipc.CmdQuit, ipc.CmdTerminate:
		if ev.WorkerPID != 0 {
			m.respawnDeadWorker(int(ev.WorkerPID))
			return true
		}
		m.StopAll(ev.Command == ipc.CmdQuit)
		return false
	case ipc.CmdNewBinary:
		m.log.Info("binary upgrade requested")
	case ipc.CmdReopen:
		m.log.Info("log reopen requested")
	}
	return true
}

// reload implements spec.md §4.8's hot-swap sequence (steps 4-6): load
// the new configuration, build the next cycle by reconciling it against
// the running one, start a fresh worker generation against it, then
// drain the outgoing generation (graceful quit, bounded by
// WorkerShutdownTimeoutMS) before releasing the previous cycle's
// resources. The running cycle and workers are left untouched if any
// step before the new workers are started fails.
func (m *Master) reload() {
	m.mu.Lock()
	source := m.reloadSource
	modules := m.moduleFactory
	current := m.cycle
	m.mu.Unlock()

	if source == nil {
		m.log.Warn("reload requested but no config source is configured")
		return
	}

	cfg, err := source()
	if err != nil {
		m.log.WithError(err).Error("reload: loading config failed, keeping running cycle")
		return
	}

	next, err := current.Reload(cfg, modules)
	if err != nil {
		m.log.WithError(err).Error("reload: building new cycle failed, keeping running cycle")
		return
	}

	m.mu.Lock()
	oldWorkers := m.workers
	m.cycle = next
	m.workers = make(map[int]*Worker)
	var spawnErr error
	for slot := 0; slot < next.Config.WorkerProcesses; slot++ {
		if err := m.spawnWorkerLocked(slot); err != nil {
			spawnErr = err
			break
		}
	}
	m.mu.Unlock()
	if spawnErr != nil {
		m.log.WithError(spawnErr).Error("reload: starting new worker generation failed")
	}

	m.log.WithField("outgoing_workers", len(oldWorkers)).Info("reload: draining previous worker generation")
	timeout := time.Duration(next.Config.WorkerShutdownTimeoutMS) * time.Millisecond
	go m.drainOldGeneration(oldWorkers, next, timeout)
}

// drainOldGeneration sends a graceful quit to every worker in old, waits
// up to timeout for each to exit on its own, force-terminates any that
// are still running once the timeout elapses, and then releases the
// cycle they belonged to (spec.md §4.8 step 5/6).
func (m *Master) drainOldGeneration(old map[int]*Worker, next *cycle.Cycle, timeout time.Duration) {
	for _, w := range old {
		_ = w.Channel.Send(ipc.Message{Command: ipc.CmdQuit, PID: int32(w.PID)})
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, w := range old {
		select {
		case <-w.exited:
		case <-ctx.Done():
			m.log.WithField("pid", w.PID).Warn("reload: worker did not drain in time, forcing exit")
			_ = w.Channel.Send(ipc.Message{Command: ipc.CmdTerminate, PID: int32(w.PID)})
		}
	}
	next.ReleasePrevious()
}

func (m *Master) respawnDeadWorker(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopping {
		return
	}
	for slot, w := range m.workers {
		if w.PID == pid {
			delete(m.workers, slot)
			if err := m.spawnWorkerLocked(slot); err != nil {
				m.log.WithError(err).WithField("slot", slot).Error("failed to respawn worker")
			}
			return
		}
	}
}

// StopAll signals every worker to exit: graceful (finish in-flight work)
// when graceful is true, immediate otherwise.
func (m *Master) StopAll(graceful bool) {
	m.mu.Lock()
	m.stopping = true
	workers := make([]*Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.mu.Unlock()

	cmd := ipc.CmdTerminate
	if graceful {
		cmd = ipc.CmdQuit
	}
	for _, w := range workers {
		_ = w.Channel.Send(ipc.Message{Command: cmd, PID: int32(w.PID)})
	}
}

// Workers returns a snapshot of the live worker table, keyed by slot.
func (m *Master) Workers() map[int]*Worker {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]*Worker, len(m.workers))
	for k, v := range m.workers {
		out[k] = v
	}
	return out
}
