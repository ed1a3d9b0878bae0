// File: cmd/reactorcore/run_worker.go
// runWorker is what a re-exec'd child does when REACTORCORE_ROLE=worker:
// rebuild its connection table and reactor, inherit its listener and IPC
// channel fds, accept connections up to worker_connections, and dispatch
// each readiness event to the configured handler (spec.md §4.5-§4.7).
//
// Author: reactorcore contributors
// License: Apache-2.0
package main

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/nginxgo/reactorcore/api"
	"github.com/nginxgo/reactorcore/conn"
	"github.com/nginxgo/reactorcore/config"
	"github.com/nginxgo/reactorcore/internal/affinity"
	"github.com/nginxgo/reactorcore/ipc"
	"github.com/nginxgo/reactorcore/listener"
	"github.com/nginxgo/reactorcore/logging"
	"github.com/nginxgo/reactorcore/master"
	"github.com/nginxgo/reactorcore/modules/echo"
	"github.com/nginxgo/reactorcore/reactor"
	"github.com/nginxgo/reactorcore/timer"
)

func runWorker() error {
	cfg, err := config.Load(flagConfig, flagGlobal)
	if err != nil {
		return err
	}
	slot, _ := strconv.Atoi(os.Getenv(master.WorkerSlotEnv))

	log := logging.New(cfg.LogLevel)
	wlog := logging.WithWorker(log, slot, os.Getpid())
	wlog.Info("worker starting")

	if cfg.WorkerProcesses > 1 {
		runtime.LockOSThread()
		_ = affinity.PinCurrentThread(slot % affinity.NumCPU())
	}

	channelFD, _ := strconv.Atoi(os.Getenv(master.WorkerChannelFDEnv))
	channel := ipc.FromFD(channelFD)
	_ = channel.SetNonblock()

	backend, err := reactor.NewBackend()
	if err != nil {
		return err
	}

	table := conn.NewTable(cfg.WorkerConnections - 1)
	timers := timer.NewTree()
	timers.UpdateNow(nowMS())

	r := reactor.New(backend, timers, nowMS)
	r.SetConnLoad(table)

	var handler api.Handler
	for _, name := range cfg.Modules {
		if name == "echo" {
			handler = echo.New(log)
		}
	}
	if handler == nil {
		handler = echo.New(log)
	}

	var listenerFDs []uintptr
	ctx, cancel := context.WithCancel(context.Background())
	unregisterListeners := func() {
		for _, fd := range listenerFDs {
			r.Unregister(fd)
		}
	}
	shutdownTimeout := time.Duration(cfg.WorkerShutdownTimeoutMS) * time.Millisecond

	if err := r.Register(&reactor.Registration{
		Fd:         uintptr(channel.FD()),
		OnReadable: func() { serviceChannel(channel, r, table, cancel, unregisterListeners, shutdownTimeout, wlog) },
	}); err != nil {
		wlog.WithError(err).Error("failed to register control channel")
	}

	for _, fd := range listener.InheritedFDs() {
		fd := fd
		l := listener.FromFD(fd, listener.Options{})
		reg := &reactor.Registration{
			Fd:         uintptr(fd),
			IsListener: true,
			OnReadable: func() { acceptLoop(r, table, l, handler, wlog) },
		}
		if err := r.Register(reg); err != nil {
			wlog.WithError(err).Error("failed to register listener")
			continue
		}
		listenerFDs = append(listenerFDs, uintptr(fd))
	}

	wlog.Info("worker ready, entering reactor loop")
	if err := r.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	wlog.Info("worker exiting")
	return nil
}

// serviceChannel handles one command from the master. CmdTerminate cancels
// the reactor loop immediately, dropping every in-flight connection.
// CmdQuit instead stops accepting new connections and lets in-flight ones
// finish naturally, only cancelling once the connection table drains or
// worker_shutdown_timeout elapses, whichever comes first (spec.md §4.8
// step 5, §4.9's "quit" row).
func serviceChannel(channel *ipc.Channel, r *reactor.Reactor, table *conn.Table, cancel context.CancelFunc, unregisterListeners func(), shutdownTimeout time.Duration, log *logrus.Entry) {
	msg, _, err := channel.Recv()
	if err != nil {
		return
	}
	switch msg.Command {
	case ipc.CmdTerminate:
		log.Info("worker received immediate shutdown command")
		cancel()
	case ipc.CmdQuit:
		log.Info("worker received graceful shutdown command, draining in-flight connections")
		go drainAndExit(table, unregisterListeners, cancel, shutdownTimeout, log)
	}
}

// drainAndExit stops new accepts and waits for the connection table to
// empty out before cancelling the reactor's run loop, forcing the issue
// once shutdownTimeout elapses with connections still open.
func drainAndExit(table *conn.Table, unregisterListeners func(), cancel context.CancelFunc, shutdownTimeout time.Duration, log *logrus.Entry) {
	unregisterListeners()

	deadline := time.NewTimer(shutdownTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		total, free := table.Counts()
		if total-free == 0 {
			cancel()
			return
		}
		select {
		case <-deadline.C:
			log.Warn("worker_shutdown_timeout elapsed with connections still open, forcing exit")
			cancel()
			return
		case <-ticker.C:
		}
	}
}

func acceptLoop(r *reactor.Reactor, table *conn.Table, l *listener.Listener, handler api.Handler, log *logrus.Entry) {
	for {
		fd, _, wouldBlock, err := l.Accept()
		if wouldBlock {
			return
		}
		if err != nil {
			log.WithError(err).Warn("accept failed")
			return
		}

		c, err := table.Acquire(uintptr(fd), 4096)
		if err != nil {
			log.WithError(err).Warn("connection table exhausted, dropping accepted socket")
			unix.Close(fd)
			r.NotifyAccept()
			continue
		}
		c.SetHandler(handler)

		gen := c.Instance()
		reg := &reactor.Registration{
			Fd: uintptr(fd),
			Stale: func() bool {
				return c.Instance() == gen
			},
			OnReadable: func() { serviceConnection(r, table, c, handler) },
		}
		if err := r.Register(reg); err != nil {
			log.WithError(err).Warn("failed to register accepted connection")
			table.Release(c)
			continue
		}
		r.NotifyAccept()
	}
}

func serviceConnection(r *reactor.Reactor, table *conn.Table, c *conn.Connection, handler api.Handler) {
	res := handler.Handle(&api.Request{Conn: c, Pool: c.Pool})
	switch res {
	case api.Again:
		return
	default:
		r.Unregister(c.FD())
		c.Close()
		table.Release(c)
	}
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}
