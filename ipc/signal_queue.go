// File: ipc/signal_queue.go
// SignalQueue is the master's lock-free inbox for commands raised
// outside its main loop: the os/signal goroutine translating SIGHUP,
// SIGUSR2, etc. into Commands, and the SIGCHLD reaper reporting a dead
// worker. Both can race the main loop and each other, which is exactly
// the multi-producer case internal/concurrency.LockFreeQueue was built
// for (spec.md §4.9, §4.10).
//
// Author: reactorcore contributors
// License: Apache-2.0
package ipc

import "github.com/nginxgo/reactorcore/internal/concurrency"

// SignalEvent is one entry in the master's command inbox.
type SignalEvent struct {
	Command Command
	WorkerPID int32 // populated for reaper-originated events
}

// SignalQueue is a bounded MPMC inbox; a full queue keeps what it holds
// and rejects the new event (Push returns false) rather than blocking the
// signal handler, since signals are inherently best-effort.
type SignalQueue struct {
	q *concurrency.LockFreeQueue[SignalEvent]
}

func NewSignalQueue(capacity int) *SignalQueue {
	return &SignalQueue{q: concurrency.NewLockFreeQueue[SignalEvent](capacity)}
}

// Push enqueues an event, returning false if the queue is momentarily
// full (caller may retry or drop; dropping is safe for coalescible
// commands like Reopen/Reload).
func (s *SignalQueue) Push(ev SignalEvent) bool {
	return s.q.Enqueue(ev)
}

// Pop drains the next pending event, if any.
func (s *SignalQueue) Pop() (SignalEvent, bool) {
	return s.q.Dequeue()
}
