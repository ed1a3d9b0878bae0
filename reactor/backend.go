// File: reactor/backend.go
// Package reactor implements the readiness-based event loop (spec.md
// §4.5): single-threaded-per-worker dispatch of OS readiness into
// connection handlers, with deferred/accept posted queues and timer
// integration. Backend abstracts the OS polling primitive (epoll on
// Linux) the way the teacher's reactor/epoll_reactor.go does, but keeps
// registration bookkeeping (instance bits, posted-queue routing, load
// shedding) in Reactor itself rather than inside the backend, since that
// bookkeeping is identical regardless of which OS primitive is polling.
//
// Author: reactorcore contributors
// License: Apache-2.0
package reactor

// ReadyEvent is one readiness notification returned by Backend.Wait.
type ReadyEvent struct {
	Fd       uintptr
	Readable bool
	Writable bool
	Err      bool
}

// Backend is the OS-specific readiness multiplexer. Add/Modify use
// edge-triggered semantics where the OS supports them (spec.md §4.5:
// "For edge-triggered, read/write handlers must drain until EAGAIN").
type Backend interface {
	Add(fd uintptr, readable, writable bool) error
	Modify(fd uintptr, readable, writable bool) error
	Remove(fd uintptr) error
	// Wait blocks up to timeoutMs (negative = forever), writes ready
	// events into out[0:n] and returns n.
	Wait(timeoutMs int, out []ReadyEvent) (int, error)
	// EdgeTriggered reports whether this backend requires handlers to
	// drain to EAGAIN themselves (true) or whether the reactor must
	// re-arm interest after each readiness (false).
	EdgeTriggered() bool
	Close() error
}
