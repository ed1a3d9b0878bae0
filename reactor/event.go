// File: reactor/event.go
// Registration and flag types for the reactor (spec.md §3 Event).
//
// Author: reactorcore contributors
// License: Apache-2.0
package reactor

// Flags mirrors spec.md §3 Event flags.
type Flags uint16

const (
	FlagActive Flags = 1 << iota
	FlagReady
	FlagTimedOut
	FlagTimerSet
	FlagPosted
	FlagOneshot
	FlagAccept
	FlagDeferred
)

// StaleCheck reports whether the connection a Registration was made for
// still has the instance bit captured at registration time. It is the
// Go expression of spec.md's "cookie's bit differs from connection's
// current bit" stale-event test, without needing to pack a bit into a
// raw pointer the way the C original does.
type StaleCheck func() bool

// Registration binds one file descriptor's readiness to handlers. Read
// and write registrations for the same connection share the same
// StaleCheck since both are invalidated together when the slot is
// released.
type Registration struct {
	Fd         uintptr
	OnReadable func()
	OnWritable func()
	Stale      StaleCheck
	IsListener bool
	Deferred   bool
	flags      Flags
}
