// File: reactor/acceptmutex.go
// Process-shared try-lock guarding which worker registers interest in a
// shared listener for one reactor iteration (spec.md §4.5 step 2,
// GLOSSARY "Accept-mutex"). Backed by a word inside a shm.Zone so the CAS
// is visible across the worker processes the master forked, per the
// design note in spec.md §9 ("map accept-mutex as a field of a
// process-shared region").
//
// Author: reactorcore contributors
// License: Apache-2.0
package reactor

import "sync/atomic"

// AcceptMutex is a try-lock only primitive: a worker that fails to
// acquire it simply waits for the next reactor iteration, it never
// blocks.
type AcceptMutex struct {
	word *uint32
	held bool
}

// NewAcceptMutex wraps a process-shared word (the first 4 bytes of a
// dedicated shm.Zone, typically) as an accept-mutex.
func NewAcceptMutex(word *uint32) *AcceptMutex {
	return &AcceptMutex{word: word}
}

// TryLock attempts to acquire the mutex; returns whether it succeeded.
func (m *AcceptMutex) TryLock() bool {
	if m.held {
		return true
	}
	if atomic.CompareAndSwapUint32(m.word, 0, 1) {
		m.held = true
		return true
	}
	return false
}

// Unlock releases the mutex if this worker holds it. Releasing a mutex
// this worker does not hold is a no-op (mirrors the try-lock contract:
// nothing to undo).
func (m *AcceptMutex) Unlock() {
	if !m.held {
		return
	}
	atomic.StoreUint32(m.word, 0)
	m.held = false
}

func (m *AcceptMutex) Held() bool { return m.held }
