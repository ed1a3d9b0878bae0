// File: timer/timer.go
// Public contract for the timer tree (spec.md §4.4): add(event, ms),
// delete(event), find_min(), expire_all_due(). The tree is keyed by
// current_monotonic_ms + ms. On expiry it removes the timer, marks it
// expired and calls its callback; it keeps no TimedOut or TimerSet flags
// of its own.
//
// Author: reactorcore contributors
// License: Apache-2.0
package timer

import (
	"sync"
	"sync/atomic"
)

// Timer is the handle returned by Add; pass it to Delete to cancel.
type Timer struct {
	n       *node
	fn      func()
	expired bool
}

// Tree is a monotonic-clock-driven timer tree. Callers must invoke
// UpdateNow once per reactor wake (spec.md §4.5 step 4) before calling
// FindMinMS or ExpireDue so due-ness is evaluated against a fresh clock
// reading rather than a stale one from a prior iteration.
type Tree struct {
	mu  sync.Mutex
	t   *rbtree
	now int64 // monotonic ms, set by UpdateNow
	seq uint64
}

func NewTree() *Tree {
	return &Tree{t: newRBTree()}
}

// UpdateNow records the current monotonic time in milliseconds. Callers
// typically pass a time.Now() reading converted to a monotonic ms
// counter; this package does not call into time itself so tests can drive
// the clock deterministically.
func (tr *Tree) UpdateNow(nowMS int64) {
	atomic.StoreInt64(&tr.now, nowMS)
}

func (tr *Tree) Now() int64 { return atomic.LoadInt64(&tr.now) }

// Add schedules fn to run after ms milliseconds from the last UpdateNow
// reading and returns a handle for cancellation.
func (tr *Tree) Add(ms int64, fn func()) *Timer {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	key := uint32(tr.now + ms)
	tr.seq++
	n := &node{key: key, seq: tr.seq}
	tm := &Timer{n: n, fn: fn}
	n.timer = tm
	tr.t.insert(n)
	return tm
}

// Delete cancels a previously scheduled timer. Deleting a timer that has
// already fired, or nil, is a no-op. Add-then-Delete leaves the tree
// structurally unchanged (the round-trip law in spec.md §8).
func (tr *Tree) Delete(tm *Timer) {
	if tm == nil || tm.n == nil {
		return
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tm.expired {
		return
	}
	tr.t.delete(tm.n)
	tm.n = nil
}

// FindMinMS returns the number of milliseconds until the earliest timer
// expires relative to the last UpdateNow reading, or -1 if the tree is
// empty (meaning: block indefinitely).
func (tr *Tree) FindMinMS() int64 {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	m := tr.t.min()
	if m == nil {
		return -1
	}
	now := tr.now
	delta := int64(int32(m.key - uint32(now)))
	if delta < 0 {
		return 0
	}
	return delta
}

// ExpireDue fires and removes every timer whose key is ≤ the last
// UpdateNow reading, oldest (by tree order, which breaks ties by
// insertion) first.
func (tr *Tree) ExpireDue() {
	for {
		tr.mu.Lock()
		m := tr.t.min()
		if m == nil {
			tr.mu.Unlock()
			return
		}
		if keyLess(uint32(tr.now), m.key) {
			tr.mu.Unlock()
			return
		}
		tr.t.delete(m)
		m.timer.expired = true
		fn := m.timer.fn
		tr.mu.Unlock()
		if fn != nil {
			fn()
		}
	}
}
