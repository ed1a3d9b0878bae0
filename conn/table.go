// File: conn/table.go
// Package conn implements the fixed connection pool (spec.md §4.6): one
// Connection array sized at worker start (there are no parallel event
// arrays; read/write readiness state lives in the reactor's
// Registrations), a free list threaded through unused slots, and a
// reusable-idle LRU a caller can consult under slot pressure. Grounded on the teacher's
// protocol/connection.go (channel-based per-connection I/O loops) and
// server/server.go's accept loop, restructured around the fixed-array
// slot model spec.md §3 Connection requires instead of one goroutine (and
// one heap Connection) per socket.
//
// Author: reactorcore contributors
// License: Apache-2.0
package conn

import (
	"net"
	"sync"

	"github.com/nginxgo/reactorcore/api"
	"github.com/nginxgo/reactorcore/pool"
)

// Flags mirrors spec.md §3 Connection state bits.
type Flags uint16

const (
	FlagActive Flags = 1 << iota
	FlagReady
	FlagError
	FlagTimedOut
	FlagClose
	FlagDestroyed
	FlagIdle
	FlagReusable
	FlagPipeline
)

const noSlot = -1

// Connection is one fixed slot in the table. socket == ^uintptr(0) marks
// an unused slot (the §8 invariant "socket != -1 ⇔ slot is in use",
// expressed over an unsigned type via the all-ones sentinel).
type Connection struct {
	Slot   int
	socket uintptr
	inUse  bool

	Pool     *pool.Pool
	instance bool

	Local, Remote net.Addr
	BytesIn       int64
	BytesOut      int64
	State         Flags

	handler api.Handler

	nextFree int
	lruPrev  int
	lruNext  int
}

// FD returns the connection's socket handle.
func (c *Connection) FD() uintptr { return c.socket }

// Instance returns the generation bit toggled on release, used by the
// reactor to discriminate stale events (spec.md §4.5).
func (c *Connection) Instance() bool { return c.instance }

func (c *Connection) SetHandler(h api.Handler) { c.handler = h }
func (c *Connection) Handler() api.Handler     { return c.handler }

var _ api.Connection = (*Connection)(nil)

// Table is the fixed-size pool of Connection slots.
type Table struct {
	mu    sync.Mutex
	conns []Connection

	freeHead int
	freeN    int

	lruHead, lruTail int // reusable-idle LRU; noSlot when empty
}

// NewTable allocates n connection slots. Per spec.md §8's boundary
// behaviour, callers that also run an IPC channel over this same table
// should pass worker_connections-1 and reserve one slot themselves.
func NewTable(n int) *Table {
	t := &Table{conns: make([]Connection, n), lruHead: noSlot, lruTail: noSlot}
	for i := range t.conns {
		t.conns[i].Slot = i
		t.conns[i].socket = ^uintptr(0)
		t.conns[i].nextFree = i + 1
		t.conns[i].lruPrev, t.conns[i].lruNext = noSlot, noSlot
	}
	if n > 0 {
		t.conns[n-1].nextFree = noSlot
	}
	t.freeHead = 0
	t.freeN = n
	return t
}

// Acquire pops the free-list head and initializes it for fd, or returns
// api.ErrNoSlot if the table is exhausted. A table of n slots hands out
// exactly n connections before refusing; sized worker_connections-1, that
// is the spec.md §8 boundary of N-1 accepts with one slot reserved for the
// channel.
func (t *Table) Acquire(fd uintptr, arenaSize int) (*Connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.freeHead == noSlot {
		return nil, api.ErrNoSlot
	}
	idx := t.freeHead
	c := &t.conns[idx]
	t.freeHead = c.nextFree
	t.freeN--

	c.socket = fd
	c.inUse = true
	c.Pool = pool.New(arenaSize)
	c.State = FlagActive
	c.BytesIn, c.BytesOut = 0, 0
	c.handler = nil
	return c, nil
}

// Release destroys the connection's pool, toggles its instance bit
// exactly once, unlinks it from the reusable LRU if present, and returns
// the slot to the free list.
func (t *Table) Release(c *Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !c.inUse {
		return
	}
	if c.State&FlagReusable != 0 {
		t.unlinkLRU(c)
	}
	if c.Pool != nil {
		c.Pool.Destroy()
		c.Pool = nil
	}
	c.instance = !c.instance
	c.inUse = false
	c.socket = ^uintptr(0)
	c.State = 0

	c.nextFree = t.freeHead
	t.freeHead = c.Slot
	t.freeN++
}

// Counts implements reactor.ConnLoad: total slots and currently-free
// slots, the inputs to the accept_disabled load-shedding formula.
func (t *Table) Counts() (total, free int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns), t.freeN
}

// MarkReusable enqueues an idle connection onto the reusable LRU,
// eligible for preemptive close under slot pressure.
func (t *Table) MarkReusable(c *Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c.State&FlagReusable != 0 {
		return
	}
	c.State |= FlagReusable | FlagIdle
	c.lruPrev = noSlot
	c.lruNext = t.lruHead
	if t.lruHead != noSlot {
		t.conns[t.lruHead].lruPrev = c.Slot
	}
	t.lruHead = c.Slot
	if t.lruTail == noSlot {
		t.lruTail = c.Slot
	}
}

// UnmarkReusable removes a connection from the LRU, typically because it
// became active again.
func (t *Table) UnmarkReusable(c *Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c.State&FlagReusable == 0 {
		return
	}
	t.unlinkLRU(c)
	c.State &^= FlagReusable | FlagIdle
}

func (t *Table) unlinkLRU(c *Connection) {
	if c.lruPrev != noSlot {
		t.conns[c.lruPrev].lruNext = c.lruNext
	} else if t.lruHead == c.Slot {
		t.lruHead = c.lruNext
	}
	if c.lruNext != noSlot {
		t.conns[c.lruNext].lruPrev = c.lruPrev
	} else if t.lruTail == c.Slot {
		t.lruTail = c.lruPrev
	}
	c.lruPrev, c.lruNext = noSlot, noSlot
}

// EvictOldestReusable returns the least-recently-marked reusable idle
// connection for the caller to close, or nil if none is eligible. It does
// not unlink or release the connection, and Acquire never calls it: a
// caller that got api.ErrNoSlot decides whether to close and Release the
// returned connection to free a slot.
func (t *Table) EvictOldestReusable() *Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lruTail == noSlot {
		return nil
	}
	return &t.conns[t.lruTail]
}
