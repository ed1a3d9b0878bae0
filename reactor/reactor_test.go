package reactor

import (
	"testing"

	"github.com/nginxgo/reactorcore/timer"
)

// fakeBackend lets tests drive the reactor's nine-step loop without a
// real OS poller: each Wait call pops one pre-scripted batch.
type fakeBackend struct {
	batches    [][]ReadyEvent
	calls      int
	edge       bool
	addCalls   []uintptr
	removeCalls []uintptr
}

func (f *fakeBackend) Add(fd uintptr, readable, writable bool) error {
	f.addCalls = append(f.addCalls, fd)
	return nil
}
func (f *fakeBackend) Modify(fd uintptr, readable, writable bool) error { return nil }
func (f *fakeBackend) Remove(fd uintptr) error {
	f.removeCalls = append(f.removeCalls, fd)
	return nil
}
func (f *fakeBackend) EdgeTriggered() bool { return f.edge }
func (f *fakeBackend) Close() error        { return nil }
func (f *fakeBackend) Wait(timeoutMs int, out []ReadyEvent) (int, error) {
	if f.calls >= len(f.batches) {
		return 0, nil
	}
	batch := f.batches[f.calls]
	f.calls++
	n := copy(out, batch)
	return n, nil
}

func clock(ms int64) func() int64 { return func() int64 { return ms } }

func TestInlineDispatchOnReadable(t *testing.T) {
	fb := &fakeBackend{batches: [][]ReadyEvent{{{Fd: 5, Readable: true}}}}
	tr := timer.NewTree()
	r := New(fb, tr, clock(0))

	called := false
	r.Register(&Registration{Fd: 5, OnReadable: func() { called = true }})
	if err := r.runIteration(); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("expected inline handler invocation")
	}
}

func TestStaleEventIsDroppedWithoutInvokingHandler(t *testing.T) {
	fb := &fakeBackend{batches: [][]ReadyEvent{{{Fd: 5, Readable: true}}}}
	tr := timer.NewTree()
	r := New(fb, tr, clock(0))

	called := false
	r.Register(&Registration{
		Fd:         5,
		OnReadable: func() { called = true },
		Stale:      func() bool { return false }, // always stale
	})
	if err := r.runIteration(); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Fatal("stale event must not invoke handler")
	}
}

func TestDeferredRegistrationRunsAfterTimerExpiry(t *testing.T) {
	fb := &fakeBackend{batches: [][]ReadyEvent{{{Fd: 7, Readable: true}}}}
	tr := timer.NewTree()
	tr.UpdateNow(0)
	r := New(fb, tr, clock(0))

	var order []string
	tr.Add(0, func() { order = append(order, "timer") })
	r.Register(&Registration{Fd: 7, Deferred: true, OnReadable: func() { order = append(order, "deferred") }})

	if err := r.runIteration(); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "timer" || order[1] != "deferred" {
		t.Fatalf("expected timers (step 8) before deferred events (step 9), got %v", order)
	}
}

func TestAcceptMutexFailureLeavesListenerUnarmed(t *testing.T) {
	fb := &fakeBackend{}
	tr := timer.NewTree()
	r := New(fb, tr, clock(0))
	word := new(uint32)
	*word = 1 // already held by "another worker"
	r.EnableAcceptMutex(NewAcceptMutex(word), 500)
	r.Register(&Registration{Fd: 9, IsListener: true, OnReadable: func() {}})

	if err := r.runIteration(); err != nil {
		t.Fatal(err)
	}
	if len(fb.addCalls) != 0 {
		t.Fatalf("expected listener not armed while mutex held elsewhere, got %v", fb.addCalls)
	}
}

func TestUnregisterRemovesFromBackend(t *testing.T) {
	fb := &fakeBackend{}
	tr := timer.NewTree()
	r := New(fb, tr, clock(0))
	r.Register(&Registration{Fd: 3, OnReadable: func() {}})
	r.Unregister(3)
	if len(fb.removeCalls) != 1 || fb.removeCalls[0] != 3 {
		t.Fatalf("expected backend.Remove(3), got %v", fb.removeCalls)
	}
}
