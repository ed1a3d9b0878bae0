package listener

import (
	"os"
	"testing"
)

// fakeListener returns a Listener backed by a pipe fd, real enough for
// Close to succeed without binding an actual socket.
func fakeListener(t *testing.T, opts Options) *Listener {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Close() })
	return FromFD(int(r.Fd()), opts)
}

func TestReconcileReusesUnchangedListenerByAddress(t *testing.T) {
	orig := openFunc
	defer func() { openFunc = orig }()

	opts := Options{Address: "0.0.0.0:8080", ReusePort: true}
	m := NewManager()
	l := fakeListener(t, opts)
	m.byAddr[opts.Address] = l

	openFunc = func(o Options) (*Listener, error) {
		t.Fatalf("Open should not be called for an unchanged listener, got %+v", o)
		return nil, nil
	}

	next, err := m.Reconcile([]Options{opts})
	if err != nil {
		t.Fatal(err)
	}
	if next.byAddr[opts.Address] != l {
		t.Fatal("expected the exact same Listener to be reused across reconcile")
	}
}

func TestReconcileOpensNewAddressesAndDropsRemovedOnes(t *testing.T) {
	orig := openFunc
	defer func() { openFunc = orig }()

	keep := Options{Address: "0.0.0.0:8080"}
	drop := Options{Address: "0.0.0.0:9090"}
	add := Options{Address: "0.0.0.0:7070"}

	m := NewManager()
	m.byAddr[keep.Address] = fakeListener(t, keep)
	droppedListener := fakeListener(t, drop)
	m.byAddr[drop.Address] = droppedListener

	var opened []Options
	openFunc = func(o Options) (*Listener, error) {
		opened = append(opened, o)
		return fakeListener(t, o), nil
	}

	next, err := m.Reconcile([]Options{keep, add})
	if err != nil {
		t.Fatal(err)
	}
	if len(opened) != 1 || opened[0].Address != add.Address {
		t.Fatalf("expected only the new address to be opened, got %v", opened)
	}
	if _, ok := next.byAddr[drop.Address]; ok {
		t.Fatal("expected dropped address to be absent from the reconciled set")
	}
	if _, ok := next.byAddr[keep.Address]; !ok {
		t.Fatal("expected kept address to remain")
	}
	if _, ok := next.byAddr[add.Address]; !ok {
		t.Fatal("expected new address to be present")
	}
}

func TestReconcileRecreatesWhenOptionsChange(t *testing.T) {
	orig := openFunc
	defer func() { openFunc = orig }()

	before := Options{Address: "0.0.0.0:8080", Backlog: 128}
	after := Options{Address: "0.0.0.0:8080", Backlog: 1024}

	m := NewManager()
	oldListener := fakeListener(t, before)
	m.byAddr[before.Address] = oldListener

	var opened []Options
	openFunc = func(o Options) (*Listener, error) {
		opened = append(opened, o)
		return fakeListener(t, o), nil
	}

	next, err := m.Reconcile([]Options{after})
	if err != nil {
		t.Fatal(err)
	}
	if len(opened) != 1 {
		t.Fatalf("expected listener recreated on option change, got %d opens", len(opened))
	}
	if next.byAddr[after.Address] == oldListener {
		t.Fatal("expected a fresh Listener when options changed")
	}
}

func TestCloseExceptInClosesOnlyListenersNotPresentInKeep(t *testing.T) {
	kept := Options{Address: "0.0.0.0:8080"}
	fresh := Options{Address: "0.0.0.0:9090"}

	keptListener := fakeListener(t, kept)
	freshListener := fakeListener(t, fresh)

	keep := NewManager()
	keep.byAddr[kept.Address] = keptListener

	m := NewManager()
	m.byAddr[kept.Address] = keptListener
	m.byAddr[fresh.Address] = freshListener

	m.CloseExceptIn(keep)

	// freshListener's fd should now be closed; reading its Addr (cheap,
	// side-effect-free) still works, but re-closing must not panic and a
	// second Close on the same fd is harmless to assert against directly.
	if err := freshListener.Close(); err == nil {
		t.Fatal("expected fresh listener's fd to already be closed by CloseExceptIn")
	}
	if err := keptListener.Close(); err != nil {
		t.Fatalf("expected kept listener to remain open (closable exactly once), got %v", err)
	}
}
