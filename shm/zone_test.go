package shm

import "testing"

func TestDeclareIsIdempotentForMatchingDeclarations(t *testing.T) {
	r := NewRegistry()
	z1, err := r.Declare("stats", 1<<20, "v1")
	if err != nil {
		t.Fatal(err)
	}
	z2, err := r.Declare("stats", 1<<20, "v1")
	if err != nil {
		t.Fatal(err)
	}
	if z1 != z2 {
		t.Fatal("expected identical declaration to reuse the same zone")
	}
}

func TestDeclareRejectsMismatchedTag(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Declare("stats", 1<<20, "v1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Declare("stats", 1<<20, "v2"); err == nil {
		t.Fatal("expected mismatched tag to error")
	}
}

func TestReconcileReusesAddressAcrossCycles(t *testing.T) {
	old := NewRegistry()
	z, err := old.Declare("stats", 1<<20, "v1")
	if err != nil {
		t.Fatal(err)
	}
	addrBefore := z.Address()

	next, err := Reconcile(old, []Declaration{{Name: "stats", Size: 1 << 20, Tag: "v1"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	zn, _ := next.Declare("stats", 1<<20, "v1")
	if zn.Address() != addrBefore {
		t.Fatalf("expected reused zone to keep address: before=%x after=%x", addrBefore, zn.Address())
	}
}

func TestReconcileRecreatesOnSizeMismatch(t *testing.T) {
	old := NewRegistry()
	z, err := old.Declare("stats", 1<<20, "v1")
	if err != nil {
		t.Fatal(err)
	}
	addrBefore := z.Address()

	next, err := Reconcile(old, []Declaration{{Name: "stats", Size: 2 << 20, Tag: "v1"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	zn, _ := next.Declare("stats", 2<<20, "v1")
	if zn.Address() == addrBefore {
		t.Fatal("expected size-mismatched zone to be recreated at a new address")
	}
}

func TestSlabAllocAndFreeRoundTrip(t *testing.T) {
	r := NewRegistry()
	z, err := r.Declare("arena", 1<<20, "v1")
	if err != nil {
		t.Fatal(err)
	}
	b := z.Slab().Alloc(40)
	if len(b) < 40 {
		t.Fatalf("expected at least 40 bytes, got %d", len(b))
	}
	z.Slab().Free(b)
	b2 := z.Slab().Alloc(40)
	if len(b2) < 40 {
		t.Fatalf("expected reused slot of at least 40 bytes, got %d", len(b2))
	}
}
