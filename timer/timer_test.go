package timer

import "testing"

func TestFindMinNeverBelowNow(t *testing.T) {
	tr := NewTree()
	tr.UpdateNow(1000)
	tr.Add(500, func() {})
	if m := tr.FindMinMS(); m != 500 {
		t.Fatalf("expected 500ms until expiry, got %d", m)
	}
}

func TestEmptyTreeFindMinIsInfinite(t *testing.T) {
	tr := NewTree()
	tr.UpdateNow(0)
	if m := tr.FindMinMS(); m != -1 {
		t.Fatalf("expected -1 (block indefinitely) for empty tree, got %d", m)
	}
}

func TestExpireDueFiresOnlyDueTimersInOrder(t *testing.T) {
	tr := NewTree()
	tr.UpdateNow(0)
	var fired []int
	tr.Add(10, func() { fired = append(fired, 1) })
	tr.Add(20, func() { fired = append(fired, 2) })
	tr.Add(1000, func() { fired = append(fired, 3) })

	tr.UpdateNow(25)
	tr.ExpireDue()

	if len(fired) != 2 || fired[0] != 1 || fired[1] != 2 {
		t.Fatalf("expected timers 1,2 to fire in order, got %v", fired)
	}
	if m := tr.FindMinMS(); m != 975 {
		t.Fatalf("expected remaining timer at 975ms, got %d", m)
	}
}

func TestAddThenDeleteLeavesTreeUnchanged(t *testing.T) {
	tr := NewTree()
	tr.UpdateNow(0)
	base := tr.Add(100, func() {})
	before := tr.FindMinMS()
	extra := tr.Add(50, func() {})
	tr.Delete(extra)
	after := tr.FindMinMS()
	if before != 100 || after != 100 {
		t.Fatalf("expected add/delete round-trip to leave min unchanged: before=%d after=%d", before, after)
	}
	tr.Delete(base)
	if m := tr.FindMinMS(); m != -1 {
		t.Fatalf("expected empty tree after deleting last timer, got %d", m)
	}
}

func TestKeyComparisonHandlesUint32Wrap(t *testing.T) {
	// A key just after wraparound (small) must compare as "later" than
	// a key just before it (near max), not "earlier".
	before := uint32(0xFFFFFFF0)
	after := uint32(10)
	if !keyLess(before, after) {
		t.Fatal("expected modular comparison to treat wrapped key as later")
	}
}
