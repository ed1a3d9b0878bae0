package conn

import (
	"testing"

	"github.com/nginxgo/reactorcore/api"
)

func TestAcquireExhaustsFreeListThenReturnsErrNoSlot(t *testing.T) {
	tb := NewTable(3)
	for i := 0; i < 3; i++ {
		if _, err := tb.Acquire(uintptr(100+i), 4096); err != nil {
			t.Fatalf("unexpected error on slot %d: %v", i, err)
		}
	}
	if _, err := tb.Acquire(999, 4096); err != api.ErrNoSlot {
		t.Fatalf("expected ErrNoSlot once exhausted, got %v", err)
	}
}

func TestReleaseTogglesInstanceBitAndReturnsSlotToFreeList(t *testing.T) {
	tb := NewTable(1)
	c, err := tb.Acquire(42, 4096)
	if err != nil {
		t.Fatal(err)
	}
	before := c.Instance()
	tb.Release(c)
	if c.Instance() == before {
		t.Fatal("expected instance bit to flip on release")
	}
	if _, err := tb.Acquire(43, 4096); err != nil {
		t.Fatalf("expected slot reusable after release, got %v", err)
	}
}

func TestCountsReflectFreeSlots(t *testing.T) {
	tb := NewTable(4)
	if total, free := tb.Counts(); total != 4 || free != 4 {
		t.Fatalf("expected 4/4 free initially, got %d/%d", total, free)
	}
	c1, _ := tb.Acquire(1, 4096)
	c2, _ := tb.Acquire(2, 4096)
	if _, free := tb.Counts(); free != 2 {
		t.Fatalf("expected 2 free after two acquires, got %d", free)
	}
	tb.Release(c1)
	tb.Release(c2)
	if _, free := tb.Counts(); free != 4 {
		t.Fatalf("expected 4 free after releasing both, got %d", free)
	}
}

func TestReusableLRUEvictsOldestFirst(t *testing.T) {
	tb := NewTable(3)
	c1, _ := tb.Acquire(1, 4096)
	c2, _ := tb.Acquire(2, 4096)
	c3, _ := tb.Acquire(3, 4096)

	tb.MarkReusable(c1)
	tb.MarkReusable(c2)
	tb.MarkReusable(c3)

	if got := tb.EvictOldestReusable(); got != c1 {
		t.Fatalf("expected c1 as oldest reusable, got slot %d", got.Slot)
	}

	tb.UnmarkReusable(c1)
	if got := tb.EvictOldestReusable(); got != c2 {
		t.Fatalf("expected c2 as oldest reusable after c1 unmarked, got slot %d", got.Slot)
	}
}

func TestEvictOldestReusableNilWhenNoneEligible(t *testing.T) {
	tb := NewTable(2)
	if got := tb.EvictOldestReusable(); got != nil {
		t.Fatalf("expected nil with no reusable connections, got slot %d", got.Slot)
	}
}

func TestReleaseUnlinksFromReusableLRU(t *testing.T) {
	tb := NewTable(2)
	c1, _ := tb.Acquire(1, 4096)
	c2, _ := tb.Acquire(2, 4096)
	tb.MarkReusable(c1)
	tb.MarkReusable(c2)

	tb.Release(c1)
	if got := tb.EvictOldestReusable(); got != c2 {
		t.Fatalf("expected c2 to remain sole reusable entry, got %v", got)
	}
}
