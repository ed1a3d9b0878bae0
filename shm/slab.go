// File: shm/slab.go
// Slab allocator living at the start of a shared Zone (spec.md §4.3),
// grounded on the teacher's pool/slab_pool.go size-class design,
// re-expressed over raw mmap'd bytes with a process-shared guard instead
// of the teacher's in-process LockFreeQueue (which cannot cross a fork
// boundary since it holds Go pointers, not zone-relative offsets).
//
// Author: reactorcore contributors
// License: Apache-2.0
package shm

import (
	"runtime"
	"sync/atomic"
	"time"
)

// minAlloc is the smallest slot size the slab ever hands out, matching
// spec.md §4.3's "minimum allocation size is 8 bytes".
const minAlloc = 8

// sizeClasses are power-of-two slot sizes a request rounds up to.
var sizeClasses = [...]int{8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096}

// page groups slots of one size class within the zone; its bitmap marks
// one bit per slot, matching the original's per-page slot bitmap.
type page struct {
	class  int
	offset int // byte offset into the zone of this page's first slot
	slots  int
	bitmap []uint64 // one bit per slot, 1 = free
}

// Slab is a guarded bump/free-list allocator over a Zone's backing bytes.
// The guard is a 4-byte word at offset 0 of the zone used as a
// process-shared test-and-set spinlock: because the zone is mapped
// MAP_SHARED, a CAS against that word is visible to every process that
// mapped the same zone, which is what makes it "process-shared" rather
// than merely an in-process sync.Mutex.
type Slab struct {
	data  []byte
	pages []*page
	// headOffset points past the lock word and the page directory,
	// i.e. the first byte available for page data.
	headOffset int
}

const lockWordSize = 4

func newSlab(data []byte) *Slab {
	return &Slab{data: data, headOffset: lockWordSize}
}

func (s *Slab) lockWord() *uint32 {
	return (*uint32)(ptrAt(s.data, 0))
}

// lock acquires the process-shared spinlock guarding slab metadata.
// Contention backs off with Gosched first and a short sleep once spinning
// has gone on long enough to suspect the holder is doing real work
// elsewhere — the "semaphore fallback" the spec allows in place of a true
// kernel semaphore, without pulling in a cgo POSIX semaphore dependency.
func (s *Slab) lock() {
	w := s.lockWord()
	spins := 0
	for !atomic.CompareAndSwapUint32(w, 0, 1) {
		spins++
		if spins < 1000 {
			runtime.Gosched()
		} else {
			time.Sleep(time.Millisecond)
			spins = 0
		}
	}
}

func (s *Slab) unlock() {
	atomic.StoreUint32(s.lockWord(), 0)
}

func classFor(n int) int {
	if n < minAlloc {
		n = minAlloc
	}
	for _, c := range sizeClasses {
		if n <= c {
			return c
		}
	}
	return 0 // larger than any class: caller must fall back to mmap directly
}

// Alloc returns a zone-relative byte slice of at least n bytes, or nil if
// no class fits (caller should treat that as "too large for the slab").
func (s *Slab) Alloc(n int) []byte {
	class := classFor(n)
	if class == 0 {
		return nil
	}
	s.lock()
	defer s.unlock()

	for _, p := range s.pages {
		if p.class != class {
			continue
		}
		if idx, ok := firstFreeBit(p.bitmap); ok {
			clearBit(p.bitmap, idx)
			off := p.offset + idx*class
			return s.data[off : off+class]
		}
	}
	// No page with a free slot: carve a new page for this class.
	p := s.newPage(class)
	if p == nil {
		return nil // zone exhausted
	}
	s.pages = append(s.pages, p)
	clearBit(p.bitmap, 0)
	return s.data[p.offset : p.offset+class]
}

// Free returns a slab-allocated slice to its page's free bitmap.
func (s *Slab) Free(b []byte) {
	if len(b) == 0 {
		return
	}
	off := sliceOffset(s.data, b)
	s.lock()
	defer s.unlock()
	for _, p := range s.pages {
		if off >= p.offset && off < p.offset+p.slots*p.class {
			idx := (off - p.offset) / p.class
			setBit(p.bitmap, idx)
			return
		}
	}
}

const pageBudget = 64 * 1024 // bytes of zone space committed per new page

func (s *Slab) newPage(class int) *page {
	slots := pageBudget / class
	if slots == 0 {
		slots = 1
	}
	need := slots * class
	if s.headOffset+need > len(s.data) {
		// Shrink to whatever remains; a tiny zone still gets one page.
		remaining := len(s.data) - s.headOffset
		if remaining < class {
			return nil
		}
		slots = remaining / class
		need = slots * class
	}
	p := &page{
		class:  class,
		offset: s.headOffset,
		slots:  slots,
		bitmap: make([]uint64, (slots+63)/64),
	}
	for i := range p.bitmap {
		p.bitmap[i] = ^uint64(0)
	}
	s.headOffset += need
	return p
}

func firstFreeBit(bm []uint64) (int, bool) {
	for w, word := range bm {
		if word == 0 {
			continue
		}
		for b := 0; b < 64; b++ {
			if word&(1<<uint(b)) != 0 {
				return w*64 + b, true
			}
		}
	}
	return 0, false
}

func clearBit(bm []uint64, idx int) { bm[idx/64] &^= 1 << uint(idx%64) }
func setBit(bm []uint64, idx int)   { bm[idx/64] |= 1 << uint(idx%64) }
