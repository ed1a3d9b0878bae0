// File: shm/zone.go
// Package shm implements shared-memory zones with an embedded slab
// allocator (spec.md §4.3), grounded on the teacher's NUMA-aware pool
// package (pool/slab_pool.go, pool/numapool.go) generalized from
// per-process NUMA pools to genuinely cross-process shared memory via
// golang.org/x/sys/unix.Mmap(MAP_SHARED|MAP_ANON) — the same dependency
// the teacher already uses for socket options elsewhere.
//
// Author: reactorcore contributors
// License: Apache-2.0
package shm

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Zone is a named, size-declared shared-memory region with a slab
// allocator living at its start. Its base address is identical across
// every worker that maps it, and — when reused across a cycle swap — in
// every cycle whose declaration matches {Name,Size,Tag}.
type Zone struct {
	Name    string
	Size    int
	Tag     string
	NoReuse bool

	data []byte
	slab *Slab

	// InitData is handed to a reattaching zone's init callback so module
	// state can migrate across a reload without losing the address.
	InitData any
}

// Address returns the zone's mapped base address. Two Zones across cycles
// that inherited the same mapping return the same value (§8 invariant).
func (z *Zone) Address() uintptr {
	if len(z.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&z.data[0]))
}

// Slab returns the zone's embedded allocator.
func (z *Zone) Slab() *Slab { return z.slab }

func mmapAnon(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
}

func munmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Munmap(b)
}

// Registry declares and cross-cycle-reuses zones. One Registry lives in
// the master and is consulted on every cycle build (§4.8 step 2).
type Registry struct {
	mu    sync.Mutex
	zones map[string]*Zone
}

func NewRegistry() *Registry {
	return &Registry{zones: make(map[string]*Zone)}
}

// Declare returns a zone with the given name, creating it if needed.
// Two declarations with the same name but a different size or tag are an
// error — a module bug, not a runtime condition to recover from.
func (r *Registry) Declare(name string, size int, tag string) (*Zone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if z, ok := r.zones[name]; ok {
		if z.Size != size || z.Tag != tag {
			return nil, fmt.Errorf("shm: zone %q redeclared with different size/tag (%d/%q vs %d/%q)",
				name, size, tag, z.Size, z.Tag)
		}
		return z, nil
	}
	z, err := newZone(name, size, tag)
	if err != nil {
		return nil, err
	}
	r.zones[name] = z
	return z, nil
}

func newZone(name string, size int, tag string) (*Zone, error) {
	data, err := mmapAnon(size)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap zone %q (%d bytes): %w", name, size, err)
	}
	z := &Zone{Name: name, Size: size, Tag: tag, data: data}
	z.slab = newSlab(data)
	return z, nil
}

// Reconcile builds the zone set for a new cycle against the zones already
// live in `old`. A zone whose {Name,Size,Tag} matches and is not NoReuse
// inherits the old mapping and address, with initFn invoked with the old
// zone's InitData for migration; a zone with no match, or a mismatched
// match, gets a freshly mapped region. Zones present in `old` but absent
// from `wanted` are destroyed. This is the core of §4.3's cross-cycle
// reuse rule and the §8 property "Z.address in the new cycle == Z.address
// in the old cycle" for reused zones.
func Reconcile(old *Registry, wanted []Declaration, initFn func(z *Zone, prevData any) error) (*Registry, error) {
	next := NewRegistry()
	seen := make(map[string]bool)

	if old != nil {
		old.mu.Lock()
	}
	for _, d := range wanted {
		seen[d.Name] = true
		var prev *Zone
		if old != nil {
			prev = old.zones[d.Name]
		}
		if prev != nil && !d.NoReuse && prev.Size == d.Size && prev.Tag == d.Tag {
			// Inherit mapping and address in place.
			next.zones[d.Name] = prev
			if initFn != nil {
				if err := initFn(prev, prev.InitData); err != nil {
					if old != nil {
						old.mu.Unlock()
					}
					return nil, err
				}
			}
			continue
		}
		z, err := newZone(d.Name, d.Size, d.Tag)
		if err != nil {
			if old != nil {
				old.mu.Unlock()
			}
			return nil, err
		}
		z.NoReuse = d.NoReuse
		if initFn != nil {
			if err := initFn(z, nil); err != nil {
				if old != nil {
					old.mu.Unlock()
				}
				return nil, err
			}
		}
		next.zones[d.Name] = z
	}
	var stale []*Zone
	if old != nil {
		for name, z := range old.zones {
			if !seen[name] {
				stale = append(stale, z)
			}
		}
		old.mu.Unlock()
	}
	for _, z := range stale {
		munmap(z.data)
	}
	return next, nil
}

// Declaration is the configuration-derived request for a zone, as parsed
// from the (out-of-scope) directive grammar and handed to Reconcile.
type Declaration struct {
	Name    string
	Size    int
	Tag     string
	NoReuse bool
}
