// File: internal/affinity/affinity.go
// Package affinity pins worker OS threads to specific CPUs (spec.md §4.9
// "bind worker N to CPU N when configured", the Go analogue of nginx's
// worker_cpu_affinity). Adapted from the teacher's
// internal/concurrency/affinity_linux.go, whose cgo+libnuma path was
// itself a simplified stub returning constants rather than calling into
// NUMA; golang.org/x/sys/unix.SchedSetaffinity does the real pinning
// syscall without cgo, so the cgo dependency is dropped rather than
// carried forward unused (justified in DESIGN.md).
//
// Author: reactorcore contributors
// License: Apache-2.0
package affinity

// PinCurrentThread binds the calling OS thread to cpu. Callers must have
// called runtime.LockOSThread() first so the goroutine is not migrated
// off the pinned thread afterward.
func PinCurrentThread(cpu int) error {
	return platformPin(cpu)
}

// Reset clears any affinity mask previously set on the calling thread.
func Reset() error {
	return platformReset()
}

// NumCPU returns the number of CPUs available to this process.
func NumCPU() int {
	return platformNumCPU()
}
