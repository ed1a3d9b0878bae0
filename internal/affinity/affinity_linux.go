// File: internal/affinity/affinity_linux.go
//go:build linux

package affinity

import "golang.org/x/sys/unix"

func platformPin(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}

func platformReset() error {
	n := platformNumCPU()
	var set unix.CPUSet
	set.Zero()
	for i := 0; i < n; i++ {
		set.Set(i)
	}
	return unix.SchedSetaffinity(0, &set)
}

func platformNumCPU() int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return 1
	}
	return set.Count()
}
