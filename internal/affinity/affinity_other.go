// File: internal/affinity/affinity_other.go
//go:build !linux

package affinity

import "runtime"

func platformPin(cpu int) error { return nil }
func platformReset() error      { return nil }
func platformNumCPU() int       { return runtime.NumCPU() }
