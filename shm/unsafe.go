// File: shm/unsafe.go
// Small pointer-arithmetic helpers confined to this file so the rest of
// the package stays ordinary Go. Both operate only within the bounds of a
// zone's own backing slice.
//
// Author: reactorcore contributors
// License: Apache-2.0
package shm

import "unsafe"

func ptrAt(data []byte, offset int) unsafe.Pointer {
	return unsafe.Pointer(&data[offset])
}

// sliceOffset returns b's starting offset within data, assuming b is a
// subslice of data (true for everything Slab hands out).
func sliceOffset(data []byte, b []byte) int {
	base := uintptr(unsafe.Pointer(&data[0]))
	ptr := uintptr(unsafe.Pointer(&b[0]))
	return int(ptr - base)
}
