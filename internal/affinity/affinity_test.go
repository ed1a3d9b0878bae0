package affinity

import (
	"runtime"
	"testing"
)

func TestNumCPUIsPositive(t *testing.T) {
	if NumCPU() < 1 {
		t.Fatal("expected at least one CPU reported")
	}
}

func TestPinCurrentThreadToValidCPUSucceeds(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := PinCurrentThread(0); err != nil {
		t.Fatalf("expected pinning to CPU 0 to succeed, got %v", err)
	}
	if err := Reset(); err != nil {
		t.Fatalf("expected affinity reset to succeed, got %v", err)
	}
}
