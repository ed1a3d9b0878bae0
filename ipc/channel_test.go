package ipc

import (
	"os"
	"testing"
)

func TestSendRecvRoundTripsMessage(t *testing.T) {
	a, b, err := NewPair()
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	defer b.Close()

	want := Message{Command: CmdReload, PID: 1234, Slot: 2}
	if err := a.Send(want); err != nil {
		t.Fatal(err)
	}
	got, fds, err := b.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if len(fds) != 0 {
		t.Fatalf("expected no fds, got %v", fds)
	}
}

func TestSendRecvPassesAncillaryFD(t *testing.T) {
	a, b, err := NewPair()
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	defer b.Close()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	msg := Message{Command: CmdOpenChannel, Slot: 5}
	if err := a.Send(msg, int(r.Fd())); err != nil {
		t.Fatal(err)
	}
	got, fds, err := b.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if got.Command != CmdOpenChannel {
		t.Fatalf("expected CmdOpenChannel, got %v", got.Command)
	}
	if len(fds) != 1 {
		t.Fatalf("expected exactly one passed fd, got %v", fds)
	}
}

func TestCommandStringCoversKnownValues(t *testing.T) {
	for _, c := range []Command{CmdNop, CmdOpenChannel, CmdCloseChannel, CmdQuit, CmdTerminate, CmdReopen, CmdReload, CmdNewBinary} {
		if c.String() == "UNKNOWN" {
			t.Fatalf("command %d missing from String()", c)
		}
	}
}
