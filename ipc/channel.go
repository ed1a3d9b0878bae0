// File: ipc/channel.go
// Package ipc implements the master/worker control channel (spec.md
// §4.10): fixed-size command records exchanged over a socketpair, with
// ancillary file descriptors (listening sockets handed to a new worker,
// or handed back to the master across a binary upgrade) passed via
// SCM_RIGHTS.
//
// Grounded on golang.org/x/sys/unix's Socketpair/Sendmsg/Recvmsg trio,
// the same package the teacher already depends on for raw socket option
// calls (reactor/epoll_reactor.go), generalized here from epoll control
// to fd-passing control.
//
// Author: reactorcore contributors
// License: Apache-2.0
package ipc

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// Command identifies the operation a Message carries, the Go analogue
// of nginx's ngx_channel_t.command values (spec.md §4.10).
type Command uint8

const (
	CmdNop Command = iota
	CmdOpenChannel
	CmdCloseChannel
	CmdQuit
	CmdTerminate
	CmdReopen
	CmdReload
	CmdNewBinary
)

func (c Command) String() string {
	switch c {
	case CmdNop:
		return "NOP"
	case CmdOpenChannel:
		return "OPEN_CHANNEL"
	case CmdCloseChannel:
		return "CLOSE_CHANNEL"
	case CmdQuit:
		return "QUIT"
	case CmdTerminate:
		return "TERMINATE"
	case CmdReopen:
		return "REOPEN"
	case CmdReload:
		return "RELOAD"
	case CmdNewBinary:
		return "NEW_BINARY"
	default:
		return "UNKNOWN"
	}
}

// Message is the fixed-size record exchanged over a Channel.
// wireSize bytes on the wire: 1 (command) + 4 (pid) + 4 (slot).
const wireSize = 1 + 4 + 4

type Message struct {
	Command Command
	PID     int32
	Slot    int32
}

func (m Message) marshal() []byte {
	buf := make([]byte, wireSize)
	buf[0] = byte(m.Command)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(m.PID))
	binary.LittleEndian.PutUint32(buf[5:9], uint32(m.Slot))
	return buf
}

func unmarshal(buf []byte) Message {
	return Message{
		Command: Command(buf[0]),
		PID:     int32(binary.LittleEndian.Uint32(buf[1:5])),
		Slot:    int32(binary.LittleEndian.Uint32(buf[5:9])),
	}
}

// Channel is one end of a bidirectional socketpair used for master/worker
// control messages and fd passing.
type Channel struct {
	fd int
}

// NewPair creates a connected pair of Channels, one for the master's end
// and one to be inherited by the forked worker.
func NewPair() (master, worker *Channel, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("ipc: socketpair: %w", err)
	}
	return &Channel{fd: fds[0]}, &Channel{fd: fds[1]}, nil
}

// FromFD wraps an inherited channel-end fd (e.g. passed down across an
// exec during a binary upgrade).
func FromFD(fd int) *Channel { return &Channel{fd: fd} }

// FD returns the raw socket descriptor, for ExtraFiles inheritance or
// reactor registration.
func (c *Channel) FD() int { return c.fd }

// Close closes the channel.
func (c *Channel) Close() error { return unix.Close(c.fd) }

// Send writes msg, optionally passing fds as ancillary SCM_RIGHTS data.
func (c *Channel) Send(msg Message, fds ...int) error {
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}
	return unix.Sendmsg(c.fd, msg.marshal(), oob, nil, 0)
}

// Recv reads one Message plus any fds passed alongside it. It returns
// unix.EAGAIN unmodified so callers registered with the reactor in
// non-blocking mode can treat it as "nothing pending yet".
func (c *Channel) Recv() (Message, []int, error) {
	buf := make([]byte, wireSize)
	oob := make([]byte, unix.CmsgSpace(4*8)) // room for a handful of fds
	n, oobn, _, _, err := unix.Recvmsg(c.fd, buf, oob, 0)
	if err != nil {
		return Message{}, nil, err
	}
	if n == 0 {
		return Message{}, nil, fmt.Errorf("ipc: channel closed")
	}
	if n != wireSize {
		return Message{}, nil, fmt.Errorf("ipc: short read: got %d bytes, want %d", n, wireSize)
	}
	msg := unmarshal(buf)

	var fds []int
	if oobn > 0 {
		cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return msg, nil, fmt.Errorf("ipc: parsing control message: %w", err)
		}
		for _, cmsg := range cmsgs {
			rights, err := unix.ParseUnixRights(&cmsg)
			if err != nil {
				continue
			}
			fds = append(fds, rights...)
		}
	}
	return msg, fds, nil
}

// SetNonblock puts the channel fd in non-blocking mode so it can be
// registered with the reactor alongside connection sockets.
func (c *Channel) SetNonblock() error {
	return unix.SetNonblock(c.fd, true)
}
