//go:build linux

// File: reactor/backend_linux.go
// Linux epoll backend, adapted from the teacher's
// reactor/epoll_reactor.go: same EpollCreate1/EpollCtl/EpollWait usage,
// generalized to the edge-triggered Backend contract (EPOLLET always
// set, matching spec.md §4.5's edge-triggered path) and to report
// readable/writable/error independently instead of a single bitmask.
//
// Author: reactorcore contributors
// License: Apache-2.0
package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type epollBackend struct {
	epfd int
}

// NewBackend constructs the platform's readiness backend.
func NewBackend() (Backend, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &epollBackend{epfd: epfd}, nil
}

func eventsFor(readable, writable bool) uint32 {
	var e uint32 = unix.EPOLLET
	if readable {
		e |= unix.EPOLLIN
	}
	if writable {
		e |= unix.EPOLLOUT
	}
	return e
}

func (b *epollBackend) Add(fd uintptr, readable, writable bool) error {
	ev := unix.EpollEvent{Events: eventsFor(readable, writable), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev)
}

func (b *epollBackend) Modify(fd uintptr, readable, writable bool) error {
	ev := unix.EpollEvent{Events: eventsFor(readable, writable), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, int(fd), &ev)
}

func (b *epollBackend) Remove(fd uintptr) error {
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
}

func (b *epollBackend) EdgeTriggered() bool { return true }

func (b *epollBackend) Wait(timeoutMs int, out []ReadyEvent) (int, error) {
	raw := make([]unix.EpollEvent, len(out))
	n, err := unix.EpollWait(b.epfd, raw, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("reactor: epoll_wait: %w", err)
	}
	for i := 0; i < n; i++ {
		out[i] = ReadyEvent{
			Fd:       uintptr(raw[i].Fd),
			Readable: raw[i].Events&unix.EPOLLIN != 0,
			Writable: raw[i].Events&unix.EPOLLOUT != 0,
			Err:      raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		}
	}
	return n, nil
}

func (b *epollBackend) Close() error {
	return unix.Close(b.epfd)
}
