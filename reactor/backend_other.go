//go:build !linux

// File: reactor/backend_other.go
// Non-Linux placeholder backend. spec.md §9 notes the Windows IOCP path
// is a completion-based model, not a readiness-based one, and that a
// faithful reimplementation "may omit Windows and state so": this
// package only targets the readiness (epoll) model, so non-Linux
// platforms get a backend that reports itself unavailable rather than a
// silently-incorrect polling loop.
//
// Author: reactorcore contributors
// License: Apache-2.0
package reactor

import "github.com/nginxgo/reactorcore/api"

type unsupportedBackend struct{}

// NewBackend returns an error on any platform other than Linux.
func NewBackend() (Backend, error) {
	return nil, api.ErrNotSupported
}

func (unsupportedBackend) Add(fd uintptr, readable, writable bool) error    { return api.ErrNotSupported }
func (unsupportedBackend) Modify(fd uintptr, readable, writable bool) error { return api.ErrNotSupported }
func (unsupportedBackend) Remove(fd uintptr) error                         { return api.ErrNotSupported }
func (unsupportedBackend) EdgeTriggered() bool                            { return false }
func (unsupportedBackend) Wait(timeoutMs int, out []ReadyEvent) (int, error) {
	return 0, api.ErrNotSupported
}
func (unsupportedBackend) Close() error { return nil }
