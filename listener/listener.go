// File: listener/listener.go
// Package listener manages listening sockets across config reloads and
// worker spawns (spec.md §4.7): opening fresh sockets with per-socket
// options (SO_REUSEADDR, SO_REUSEPORT, IPV6_V6ONLY, TCP_DEFER_ACCEPT) and
// wrapping fds passed down via REACTORCORE_LISTEN_FDS. A listener is not
// cloned per worker: every worker inherits the same socket. Close closes
// the socket at once; it does not wait for pending accepts.
//
// Grounded on the teacher's server/server.go listen-socket setup
// (SO_REUSEADDR, non-blocking accept loop) and golang.org/x/sys/unix's
// raw socket option calls, since net.Listen can neither hand back a raw
// fd for inheritance nor set SO_REUSEPORT before bind.
//
// Author: reactorcore contributors
// License: Apache-2.0
package listener

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ListenFDsEnv is the environment variable a re-exec'd master passes
// inherited listener fds through (file descriptor numbers, comma
// separated), the Go-idiomatic analogue of nginx's NGINX env var.
const ListenFDsEnv = "REACTORCORE_LISTEN_FDS"

// Options configures one listening socket (spec.md §4.7 "per-listener
// socket options").
type Options struct {
	Address     string // host:port or unix:/path
	Backlog     int
	ReusePort   bool
	ReuseAddr   bool
	IPv6Only    bool
	DeferAccept bool
}

// Listener wraps a raw listening socket plus the options it was opened
// with, so a later cycle can tell whether a listener can be reused as-is
// or must be recreated.
type Listener struct {
	Opts Options
	fd   int
	addr net.Addr
}

// FD returns the raw socket descriptor for epoll registration or fd
// inheritance across an exec.
func (l *Listener) FD() int { return l.fd }

// Addr returns the bound local address.
func (l *Listener) Addr() net.Addr { return l.addr }

// Accept performs one non-blocking accept, returning (connFD, addr,
// false, nil) on success, or (0, nil, true, nil) when nothing is
// currently pending (EAGAIN), matching the reactor's edge-triggered
// drain-to-EAGAIN discipline (spec.md §4.5 "drain until EAGAIN").
func (l *Listener) Accept() (fd int, addr net.Addr, wouldBlock bool, err error) {
	nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil, true, nil
		}
		if err == unix.EINTR || err == unix.ECONNABORTED {
			return 0, nil, true, nil
		}
		return 0, nil, false, err
	}
	return nfd, sockaddrToAddr(sa), false, nil
}

// Close closes the underlying socket.
func (l *Listener) Close() error {
	return unix.Close(l.fd)
}

// Open binds a fresh listening socket with the given options.
func Open(opts Options) (*Listener, error) {
	network, sockAddr, domain, err := parseAddress(opts.Address)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("listener: socket: %w", err)
	}
	if opts.ReuseAddr {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("listener: SO_REUSEADDR: %w", err)
		}
	}
	if opts.ReusePort {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("listener: SO_REUSEPORT: %w", err)
		}
	}
	if domain == unix.AF_INET6 && opts.IPv6Only {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("listener: IPV6_V6ONLY: %w", err)
		}
	}
	if opts.DeferAccept && network == "tcp" {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_DEFER_ACCEPT, 1)
	}

	if err := unix.Bind(fd, sockAddr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listener: bind %s: %w", opts.Address, err)
	}
	backlog := opts.Backlog
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listener: listen %s: %w", opts.Address, err)
	}

	return &Listener{Opts: opts, fd: fd, addr: addrFromOptions(opts)}, nil
}

// FromFD wraps an inherited, already-listening fd (passed down across a
// binary upgrade exec, spec.md §4.9) without touching socket options.
func FromFD(fd int, opts Options) *Listener {
	return &Listener{Opts: opts, fd: fd, addr: addrFromOptions(opts)}
}

// InheritedFDs parses ListenFDsEnv into the raw descriptor numbers this
// process was exec'd with; the worker entry point calls it.
func InheritedFDs() []int {
	v := os.Getenv(ListenFDsEnv)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	fds := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		fds = append(fds, n)
	}
	return fds
}

// EncodeInheritedFDs renders a list of raw fds for ListenFDsEnv, used by
// the master when it spawns a worker process.
func EncodeInheritedFDs(fds []int) string {
	parts := make([]string, len(fds))
	for i, fd := range fds {
		parts[i] = strconv.Itoa(fd)
	}
	return strings.Join(parts, ",")
}

func addrFromOptions(opts Options) net.Addr {
	return &namedAddr{network: "tcp", address: opts.Address}
}

type namedAddr struct {
	network, address string
}

func (a *namedAddr) Network() string { return a.network }
func (a *namedAddr) String() string  { return a.address }

func parseAddress(addr string) (network string, sa unix.Sockaddr, domain int, err error) {
	if strings.HasPrefix(addr, "unix:") {
		path := strings.TrimPrefix(addr, "unix:")
		return "unix", &unix.SockaddrUnix{Name: path}, unix.AF_UNIX, nil
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", nil, 0, fmt.Errorf("listener: invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", nil, 0, fmt.Errorf("listener: invalid port %q: %w", portStr, err)
	}
	if host == "" || host == "*" {
		host = "0.0.0.0"
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return "", nil, 0, fmt.Errorf("listener: cannot resolve %q", host)
		}
		ip = ips[0]
	}
	if ip4 := ip.To4(); ip4 != nil {
		var a [4]byte
		copy(a[:], ip4)
		return "tcp", &unix.SockaddrInet4{Port: port, Addr: a}, unix.AF_INET, nil
	}
	var a [16]byte
	copy(a[:], ip.To16())
	return "tcp", &unix.SockaddrInet6{Port: port, Addr: a}, unix.AF_INET6, nil
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(s.Addr[:]), Port: s.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(s.Addr[:]), Port: s.Port}
	case *unix.SockaddrUnix:
		return &net.UnixAddr{Name: s.Name, Net: "unix"}
	default:
		return nil
	}
}
