// File: conn/io.go
// Read/Write/Close on Connection, making it satisfy api.Connection
// directly over its raw non-blocking socket fd. Grounded on the
// teacher's protocol/connection.go RecvZeroCopy/Send methods, simplified
// from that package's buffer-chain zero-copy path to a plain byte-slice
// read/write since the handler contract (api.Handler) already receives
// pool-backed scratch space from its caller.
//
// Author: reactorcore contributors
// License: Apache-2.0
package conn

import (
	"io"

	"golang.org/x/sys/unix"
)

// Read implements api.Connection. EAGAIN is surfaced as (0, nil) so the
// reactor's edge-triggered discipline ("drain until EAGAIN") can tell
// "nothing more right now" apart from an actual error.
func (c *Connection) Read(dst []byte) (int, error) {
	n, err := unix.Read(int(c.socket), dst)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	c.BytesIn += int64(n)
	return n, nil
}

func (c *Connection) Write(src []byte) (int, error) {
	n, err := unix.Write(int(c.socket), src)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil
		}
		return 0, err
	}
	c.BytesOut += int64(n)
	return n, nil
}

func (c *Connection) Close() error {
	return unix.Close(int(c.socket))
}
