// File: buffer/buffer.go
// Package buffer implements the zero-copy buffer descriptor and chain-link
// types from spec.md §3/§4.2. Grounded on
// _examples/original_source/src/core/ngx_buf.c (ngx_buf_t / ngx_chain_t)
// and the teacher's api/buffer.go Buffer-as-struct style (avoids interface
// boxing on the hot path).
//
// Author: reactorcore contributors
// License: Apache-2.0
package buffer

import "os"

// Flags mirrors the exhaustive flag list in spec.md §3 Buffer.
type Flags uint16

const (
	Temporary Flags = 1 << iota
	Memory
	Mmap
	InFile
	Flush
	LastInChain
	LastInRequest
	Sync
	Special
)

// Buffer is a byte-range descriptor over either an in-memory slice or a
// file region — never both. start ≤ pos ≤ last ≤ end always holds for the
// memory case; the file case uses FilePos/FileLast analogously.
type Buffer struct {
	Data  []byte // backing storage for the in-memory case
	Start int
	End   int
	Pos   int
	Last  int

	File     *os.File
	FilePos  int64
	FileLast int64

	Flags Flags

	// Tag identifies the producer that owns this buffer, so a producer
	// can reclaim only its own buffers from a shared send queue (see
	// UpdateChains).
	Tag any
}

// NewMemory wraps data as a temporary, writable memory buffer spanning the
// whole slice, matching ngx_create_temp_buf.
func NewMemory(data []byte, tag any) *Buffer {
	return &Buffer{
		Data: data, Start: 0, End: len(data), Pos: 0, Last: 0,
		Flags: Temporary | Memory, Tag: tag,
	}
}

// NewFile describes a [pos,last) byte range of an open file, used for
// sendfile-style zero-copy transmission.
func NewFile(f *os.File, pos, last int64, tag any) *Buffer {
	return &Buffer{File: f, FilePos: pos, FileLast: last, Flags: InFile, Tag: tag}
}

// Bytes returns the valid (unread) region [Pos,Last) for a memory buffer.
func (b *Buffer) Bytes() []byte {
	if b.Flags&InFile != 0 {
		return nil
	}
	return b.Data[b.Pos:b.Last]
}

// Size reports the number of unread/unsent bytes, memory or file.
func (b *Buffer) Size() int64 {
	if b.Flags&InFile != 0 {
		return b.FileLast - b.FilePos
	}
	return int64(b.Last - b.Pos)
}

// Empty reports whether the buffer has nothing left to send and carries no
// special out-of-band marker (special buffers, e.g. flush/last markers
// with no payload, are never "consumed away" by size alone).
func (b *Buffer) Empty() bool {
	return b.Size() == 0 && b.Flags&Special == 0
}

// Link is one node of a Chain: the unit of I/O submission to the send path.
type Link struct {
	Buf  *Buffer
	Next *Link
}

// Chain is a lazy byte sequence expressed as a linked list of Links.
type Chain struct {
	Head *Link
}

// Append adds a buffer to the end of the chain.
func (c *Chain) Append(b *Buffer) {
	l := &Link{Buf: b}
	if c.Head == nil {
		c.Head = l
		return
	}
	tail := c.Head
	for tail.Next != nil {
		tail = tail.Next
	}
	tail.Next = l
}

// AppendChain splices another chain's links onto the end of c.
func (c *Chain) AppendChain(other *Chain) {
	if other == nil || other.Head == nil {
		return
	}
	if c.Head == nil {
		c.Head = other.Head
		return
	}
	tail := c.Head
	for tail.Next != nil {
		tail = tail.Next
	}
	tail.Next = other.Head
}
