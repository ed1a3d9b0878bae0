// File: buffer/chain_ops.go
// Operations over Chain: coalescing contiguous file ranges for batched
// sendfile-style writes, marking bytes sent, and reclaiming spent buffers
// back to their owning producer's free list. Grounded on the equivalent
// ngx_output_chain_* / ngx_chain_update_sent / ngx_chain_update_chains
// logic described in spec.md §4.2 (ngx_buf.c is not itself in
// original_source, but the chain-bookkeeping idiom is the same one
// ngx_event_pipe.c and ngx_http_write_filter_module.c share; the
// descriptor shape comes from ngx_buf.c/ngx_buf.h, which is present).
//
// Author: reactorcore contributors
// License: Apache-2.0
package buffer

// PageSize is the alignment boundary CoalesceFile snaps a cut file
// buffer to, matching the original's use of ngx_pagesize.
const PageSize = 4096

// CoalesceFile walks a prefix of the chain that refers to the same file
// descriptor with contiguous FilePos values, accumulating up to limit
// bytes. If limit cuts a buffer, the cut is rounded down to the nearest
// page boundary (never up — the result must never exceed limit). It
// returns the coalesced length and advances chain.Head past whatever was
// fully consumed by the coalesced run.
func CoalesceFile(chain *Chain, limit int64) int64 {
	if chain == nil || chain.Head == nil || limit <= 0 {
		return 0
	}

	var total int64

	link := chain.Head
	first := link.Buf
	if first.Flags&InFile == 0 {
		return 0
	}
	file := first.File
	expectedPos := first.FilePos

	var prev *Link
	for link != nil {
		b := link.Buf
		if b.Flags&InFile == 0 || b.File != file || b.FilePos != expectedPos {
			break
		}
		size := b.FileLast - b.FilePos
		if total+size > limit {
			remaining := limit - total
			cut := b.FilePos + remaining
			// Round the cut down to the page boundary at or below it, so a
			// short, unaligned tail isn't issued as its own syscall. Never
			// round up: that would return more than limit bytes. Skip the
			// alignment entirely if it would leave nothing for this buffer.
			aligned := (cut / PageSize) * PageSize
			if aligned > b.FilePos {
				cut = aligned
				remaining = cut - b.FilePos
			}
			total += remaining
			b.FilePos = cut
			if prev == nil {
				chain.Head = link
			} else {
				prev.Next = link
			}
			return total
		}
		total += size
		expectedPos = b.FileLast
		prev = link
		link = link.Next
	}
	// Entire coalesced run was consumed; advance head past it.
	chain.Head = link
	return total
}

// UpdateSent walks the chain in order, fully consuming buffers (advancing
// Pos/FilePos to their end and continuing) until `sent` bytes have been
// accounted for, then partially consumes and stops at the buffer that
// absorbed the remainder. The consumed prefix has exact length `sent`
// summed over buffers touched.
func UpdateSent(chain *Chain, sent int64) {
	for link := chain.Head; link != nil && sent > 0; link = link.Next {
		b := link.Buf
		size := b.Size()
		if size == 0 {
			continue
		}
		if sent >= size {
			sent -= size
			if b.Flags&InFile != 0 {
				b.FilePos = b.FileLast
			} else {
				b.Pos = b.Last
			}
			continue
		}
		if b.Flags&InFile != 0 {
			b.FilePos += sent
		} else {
			b.Pos += int(sent)
		}
		sent = 0
	}
}

// UpdateChains appends out to busy, then peels spent buffers off the head
// of busy: a buffer whose Tag differs from `tag` is handed to the free
// callback immediately (it belongs to a different producer, which reclaims
// it on its own schedule); a buffer whose Tag matches and is empty is reset
// to Pos=Last=Start and handed to free. The walk stops at the first
// non-empty buffer that belongs to this tag, since everything after it is
// still in flight.
func UpdateChains(busy *Chain, out *Chain, tag any, free func(*Buffer)) {
	busy.AppendChain(out)
	out.Head = nil

	for busy.Head != nil {
		b := busy.Head.Buf
		if b.Tag != tag {
			free(b)
			busy.Head = busy.Head.Next
			continue
		}
		if !b.Empty() {
			break
		}
		b.Pos, b.Last = b.Start, b.Start
		free(b)
		busy.Head = busy.Head.Next
	}
}
