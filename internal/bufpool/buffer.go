// Package bufpool implements the linear-ownership packet buffer and the
// bounded FIFO queue used throughout esix (spec.md §3 "Buffer", §9
// "Ownership of packet buffers", §5 "Shared resources").
//
// Go's garbage collector makes a C-style malloc/free OS-glue layer
// unidiomatic, so esix collapses that part of the spec's downward API to
// nothing: Buffer only keeps the single-owner discipline the spec mandates,
// not the allocator itself.  See DESIGN.md for the full rationale.
package bufpool

import (
	"fmt"
	"sync/atomic"
)

// Buffer is a contiguously allocated byte region with a single owner at any
// given moment.  Once handed to an egress queue, the sender has given up
// ownership and must not touch it again.
type Buffer struct {
	data     []byte
	released atomic.Bool
}

// New allocates a Buffer of the given length, zero-filled.
func New(length int) *Buffer {
	return &Buffer{data: make([]byte, length)}
}

// Wrap takes ownership of b without copying it.
func Wrap(b []byte) *Buffer {
	return &Buffer{data: b}
}

// Bytes returns the buffer's contents.  It must not be called after
// Release.
func (b *Buffer) Bytes() []byte {
	if b.released.Load() {
		panic("bufpool: use of buffer after release")
	}

	return b.data
}

// Len returns the number of bytes currently held.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Release gives up ownership of the buffer.  It must be called exactly once,
// at the last use of the buffer — the egress callback, or a drop on any
// error path between allocation and hand-off (spec.md §9).  Calling it twice
// is a programming error and panics, since a double release is exactly the
// class of bug the single-owner rule exists to catch.
func (b *Buffer) Release() {
	if !b.released.CompareAndSwap(false, true) {
		panic("bufpool: buffer released twice")
	}
}

// Clone returns a new Buffer with a copy of b's contents, leaving b
// untouched.  Used where a packet must be inspected by one consumer and
// independently owned by another (e.g. an ICMPv6 error reply that copies a
// truncated prefix of the original packet as payload).
func (b *Buffer) Clone() *Buffer {
	cp := make([]byte, len(b.Bytes()))
	copy(cp, b.data)

	return Wrap(cp)
}

// String implements fmt.Stringer for diagnostics.
func (b *Buffer) String() string {
	return fmt.Sprintf("bufpool.Buffer{len=%d}", len(b.data))
}
