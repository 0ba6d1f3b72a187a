package session

import (
	"fmt"
	"sync/atomic"
)

// DefaultMaxBodySize caps response buffers.
const DefaultMaxBodySize = 4096

// Allocator hands out response buffers no larger than Limit and keeps
// track of how many are still held.
type Allocator struct {
	limit int

	outstanding atomic.Int64
	allocated   atomic.Int64
}

// NewAllocator creates an allocator with the given cap in bytes.
func NewAllocator(limit int) *Allocator {
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	return &Allocator{limit: limit}
}

// Limit returns the cap in bytes.
func (a *Allocator) Limit() int { return a.limit }

// Alloc returns a buffer of exactly size bytes.
func (a *Allocator) Alloc(size int) (*Buffer, error) {
	if size < 0 || size > a.limit {
		return nil, fmt.Errorf("buffer size %d outside 0..%d", size, a.limit)
	}
	a.outstanding.Add(1)
	a.allocated.Add(1)
	return &Buffer{data: make([]byte, size), alloc: a}, nil
}

// Outstanding returns the number of buffers not yet released.
func (a *Allocator) Outstanding() int64 { return a.outstanding.Load() }

// Allocated returns the number of buffers handed out so far.
func (a *Allocator) Allocated() int64 { return a.allocated.Load() }

// Buffer is a response body owned by one fetch cycle.
type Buffer struct {
	data     []byte
	n        int
	alloc    *Allocator
	released bool
}

// Bytes returns the received body without the terminator.
func (b *Buffer) Bytes() []byte {
	if b == nil || b.released {
		return nil
	}
	return b.data[:b.n]
}

// Len returns the number of body bytes received.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return b.n
}

// Cap returns the allocated size including the terminator slot.
func (b *Buffer) Cap() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Released reports whether Release has been called.
func (b *Buffer) Released() bool { return b == nil || b.released }

// Release returns the buffer. Safe to call more than once and on nil.
func (b *Buffer) Release() {
	if b == nil || b.released {
		return
	}
	b.released = true
	b.data = nil
	b.alloc.outstanding.Add(-1)
}

// terminate records n received bytes and writes a zero at index n.
func (b *Buffer) terminate(n int) {
	b.n = n
	b.data[n] = 0
}
