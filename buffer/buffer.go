// Package buffer implements the immutable, reference-shareable command
// buffers that flow from a frame processor, through a cache layer, into
// the connection engine, where a kernel write keeps a reference alive
// until the write completion is observed.
package buffer

import (
	"sync/atomic"
	"time"
)

// Buffer is an immutable byte slice shared between a cache (which
// produced it) and one or more in-flight connection writes (which hold
// it live). Refcounting is atomic because CPU frame processing happens
// on worker goroutines even though the engine that ultimately owns the
// write is single-threaded.
type Buffer struct {
	data []byte
	refs atomic.Int32
}

// New wraps data as a Buffer with one reference held by the caller.
func New(data []byte) *Buffer {
	b := &Buffer{data: data}
	b.refs.Store(1)
	return b
}

// Bytes returns the underlying immutable data. Callers must never
// mutate the returned slice.
func (b *Buffer) Bytes() []byte { return b.data }

// Len is the number of bytes in the buffer.
func (b *Buffer) Len() int { return len(b.data) }

// Retain adds a reference, returning the buffer for chaining.
func (b *Buffer) Retain() *Buffer {
	b.refs.Add(1)
	return b
}

// Release drops a reference. It is safe to call even though nothing
// currently frees the backing array early — Go's GC reclaims it once
// every *Buffer referencing it is unreachable; Release exists so cache
// layers and connection records can assert their refcount invariant
// stays non-negative.
func (b *Buffer) Release() {
	if b.refs.Add(-1) < 0 {
		panic("buffer: released more times than retained")
	}
}

// Timing is the validity envelope carried alongside every produced
// buffer: the full display duration of the source frame, and how long
// it remains valid relative to the query time.
type Timing struct {
	FrameTime time.Duration
	TimeLeft  time.Duration
}
