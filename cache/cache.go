// Package cache wraps an engine.BufferSource with memoization that
// exploits animation cyclicity: KeepLast collapses repeated queries
// within one frame's display window to a single render, ComputeOnce
// memoizes every distinct interval of a bounded timeline so a fully
// explored animation never re-renders.
package cache

import (
	"sort"
	"time"

	"github.com/framegrace/tsunami/buffer"
)

// Source is the subset of engine.BufferSource a cache wraps. Defined
// locally (rather than importing engine) to keep cache a leaf package;
// engine.BufferSource satisfies it structurally.
type Source interface {
	CommandBuffer(delta time.Duration) (*buffer.Buffer, buffer.Timing, error)
	CycleTime() time.Duration
}

// Clock abstracts wall-clock time so KeepLast's expiry logic is
// testable without sleeping.
type Clock func() time.Time

// KeepLast stores at most one rendered buffer and the wall-clock
// instant it expires at. Under steady fast polling within one frame's
// display window, every query after the first returns the stored
// buffer without touching the inner source. The cache holds its own
// reference to the stored buffer for as long as it's current; every
// served copy is a separate Retain so the caller's eventual Release
// never drops the cache's own hold.
type KeepLast struct {
	inner Source
	now   Clock

	have   bool
	expiry time.Time
	frame  time.Duration
	buf    *buffer.Buffer
}

// NewKeepLast wraps inner. A nil clock defaults to time.Now.
func NewKeepLast(inner Source, clock Clock) *KeepLast {
	if clock == nil {
		clock = time.Now
	}
	return &KeepLast{inner: inner, now: clock}
}

func (c *KeepLast) CycleTime() time.Duration { return c.inner.CycleTime() }

func (c *KeepLast) CommandBuffer(delta time.Duration) (*buffer.Buffer, buffer.Timing, error) {
	delta = reduceModulo(delta, c.inner.CycleTime())

	now := c.now()
	if c.have && !now.After(c.expiry) {
		return c.buf.Retain(), buffer.Timing{FrameTime: c.frame, TimeLeft: c.expiry.Sub(now)}, nil
	}

	buf, timing, err := c.inner.CommandBuffer(delta)
	if err != nil {
		return nil, buffer.Timing{}, err
	}
	if c.have {
		c.buf.Release()
	}
	c.have = true
	c.expiry = now.Add(timing.TimeLeft)
	c.frame = timing.FrameTime
	c.buf = buf
	return buf.Retain(), timing, nil
}

// interval is one memoized span of the animation timeline, [start, end)
// in elapsed-delta terms, with the buffer rendered for any delta inside it.
type interval struct {
	start, end time.Duration
	frameTime  time.Duration
	buf        *buffer.Buffer
}

// ComputeOnce stores a sorted, non-overlapping set of timeline
// intervals. Once an animation's full cycle has been explored, steady
// state costs one binary search and zero recomputation. Each interval's
// buffer is held by the cache indefinitely; every served copy is a
// separate Retain.
type ComputeOnce struct {
	inner     Source
	intervals []interval
}

// NewComputeOnce wraps inner.
func NewComputeOnce(inner Source) *ComputeOnce {
	return &ComputeOnce{inner: inner}
}

func (c *ComputeOnce) CycleTime() time.Duration { return c.inner.CycleTime() }

func (c *ComputeOnce) CommandBuffer(delta time.Duration) (*buffer.Buffer, buffer.Timing, error) {
	delta = reduceModulo(delta, c.inner.CycleTime())

	if i, ok := c.find(delta); ok {
		iv := c.intervals[i]
		return iv.buf.Retain(), buffer.Timing{FrameTime: iv.frameTime, TimeLeft: iv.end - delta}, nil
	}

	buf, timing, err := c.inner.CommandBuffer(delta)
	if err != nil {
		return nil, buffer.Timing{}, err
	}

	end := delta + timing.TimeLeft
	start := end - timing.FrameTime
	c.insert(interval{start: start, end: end, frameTime: timing.FrameTime, buf: buf})
	return buf.Retain(), timing, nil
}

// find binary-searches for an interval containing delta.
func (c *ComputeOnce) find(delta time.Duration) (int, bool) {
	i := sort.Search(len(c.intervals), func(i int) bool {
		return c.intervals[i].end > delta
	})
	if i < len(c.intervals) && c.intervals[i].start <= delta && delta < c.intervals[i].end {
		return i, true
	}
	return 0, false
}

func (c *ComputeOnce) insert(iv interval) {
	i := sort.Search(len(c.intervals), func(i int) bool {
		return c.intervals[i].start >= iv.start
	})
	c.intervals = append(c.intervals, interval{})
	copy(c.intervals[i+1:], c.intervals[i:])
	c.intervals[i] = iv
}

func reduceModulo(delta, cycle time.Duration) time.Duration {
	if cycle == infiniteCycle || cycle <= 0 {
		return delta
	}
	d := delta % cycle
	if d < 0 {
		d += cycle
	}
	return d
}

// infiniteCycle mirrors media.Infinite without importing media, since
// cache only needs the sentinel value, not the package's decode surface.
const infiniteCycle = time.Duration(1<<63 - 1)
