package cache

import (
	"testing"
	"time"

	"github.com/framegrace/tsunami/buffer"
)

// countingSource renders a trivial two-interval animation (0-100ms,
// 100-300ms) and counts how many times CommandBuffer is invoked.
type countingSource struct {
	calls int
	cycle time.Duration
}

func (s *countingSource) CycleTime() time.Duration { return s.cycle }

func (s *countingSource) CommandBuffer(delta time.Duration) (*buffer.Buffer, buffer.Timing, error) {
	s.calls++
	if delta < 100*time.Millisecond {
		return buffer.New([]byte("a")), buffer.Timing{FrameTime: 100 * time.Millisecond, TimeLeft: 100*time.Millisecond - delta}, nil
	}
	return buffer.New([]byte("b")), buffer.Timing{FrameTime: 200 * time.Millisecond, TimeLeft: 300*time.Millisecond - delta}, nil
}

func TestKeepLastCollapsesRepeatedQueries(t *testing.T) {
	src := &countingSource{cycle: 300 * time.Millisecond}
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }
	c := NewKeepLast(src, clock)

	if _, _, err := c.CommandBuffer(10 * time.Millisecond); err != nil {
		t.Fatalf("CommandBuffer: %v", err)
	}
	if _, _, err := c.CommandBuffer(10 * time.Millisecond); err != nil {
		t.Fatalf("CommandBuffer: %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("expected 1 underlying call while within the cached window, got %d", src.calls)
	}

	now = now.Add(200 * time.Millisecond)
	if _, _, err := c.CommandBuffer(210 * time.Millisecond); err != nil {
		t.Fatalf("CommandBuffer: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("expected a recompute once the cached entry expired, got %d calls", src.calls)
	}
}

func TestComputeOnceMemoizesIntervals(t *testing.T) {
	src := &countingSource{cycle: 300 * time.Millisecond}
	c := NewComputeOnce(src)

	for i := 0; i < 5; i++ {
		if _, _, err := c.CommandBuffer(10 * time.Millisecond); err != nil {
			t.Fatalf("CommandBuffer: %v", err)
		}
	}
	if src.calls != 1 {
		t.Fatalf("expected one render for repeated hits in the same interval, got %d", src.calls)
	}

	if _, _, err := c.CommandBuffer(150 * time.Millisecond); err != nil {
		t.Fatalf("CommandBuffer: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("expected a second render for a distinct interval, got %d", src.calls)
	}

	if _, _, err := c.CommandBuffer(150 * time.Millisecond); err != nil {
		t.Fatalf("CommandBuffer: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("second interval should now be memoized too, got %d calls", src.calls)
	}

	if len(c.intervals) != 2 {
		t.Fatalf("expected 2 stored intervals, got %d", len(c.intervals))
	}
	for i := 1; i < len(c.intervals); i++ {
		if c.intervals[i-1].start > c.intervals[i].start {
			t.Fatalf("intervals are not sorted by start: %v", c.intervals)
		}
		if c.intervals[i-1].end > c.intervals[i].start {
			t.Fatalf("intervals overlap: %v", c.intervals)
		}
	}
}

// TestKeepLastRetainsBeforeServing guards against the cache handing out
// its own reference: a served buffer must survive a Release from the
// caller (mirroring the engine's per-write Release) while the cache
// still serves it again afterward.
func TestKeepLastRetainsBeforeServing(t *testing.T) {
	src := &countingSource{cycle: 300 * time.Millisecond}
	now := time.Unix(0, 0)
	c := NewKeepLast(src, func() time.Time { return now })

	buf, _, err := c.CommandBuffer(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("CommandBuffer: %v", err)
	}
	buf.Release() // simulates the engine releasing after a completed write

	buf2, _, err := c.CommandBuffer(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("CommandBuffer: %v", err)
	}
	buf2.Release() // must not panic: the cache must still hold its own reference
}

// TestComputeOnceRetainsBeforeServing is the ComputeOnce analogue of
// TestKeepLastRetainsBeforeServing.
func TestComputeOnceRetainsBeforeServing(t *testing.T) {
	src := &countingSource{cycle: 300 * time.Millisecond}
	c := NewComputeOnce(src)

	buf, _, err := c.CommandBuffer(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("CommandBuffer: %v", err)
	}
	buf.Release()

	buf2, _, err := c.CommandBuffer(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("CommandBuffer: %v", err)
	}
	buf2.Release()
}

func TestComputeOnceReducesModulo(t *testing.T) {
	src := &countingSource{cycle: 300 * time.Millisecond}
	c := NewComputeOnce(src)

	if _, _, err := c.CommandBuffer(10 * time.Millisecond); err != nil {
		t.Fatalf("CommandBuffer: %v", err)
	}
	if _, _, err := c.CommandBuffer(310 * time.Millisecond); err != nil {
		t.Fatalf("CommandBuffer: %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("expected delta to reduce modulo the cycle and hit the same interval, got %d calls", src.calls)
	}
}
