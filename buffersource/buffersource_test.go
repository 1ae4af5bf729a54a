package buffersource

import (
	"errors"
	"testing"
	"time"

	"github.com/framegrace/tsunami/buffer"
	"github.com/framegrace/tsunami/media"
)

type fakeSource struct {
	cycle     time.Duration
	frame     media.Frame
	frameTime time.Duration
	timeLeft  time.Duration
}

func (f *fakeSource) Size() (uint16, uint16)      { return f.frame.Width, f.frame.Height }
func (f *fakeSource) CycleTime() time.Duration    { return f.cycle }
func (f *fakeSource) Frame(time.Duration) (media.Frame, time.Duration, time.Duration) {
	return f.frame, f.frameTime, f.timeLeft
}

type fakeProcessor struct {
	err  error
	last media.Frame
}

func (p *fakeProcessor) Process(f media.Frame) (*buffer.Buffer, error) {
	p.last = f
	if p.err != nil {
		return nil, p.err
	}
	return buffer.New([]byte("PX 0 0 00\n")), nil
}

func TestCompositeSourceForwardsFrameAndTiming(t *testing.T) {
	src := &fakeSource{cycle: 300 * time.Millisecond, frameTime: 100 * time.Millisecond, timeLeft: 40 * time.Millisecond}
	proc := &fakeProcessor{}
	c := New(src, proc)

	if c.CycleTime() != 300*time.Millisecond {
		t.Fatalf("CycleTime() = %v, want 300ms", c.CycleTime())
	}

	buf, timing, err := c.CommandBuffer(123 * time.Millisecond)
	if err != nil {
		t.Fatalf("CommandBuffer: %v", err)
	}
	if string(buf.Bytes()) != "PX 0 0 00\n" {
		t.Fatalf("buffer = %q, want the processor's output", buf.Bytes())
	}
	if timing.FrameTime != 100*time.Millisecond || timing.TimeLeft != 40*time.Millisecond {
		t.Fatalf("timing = %+v, want FrameTime=100ms TimeLeft=40ms", timing)
	}
}

func TestCompositeSourceWrapsProcessorError(t *testing.T) {
	src := &fakeSource{}
	proc := &fakeProcessor{err: errors.New("boom")}
	c := New(src, proc)

	if _, _, err := c.CommandBuffer(0); err == nil {
		t.Fatal("expected CommandBuffer to surface the processor error")
	}
}
