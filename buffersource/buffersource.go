// Package buffersource composes a decoded media source with a frame
// processor into the engine's BufferSource contract: query by elapsed
// time, get back a ready-to-write command buffer and its timing
// envelope.
package buffersource

import (
	"fmt"
	"time"

	"github.com/framegrace/tsunami/buffer"
	"github.com/framegrace/tsunami/media"
	"github.com/framegrace/tsunami/processor"
)

// CompositeSource renders a frame on every query; callers that want to
// amortize repeated queries within a frame's display window or across
// a full animation cycle wrap a CompositeSource in cache.KeepLast or
// cache.ComputeOnce.
type CompositeSource struct {
	Source    media.Source
	Processor processor.Processor
}

// New builds a CompositeSource from an already-open animation and a
// configured processor.
func New(source media.Source, proc processor.Processor) *CompositeSource {
	return &CompositeSource{Source: source, Processor: proc}
}

func (c *CompositeSource) CycleTime() time.Duration {
	return c.Source.CycleTime()
}

func (c *CompositeSource) CommandBuffer(delta time.Duration) (*buffer.Buffer, buffer.Timing, error) {
	frame, frameTime, timeLeft := c.Source.Frame(delta)
	buf, err := c.Processor.Process(frame)
	if err != nil {
		return nil, buffer.Timing{}, fmt.Errorf("buffersource: process frame: %w", err)
	}
	return buf, buffer.Timing{FrameTime: frameTime, TimeLeft: timeLeft}, nil
}
