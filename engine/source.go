package engine

import (
	"time"

	"github.com/framegrace/tsunami/buffer"
)

// BufferSource is the capability every command-buffer provider the
// engine consumes must implement, whether it renders on every call, or
// wraps a cheaper cache in front of a renderer. delta is elapsed time
// since the engine's time anchor; implementations reduce it modulo
// CycleTime themselves.
type BufferSource interface {
	CommandBuffer(delta time.Duration) (*buffer.Buffer, buffer.Timing, error)
	CycleTime() time.Duration
}
