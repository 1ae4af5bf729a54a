// Package processor turns one decoded media.Frame into an ASCII Pixelflut
// command buffer, in CPU (parallel goroutines) and GPU (compute shader)
// variants realizing the same contract.
package processor

import (
	"github.com/framegrace/tsunami/buffer"
	"github.com/framegrace/tsunami/media"
)

// Processor converts a single frame into a ready-to-write command
// buffer. Implementations must be safe to call repeatedly and must not
// retain the passed Frame past the call.
type Processor interface {
	Process(f media.Frame) (*buffer.Buffer, error)
}

// digitLookup is the 16-entry hex digit table both the CPU formatter and
// the GPU kernel's lookup buffer are built from.
var digitLookup = [16]byte{'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', 'a', 'b', 'c', 'd', 'e', 'f'}

func hexByte(dst []byte, v byte) {
	dst[0] = digitLookup[v>>4]
	dst[1] = digitLookup[v&0xf]
}
