package processor

import (
	"runtime"
	"strconv"
	"sync"

	"github.com/framegrace/tsunami/buffer"
	"github.com/framegrace/tsunami/draworder"
	"github.com/framegrace/tsunami/media"
)

// CPU is the data-parallel frame processor. It holds the precomputed
// draw order, the canvas placement offset, and the canvas bounds; each
// call to Process walks the draw order across a worker pool, formatting
// one PX line per in-bounds pixel, and reassembles the chunks in draw
// order.
type CPU struct {
	order   []draworder.Point
	offsetX uint16
	offsetY uint16
	canvasW uint16
	canvasH uint16
	workers int
}

// NewCPU precomputes the draw order for a size.X×size.Y frame once, at
// construction, so Process never pays for it again.
func NewCPU(size draworder.Point, offsetX, offsetY, canvasW, canvasH uint16, strategy draworder.Strategy) *CPU {
	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}
	return &CPU{
		order:   draworder.Generate(size.X, size.Y, strategy),
		offsetX: offsetX,
		offsetY: offsetY,
		canvasW: canvasW,
		canvasH: canvasH,
		workers: workers,
	}
}

func (p *CPU) Process(f media.Frame) (*buffer.Buffer, error) {
	n := len(p.order)
	if n == 0 {
		return buffer.New(nil), nil
	}

	chunks := p.workers
	if chunks > n {
		chunks = n
	}
	chunkSize := (n + chunks - 1) / chunks

	results := make([][]byte, chunks)
	var wg sync.WaitGroup
	for c := 0; c < chunks; c++ {
		start := c * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(c, start, end int) {
			defer wg.Done()
			results[c] = p.renderChunk(f, p.order[start:end])
		}(c, start, end)
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		total += len(r)
	}
	out := make([]byte, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}
	return buffer.New(out), nil
}

// renderChunk formats every in-bounds pixel in order into one
// contiguous byte slice, so the caller can concatenate chunk results
// without interleaving pixels from different chunks.
func (p *CPU) renderChunk(f media.Frame, chunk []draworder.Point) []byte {
	// 24 bytes/pixel ("PX 65535 65535 RRGGBBAA\n") upper bound.
	out := make([]byte, 0, len(chunk)*24)
	var lineBuf [32]byte

	for _, pt := range chunk {
		xx := pt.X + p.offsetX
		yy := pt.Y + p.offsetY
		if xx >= p.canvasW || yy >= p.canvasH {
			continue
		}

		px := f.At(pt.X, pt.Y)
		var r, g, b, a byte
		switch f.Order {
		case media.BGRA:
			b, g, r, a = px[0], px[1], px[2], px[3]
		default:
			r, g, b, a = px[0], px[1], px[2], px[3]
		}

		n := copy(lineBuf[:], "PX ")
		n += copy(lineBuf[n:], strconv.Itoa(int(xx)))
		lineBuf[n] = ' '
		n++
		n += copy(lineBuf[n:], strconv.Itoa(int(yy)))
		lineBuf[n] = ' '
		n++

		switch {
		case a == 0xFF && r == g && g == b:
			hexByte(lineBuf[n:], r)
			n += 2
		case a == 0xFF:
			hexByte(lineBuf[n:], r)
			hexByte(lineBuf[n+2:], g)
			hexByte(lineBuf[n+4:], b)
			n += 6
		default:
			hexByte(lineBuf[n:], r)
			hexByte(lineBuf[n+2:], g)
			hexByte(lineBuf[n+4:], b)
			hexByte(lineBuf[n+6:], a)
			n += 8
		}
		lineBuf[n] = '\n'
		n++

		out = append(out, lineBuf[:n]...)
	}
	return out
}
