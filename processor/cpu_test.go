package processor

import (
	"testing"

	"github.com/framegrace/tsunami/draworder"
	"github.com/framegrace/tsunami/media"
)

func TestCPUGreyscaleStill(t *testing.T) {
	f := media.Frame{
		Width:  2,
		Height: 2,
		Order:  media.RGBA,
		Pixels: []media.Pixel{
			{0x80, 0x80, 0x80, 0xFF}, {0x80, 0x80, 0x80, 0xFF},
			{0x80, 0x80, 0x80, 0xFF}, {0x80, 0x80, 0x80, 0xFF},
		},
	}
	p := NewCPU(draworder.Point{X: 2, Y: 2}, 0, 0, 2, 2, draworder.Down)
	buf, err := p.Process(f)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := "PX 0 0 80\nPX 1 0 80\nPX 0 1 80\nPX 1 1 80\n"
	if string(buf.Bytes()) != want {
		t.Fatalf("got %q, want %q", buf.Bytes(), want)
	}
}

func TestCPUOutOfCanvasClipping(t *testing.T) {
	pixels := make([]media.Pixel, 16)
	for i := range pixels {
		pixels[i] = media.Pixel{0x11, 0x22, 0x33, 0xFF}
	}
	f := media.Frame{Width: 4, Height: 4, Order: media.RGBA, Pixels: pixels}
	p := NewCPU(draworder.Point{X: 4, Y: 4}, 2, 2, 3, 3, draworder.Down)
	buf, err := p.Process(f)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := "PX 2 2 112233\n"
	if string(buf.Bytes()) != want {
		t.Fatalf("got %q, want %q", buf.Bytes(), want)
	}
}

func TestCPUAlphaBearingPixel(t *testing.T) {
	f := media.Frame{
		Width: 1, Height: 1, Order: media.RGBA,
		Pixels: []media.Pixel{{0x12, 0x34, 0x56, 0x78}},
	}
	p := NewCPU(draworder.Point{X: 1, Y: 1}, 0, 0, 1, 1, draworder.Down)
	buf, err := p.Process(f)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := "PX 0 0 12345678\n"
	if string(buf.Bytes()) != want {
		t.Fatalf("got %q, want %q", buf.Bytes(), want)
	}
}

func TestCPUBGRAOffsetAppliedUniformly(t *testing.T) {
	// The offset must apply to the BGRA branch exactly like the RGBA branch.
	f := media.Frame{
		Width: 1, Height: 1, Order: media.BGRA,
		Pixels: []media.Pixel{{0x56, 0x34, 0x12, 0xFF}}, // B,G,R,A -> r=0x12 g=0x34 b=0x56
	}
	p := NewCPU(draworder.Point{X: 1, Y: 1}, 5, 7, 10, 10, draworder.Down)
	buf, err := p.Process(f)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := "PX 5 7 123456\n"
	if string(buf.Bytes()) != want {
		t.Fatalf("got %q, want %q", buf.Bytes(), want)
	}
}
