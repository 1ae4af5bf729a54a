package media

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// decodeStill handles every format with a single raster: jpeg, png
// (non-animated), bmp and tiff. It is modeled as a one-frame animation
// with an effectively infinite display duration, per the data model.
func decodeStill(r io.Reader) (*Animation, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeIO, err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, ErrUnknownSize
	}

	pixels := make([]Pixel, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r16, g16, b16, a16 := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			pixels[y*w+x] = Pixel{byte(r16 >> 8), byte(g16 >> 8), byte(b16 >> 8), byte(a16 >> 8)}
		}
	}

	frame := Frame{Width: uint16(w), Height: uint16(h), Pixels: pixels, Order: RGBA}
	return NewAnimation(uint16(w), uint16(h), []Timed{{Frame: frame, Duration: Infinite}}), nil
}
