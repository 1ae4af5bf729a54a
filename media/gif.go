package media

import (
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"io"
	"time"
)

// decodeGIF grounds GIF support directly on the standard library: each
// disposed frame is composited onto a running canvas the same way
// image/gif's own examples do, since GIF frames are often partial
// updates rather than full replacements.
func decodeGIF(r io.Reader) (*Animation, error) {
	g, err := gif.DecodeAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeIO, err)
	}
	if len(g.Image) == 0 {
		return nil, ErrUnknownSize
	}

	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	canvas := image.NewNRGBA(bounds)
	draw.Draw(canvas, bounds, image.Transparent, image.Point{}, draw.Src)

	frames := make([]Timed, 0, len(g.Image))
	for i, img := range g.Image {
		prev := cloneNRGBA(canvas)

		draw.Draw(canvas, img.Bounds(), img, img.Bounds().Min, draw.Over)
		frames = append(frames, Timed{
			Frame:    nrgbaToFrame(canvas),
			Duration: gifDelay(g.Delay[i]),
		})

		if i < len(g.Disposal) && g.Disposal[i] == gif.DisposalBackground {
			draw.Draw(canvas, img.Bounds(), image.Transparent, image.Point{}, draw.Src)
		} else if i < len(g.Disposal) && g.Disposal[i] == gif.DisposalPrevious {
			canvas = prev
		}
	}

	return NewAnimation(uint16(bounds.Dx()), uint16(bounds.Dy()), frames), nil
}

func gifDelay(hundredths int) time.Duration {
	if hundredths <= 0 {
		hundredths = 10
	}
	return time.Duration(hundredths) * 10 * time.Millisecond
}

func cloneNRGBA(img *image.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(img.Bounds())
	copy(out.Pix, img.Pix)
	return out
}

func nrgbaToFrame(img *image.NRGBA) Frame {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	pixels := make([]Pixel, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			off := x * 4
			pixels[y*w+x] = Pixel{row[off], row[off+1], row[off+2], row[off+3]}
		}
	}
	return Frame{Width: uint16(w), Height: uint16(h), Pixels: pixels, Order: RGBA}
}
