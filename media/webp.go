package media

import (
	"fmt"
	"image"
	"image/draw"
	"io"

	webpanim "github.com/deepteams/webp/animation"

	// Registers FrameDecoderFunc so webpanim.Animation.DecodeFramesParallel
	// can turn bitstream frames into *image.NRGBA.
	_ "github.com/deepteams/webp"
)

// decodeWebP handles both still and animated WebP files. Pixel decoding
// is fanned out across GOMAXPROCS workers by the library itself; frames
// are then composited onto a running canvas the same way GIF disposal
// is handled, since WebP animation frames may only cover part of the
// canvas and may blend or replace.
func decodeWebP(r io.Reader) (*Animation, error) {
	anim, err := webpanim.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeIO, err)
	}
	if len(anim.Frames) == 0 {
		return nil, ErrUnknownSize
	}
	if err := anim.DecodeFramesParallel(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeIO, err)
	}

	bounds := image.Rect(0, 0, anim.CanvasWidth, anim.CanvasHeight)
	canvas := image.NewNRGBA(bounds)
	draw.Draw(canvas, bounds, &image.Uniform{C: anim.BackgroundColor}, image.Point{}, draw.Src)

	frames := make([]Timed, 0, len(anim.Frames))
	for _, f := range anim.Frames {
		if f.Image == nil {
			continue
		}
		dst := image.Rect(f.OffsetX, f.OffsetY, f.OffsetX+f.Image.Bounds().Dx(), f.OffsetY+f.Image.Bounds().Dy())
		op := draw.Over
		if f.Blend == 0 {
			op = draw.Src
		}
		draw.Draw(canvas, dst, f.Image, f.Image.Bounds().Min, op)

		frames = append(frames, Timed{Frame: nrgbaToFrame(canvas), Duration: f.Duration})

		if f.Dispose == 1 {
			draw.Draw(canvas, dst, image.Transparent, image.Point{}, draw.Src)
		}
	}
	if len(frames) == 0 {
		return nil, ErrUnknownSize
	}

	return NewAnimation(uint16(bounds.Dx()), uint16(bounds.Dy()), frames), nil
}
