package media

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// decodeAPNG parses an Animated PNG directly off the chunk stream. No
// third-party APNG decoder exists anywhere in the reference corpus, so
// unlike every other format in this package, this one is grounded
// directly on the PNG specification (IHDR/acTL/fcTL/fdAT/IDAT chunks)
// using only compress/zlib for inflate. It covers the common 8-bit
// truecolor and truecolor-with-alpha color types; anything else reports
// ErrUnsupportedFormat rather than guessing.
func decodeAPNG(r io.Reader) (*Animation, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeIO, err)
	}
	if len(data) < 8 || !bytes.Equal(data[:8], pngSignature) {
		return nil, ErrUnknownFormat
	}

	p, err := parsePNGChunks(data[8:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeIO, err)
	}
	if p.ihdr == nil {
		return nil, ErrUnknownSize
	}
	if p.ihdr.bitDepth != 8 || (p.ihdr.colorType != 2 && p.ihdr.colorType != 6) {
		return nil, fmt.Errorf("%w: apng color type %d depth %d", ErrUnsupportedFormat, p.ihdr.colorType, p.ihdr.bitDepth)
	}
	if p.actl == nil || len(p.frames) == 0 {
		// No animation control chunk: treat as a plain still PNG.
		pixels, err := inflateFrame(p.defaultImageData, p.ihdr)
		if err != nil {
			return nil, err
		}
		frame := Frame{Width: p.ihdr.width, Height: p.ihdr.height, Pixels: pixels, Order: RGBA}
		return NewAnimation(p.ihdr.width, p.ihdr.height, []Timed{{Frame: frame, Duration: Infinite}}), nil
	}

	frames := make([]Timed, 0, len(p.frames))
	for _, f := range p.frames {
		pixels, err := inflateFrameDims(f.data, f.width, f.height, p.ihdr.colorType)
		if err != nil {
			return nil, err
		}
		frames = append(frames, Timed{
			Frame:    Frame{Width: f.width, Height: f.height, Pixels: pixels, Order: RGBA},
			Duration: apngDelay(f.delayNum, f.delayDen),
		})
	}

	return NewAnimation(p.ihdr.width, p.ihdr.height, frames), nil
}

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

type ihdrChunk struct {
	width, height       uint16
	bitDepth, colorType byte
}

type apngFrame struct {
	width, height    uint16
	delayNum, delayDen uint16
	data             []byte
}

type pngDoc struct {
	ihdr             *ihdrChunk
	actl             *struct{ numFrames, numPlays uint32 }
	defaultImageData []byte
	frames           []apngFrame
}

// parsePNGChunks walks the chunk stream after the 8-byte signature,
// reassembling each fcTL's following fdAT run (or the leading IDAT run,
// for the default image) into one contiguous deflate stream per frame.
func parsePNGChunks(data []byte) (*pngDoc, error) {
	doc := &pngDoc{}
	var curFrame *apngFrame
	var idat bytes.Buffer
	haveIDAT := false

	for len(data) >= 8 {
		length := binary.BigEndian.Uint32(data[0:4])
		typ := string(data[4:8])
		if uint32(len(data)) < 8+length+4 {
			return nil, fmt.Errorf("truncated %s chunk", typ)
		}
		body := data[8 : 8+length]
		data = data[8+length+4:]

		switch typ {
		case "IHDR":
			if len(body) < 13 {
				return nil, fmt.Errorf("short IHDR")
			}
			doc.ihdr = &ihdrChunk{
				width:     uint16(binary.BigEndian.Uint32(body[0:4])),
				height:    uint16(binary.BigEndian.Uint32(body[4:8])),
				bitDepth:  body[8],
				colorType: body[9],
			}
		case "acTL":
			if len(body) < 8 {
				return nil, fmt.Errorf("short acTL")
			}
			doc.actl = &struct{ numFrames, numPlays uint32 }{
				numFrames: binary.BigEndian.Uint32(body[0:4]),
				numPlays:  binary.BigEndian.Uint32(body[4:8]),
			}
		case "fcTL":
			if len(body) < 26 {
				return nil, fmt.Errorf("short fcTL")
			}
			if curFrame != nil {
				doc.frames = append(doc.frames, *curFrame)
			}
			curFrame = &apngFrame{
				width:    uint16(binary.BigEndian.Uint32(body[4:8])),
				height:   uint16(binary.BigEndian.Uint32(body[8:12])),
				delayNum: binary.BigEndian.Uint16(body[20:22]),
				delayDen: binary.BigEndian.Uint16(body[22:24]),
			}
		case "IDAT":
			idat.Write(body)
			haveIDAT = true
			if curFrame != nil {
				// An fcTL ahead of IDAT makes the default image frame 0.
				curFrame.data = append(curFrame.data, body...)
			}
		case "fdAT":
			if len(body) < 4 {
				return nil, fmt.Errorf("short fdAT")
			}
			if curFrame == nil {
				return nil, fmt.Errorf("fdAT without fcTL")
			}
			curFrame.data = append(curFrame.data, body[4:]...)
		case "IEND":
			if curFrame != nil {
				doc.frames = append(doc.frames, *curFrame)
				curFrame = nil
			}
			if haveIDAT {
				doc.defaultImageData = idat.Bytes()
			}
			return doc, nil
		}
	}
	if curFrame != nil {
		doc.frames = append(doc.frames, *curFrame)
	}
	if haveIDAT {
		doc.defaultImageData = idat.Bytes()
	}
	return doc, nil
}

func apngDelay(num, den uint16) time.Duration {
	if den == 0 {
		den = 100
	}
	if num == 0 {
		num = 1
	}
	return time.Duration(num) * time.Second / time.Duration(den)
}

func inflateFrame(compressed []byte, ihdr *ihdrChunk) ([]Pixel, error) {
	return inflateFrameDims(compressed, ihdr.width, ihdr.height, ihdr.colorType)
}

// inflateFrameDims zlib-inflates one frame's scanlines and undoes PNG's
// per-row filtering, producing RGBA pixels for color type 2 (RGB) or 6
// (RGBA) at 8 bits per channel.
func inflateFrameDims(compressed []byte, w, h uint16, colorType byte) ([]Pixel, error) {
	channels := 3
	if colorType == 6 {
		channels = 4
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeIO, err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeIO, err)
	}

	stride := int(w) * channels
	want := (stride + 1) * int(h)
	if len(raw) < want {
		return nil, fmt.Errorf("%w: short scanline data", ErrDecodeIO)
	}

	prev := make([]byte, stride)
	pixels := make([]Pixel, int(w)*int(h))
	pos := 0
	for y := 0; y < int(h); y++ {
		filter := raw[pos]
		pos++
		line := make([]byte, stride)
		copy(line, raw[pos:pos+stride])
		pos += stride
		unfilterRow(filter, line, prev, channels)

		for x := 0; x < int(w); x++ {
			off := x * channels
			if channels == 4 {
				pixels[y*int(w)+x] = Pixel{line[off], line[off+1], line[off+2], line[off+3]}
			} else {
				pixels[y*int(w)+x] = Pixel{line[off], line[off+1], line[off+2], 0xFF}
			}
		}
		prev = line
	}

	return pixels, nil
}

func unfilterRow(filter byte, line, prev []byte, bpp int) {
	switch filter {
	case 0: // None
	case 1: // Sub
		for i := range line {
			var a byte
			if i >= bpp {
				a = line[i-bpp]
			}
			line[i] += a
		}
	case 2: // Up
		for i := range line {
			line[i] += prev[i]
		}
	case 3: // Average
		for i := range line {
			var a, b int
			if i >= bpp {
				a = int(line[i-bpp])
			}
			b = int(prev[i])
			line[i] += byte((a + b) / 2)
		}
	case 4: // Paeth
		for i := range line {
			var a, b, c int
			if i >= bpp {
				a = int(line[i-bpp])
				c = int(prev[i-bpp])
			}
			b = int(prev[i])
			line[i] += paeth(a, b, c)
		}
	}
}

func paeth(a, b, c int) byte {
	p := a + b - c
	pa, pb, pc := abs(p-a), abs(p-b), abs(p-c)
	if pa <= pb && pa <= pc {
		return byte(a)
	} else if pb <= pc {
		return byte(b)
	}
	return byte(c)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
