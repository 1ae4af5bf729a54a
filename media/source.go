package media

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Open decodes the media file at path into an Animation, sniffing GIF,
// WebP, PNG and JPEG from their magic bytes (mirroring how image.Decode
// itself works). BMP and TIFF are not sniffed: they are recognized by a
// .bmp, .tif or .tiff extension. An animated PNG (acTL chunk present) is
// routed to the package's own APNG reader instead of the standard
// library's single-frame png decoder.
func Open(path string) (*Animation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeIO, err)
	}

	switch {
	case len(data) >= 6 && bytes.Equal(data[:6], []byte("GIF87a")) || len(data) >= 6 && bytes.Equal(data[:6], []byte("GIF89a")):
		return decodeGIF(bytes.NewReader(data))
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return decodeWebP(bytes.NewReader(data))
	case len(data) >= 8 && bytes.Equal(data[:8], pngSignature):
		if bytes.Contains(data, []byte("acTL")) {
			return decodeAPNG(bytes.NewReader(data))
		}
		return decodeStill(bytes.NewReader(data))
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8: // JPEG SOI
		return decodeStill(bytes.NewReader(data))
	default:
		if ext := strings.ToLower(filepath.Ext(path)); ext == ".bmp" || ext == ".tif" || ext == ".tiff" {
			return decodeStill(bytes.NewReader(data))
		}
		return nil, ErrUnknownFormat
	}
}
