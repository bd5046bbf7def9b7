package images

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
)

// ImageFormat represents a supported image container format.
type ImageFormat string

const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatUnknown is returned when the magic bytes match no known format.
	FormatUnknown ImageFormat = ""
)

// DetectFormat sniffs the container format from the leading magic bytes.
func DetectFormat(data []byte) ImageFormat {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return FormatJPEG
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}):
		return FormatPNG
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return FormatWebP
	default:
		return FormatUnknown
	}
}

// Decode decodes raw image bytes into an image.Image, sniffing the format
// from the magic bytes. JPEG, PNG and WebP are supported.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}

	reader := bytes.NewReader(data)
	switch DetectFormat(data) {
	case FormatJPEG:
		img, err := jpeg.Decode(reader)
		return img, errors.Wrap(err, "decode jpeg")
	case FormatPNG:
		img, err := png.Decode(reader)
		return img, errors.Wrap(err, "decode png")
	case FormatWebP:
		img, err := webp.Decode(reader)
		return img, errors.Wrap(err, "decode webp")
	default:
		// Fall back to whatever decoders are registered.
		img, _, err := image.Decode(reader)
		return img, errors.Wrap(err, "decode image")
	}
}
