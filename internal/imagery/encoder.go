// Package imagery holds the pixel work shared by the capture, optimize and
// colorize commands. It is built on github.com/disintegration/imaging.
package imagery

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/JakeFAU/cardshot/internal/capture"
)

// Encoder downsamples raw captures to the output resolution and encodes them
// with the configured codec.
type Encoder struct {
	codec   capture.Codec
	quality int
	size    capture.Resolution
}

// NewEncoder validates its inputs and returns an Encoder.
func NewEncoder(codec capture.Codec, jpegQuality int, size capture.Resolution) (*Encoder, error) {
	if !codec.Valid() {
		return nil, fmt.Errorf("unsupported codec %q", codec)
	}
	if codec == capture.CodecJPEG && (jpegQuality < 1 || jpegQuality > 100) {
		return nil, fmt.Errorf("jpeg quality %d out of range", jpegQuality)
	}
	if size.Width <= 0 || size.Height <= 0 {
		return nil, fmt.Errorf("invalid output size %s", size)
	}
	return &Encoder{codec: codec, quality: jpegQuality, size: size}, nil
}

// Extension returns the codec's file extension.
func (e *Encoder) Extension() string {
	return e.codec.Extension()
}

// Encode decodes a PNG capture, resizes it with a Lanczos filter and encodes
// the result.
func (e *Encoder) Encode(raw []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode capture: %w", err)
	}
	resized := imaging.Resize(img, e.size.Width, e.size.Height, imaging.Lanczos)
	if b := resized.Bounds(); b.Dx() != e.size.Width || b.Dy() != e.size.Height {
		return nil, fmt.Errorf("resize produced %dx%d, want %s", b.Dx(), b.Dy(), e.size)
	}
	return EncodeImage(resized, e.codec, e.quality)
}

// EncodeImage writes img in codec's format.
func EncodeImage(img image.Image, codec capture.Codec, jpegQuality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch codec {
	case capture.CodecJPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality))
	case capture.CodecPNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	default:
		return nil, fmt.Errorf("unsupported codec %q", codec)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", codec, err)
	}
	return buf.Bytes(), nil
}
