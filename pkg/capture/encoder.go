package capture

import (
	"bytes"
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/imgio"
)

// Encoder turns a tightly packed 8-bit pixel buffer into an image file payload
type Encoder interface {
	Encode(pix []byte, width, height, channels int) ([]byte, error)
	// Extension is the file extension of the payload, without a dot
	Extension() string
	// Channels is the pixel layout the encoder wants: 4 for RGBA, 3 for RGB
	Channels() int
}

// ImageEncoder adapts a bild encoder to Encoder
type ImageEncoder struct {
	ext      string
	channels int
	encode   imgio.Encoder
}

// PNGEncoder writes RGBA PNG files
func PNGEncoder() *ImageEncoder {
	return &ImageEncoder{ext: "png", channels: 4, encode: imgio.PNGEncoder()}
}

// JPEGEncoder writes RGB JPEG files at the given quality (1-100)
func JPEGEncoder(quality int) *ImageEncoder {
	return &ImageEncoder{ext: "jpg", channels: 3, encode: imgio.JPEGEncoder(quality)}
}

// EncoderFor returns the encoder for an output format name
func EncoderFor(format string, jpegQuality int) (*ImageEncoder, error) {
	switch format {
	case "png":
		return PNGEncoder(), nil
	case "jpeg", "jpg":
		return JPEGEncoder(jpegQuality), nil
	default:
		return nil, fmt.Errorf("capture: unsupported output format %q", format)
	}
}

// Extension implements Encoder
func (e *ImageEncoder) Extension() string { return e.ext }

// Channels implements Encoder
func (e *ImageEncoder) Channels() int { return e.channels }

// Encode implements Encoder. pix rows run top to bottom.
func (e *ImageEncoder) Encode(pix []byte, width, height, channels int) ([]byte, error) {
	img, err := toNRGBA(pix, width, height, channels)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := e.encode(&buf, img); err != nil {
		return nil, fmt.Errorf("capture: encode %s: %w", e.ext, err)
	}
	return buf.Bytes(), nil
}

func toNRGBA(pix []byte, width, height, channels int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("capture: invalid image size %dx%d", width, height)
	}
	if channels != 3 && channels != 4 {
		return nil, fmt.Errorf("capture: unsupported channel count %d", channels)
	}
	if len(pix) < width*height*channels {
		return nil, fmt.Errorf("capture: %d bytes for %dx%dx%d pixels", len(pix), width, height, channels)
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	if channels == 4 {
		copy(img.Pix, pix[:width*height*4])
		return img, nil
	}
	for i := 0; i < width*height; i++ {
		img.Pix[i*4+0] = pix[i*3+0]
		img.Pix[i*4+1] = pix[i*3+1]
		img.Pix[i*4+2] = pix[i*3+2]
		img.Pix[i*4+3] = 255
	}
	return img, nil
}
