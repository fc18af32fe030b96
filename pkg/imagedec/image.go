// Package imagedec decodes image streams into linear floating point images.
//
// Formats are identified by sniffing a fixed-size head of the stream and are
// decoded by pluggable [Decoder] implementations. Decoding never panics on bad
// input; an unrecognised or malformed stream yields an empty [LinearImage].
package imagedec

import (
	"image"
	"math"
)

// ColorSpace tags how decoded samples must be transformed on output
type ColorSpace int

const (
	// ColorSpaceLinear leaves samples untouched
	ColorSpaceLinear ColorSpace = iota
	// ColorSpaceSRGB linearizes samples with the sRGB transfer function
	ColorSpaceSRGB
)

// String returns a human-readable name for the color space
func (c ColorSpace) String() string {
	switch c {
	case ColorSpaceLinear:
		return "linear"
	case ColorSpaceSRGB:
		return "srgb"
	default:
		return "unknown"
	}
}

// LinearImage is a dense row-major image of float32 samples in a linear color space.
// The zero value has no pixels and represents "no image".
type LinearImage struct {
	Width    int
	Height   int
	Channels int
	Pix      []float32 // Pix[(y*Width+x)*Channels+c], row 0 is the top row
}

// NewLinearImage allocates a zeroed image
func NewLinearImage(width, height, channels int) LinearImage {
	if width <= 0 || height <= 0 || channels <= 0 {
		return LinearImage{}
	}
	return LinearImage{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]float32, width*height*channels),
	}
}

// Empty reports whether the image holds no pixels
func (im LinearImage) Empty() bool {
	return im.Width == 0 || im.Height == 0 || len(im.Pix) == 0
}

// RGB returns the first three channels of the pixel at (x, y).
// Single channel images are returned as grey.
func (im LinearImage) RGB(x, y int) (r, g, b float32) {
	i := (y*im.Width + x) * im.Channels
	if im.Channels < 3 {
		v := im.Pix[i]
		return v, v, v
	}
	return im.Pix[i], im.Pix[i+1], im.Pix[i+2]
}

// SetRGB writes the first three channels of the pixel at (x, y)
func (im LinearImage) SetRGB(x, y int, r, g, b float32) {
	i := (y*im.Width + x) * im.Channels
	im.Pix[i] = r
	if im.Channels >= 3 {
		im.Pix[i+1] = g
		im.Pix[i+2] = b
	}
}

// FromImage converts an 8 or 16-bit image into a four channel linear image.
// Color channels are linearized when space is ColorSpaceSRGB; alpha is kept as is.
func FromImage(img image.Image, space ColorSpace) LinearImage {
	bounds := img.Bounds()
	out := NewLinearImage(bounds.Dx(), bounds.Dy(), 4)
	if out.Empty() {
		return out
	}

	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			r, g, b, a := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			// RGBA returns alpha-premultiplied uint32 in [0, 65535]
			px := [4]float32{float32(r), float32(g), float32(b), float32(a)}
			alpha := px[3] / 65535
			for c := 0; c < 3; c++ {
				v := px[c] / 65535
				if alpha > 0 {
					v /= alpha
				}
				if space == ColorSpaceSRGB {
					v = srgbToLinear(v)
				}
				px[c] = v
			}
			px[3] = alpha
			copy(out.Pix[(y*out.Width+x)*4:], px[:])
		}
	}
	return out
}

// srgbToLinear applies the sRGB electro-optical transfer function
func srgbToLinear(v float32) float32 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return float32(math.Pow((float64(v)+0.055)/1.055, 2.4))
}
