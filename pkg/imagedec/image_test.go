package imagedec

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
	src.SetNRGBA(1, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 0})

	linear := FromImage(src, ColorSpaceLinear)
	require.Equal(t, 2, linear.Width)
	require.Equal(t, 1, linear.Height)
	require.Equal(t, 4, linear.Channels)

	r, g, b := linear.RGB(0, 0)
	assert.InDelta(t, 1, r, 1e-6)
	assert.InDelta(t, 0, g, 1e-6)
	assert.InDelta(t, 0, b, 1e-6)
	assert.InDelta(t, 1, linear.Pix[3], 1e-6)

	// Fully transparent pixels keep zero alpha
	assert.InDelta(t, 0, linear.Pix[7], 1e-6)
}

func TestFromImageSRGB(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 1, 1))
	src.SetGray(0, 0, color.Gray{Y: 128})

	img := FromImage(src, ColorSpaceSRGB)
	r, _, _ := img.RGB(0, 0)
	assert.InDelta(t, 0.2158, r, 1e-3)
}

func TestFromImageEmpty(t *testing.T) {
	img := FromImage(image.NewRGBA(image.Rect(0, 0, 0, 0)), ColorSpaceLinear)
	assert.True(t, img.Empty())
}

func TestSRGBToLinear(t *testing.T) {
	assert.Equal(t, float32(0), srgbToLinear(0))
	assert.InDelta(t, 1, srgbToLinear(1), 1e-6)
	assert.InDelta(t, 0.04045/12.92, srgbToLinear(0.04045), 1e-7)

	prev := float32(-1)
	for i := 0; i <= 100; i++ {
		v := srgbToLinear(float32(i) / 100)
		assert.Greater(t, v, prev)
		prev = v
	}
}

func TestLinearImageAccessors(t *testing.T) {
	img := NewLinearImage(2, 2, 3)
	img.SetRGB(1, 1, 0.1, 0.2, 0.3)
	r, g, b := img.RGB(1, 1)
	assert.Equal(t, [3]float32{0.1, 0.2, 0.3}, [3]float32{r, g, b})

	grey := NewLinearImage(1, 1, 1)
	grey.SetRGB(0, 0, 0.5, 0.9, 0.9)
	r, g, b = grey.RGB(0, 0)
	assert.Equal(t, [3]float32{0.5, 0.5, 0.5}, [3]float32{r, g, b})

	assert.True(t, NewLinearImage(0, 4, 3).Empty())
	assert.Equal(t, "srgb", ColorSpaceSRGB.String())
}
