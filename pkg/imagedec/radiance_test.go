package imagedec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const radianceHeader = "#?RADIANCE\nFORMAT=32-bit_rle_rgbe\n\n"

func TestRadianceRunLengthScanline(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(radianceHeader + "-Y 1 +X 8\n")
	buf.Write([]byte{2, 2, 0, 8})
	// R: run of 8 x 128
	buf.Write([]byte{128 + 8, 128})
	// G: literal dump of 8 values
	buf.Write([]byte{8, 0, 16, 32, 48, 64, 80, 96, 112})
	// B: run of 4 then literal 4
	buf.Write([]byte{128 + 4, 64, 4, 1, 2, 3, 4})
	// E: run of 8 x 129
	buf.Write([]byte{128 + 8, 129})

	img := NewRadianceDecoder(bytes.NewReader(buf.Bytes())).Decode()
	require.False(t, img.Empty())
	assert.Equal(t, 8, img.Width)
	assert.Equal(t, 1, img.Height)

	const f = 1.0 / 128.0
	r, g, b := img.RGB(0, 0)
	assert.InDelta(t, 128.5*f, r, 1e-6)
	assert.InDelta(t, 0.5*f, g, 1e-6)
	assert.InDelta(t, 64.5*f, b, 1e-6)

	r, g, b = img.RGB(7, 0)
	assert.InDelta(t, 128.5*f, r, 1e-6)
	assert.InDelta(t, 112.5*f, g, 1e-6)
	assert.InDelta(t, 4.5*f, b, 1e-6)
}

func TestRadianceRunOverflowIsMalformed(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(radianceHeader + "-Y 1 +X 8\n")
	buf.Write([]byte{2, 2, 0, 8})
	buf.Write([]byte{128 + 9, 1})

	img := NewRadianceDecoder(bytes.NewReader(buf.Bytes())).Decode()
	assert.True(t, img.Empty())
}

func TestRadianceOldStyleRepeat(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(radianceHeader + "-Y 1 +X 4\n")
	buf.Write([]byte{128, 0, 0, 129})
	buf.Write([]byte{1, 1, 1, 3})

	img := NewRadianceDecoder(bytes.NewReader(buf.Bytes())).Decode()
	require.False(t, img.Empty())
	for x := 0; x < 4; x++ {
		r, g, _ := img.RGB(x, 0)
		assert.InDelta(t, 128.5/128.0, r, 1e-6)
		assert.InDelta(t, 0.5/128.0, g, 1e-6)
	}
}

func TestRadianceExposureAndZeroExponent(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("#?RADIANCE\nFORMAT=32-bit_rle_rgbe\nEXPOSURE=2\n\n-Y 1 +X 2\n")
	buf.Write([]byte{128, 128, 128, 129, 200, 200, 200, 0})

	img := NewRadianceDecoder(bytes.NewReader(buf.Bytes())).Decode()
	require.False(t, img.Empty())

	r, _, _ := img.RGB(0, 0)
	assert.InDelta(t, 128.5/128.0/2.0, r, 1e-6)
	r, g, b := img.RGB(1, 0)
	assert.Zero(t, r)
	assert.Zero(t, g)
	assert.Zero(t, b)
}

func TestRadianceSRGBTagIsApplied(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(radianceHeader + "-Y 1 +X 1\n")
	buf.Write([]byte{64, 64, 64, 128})

	dec := NewRadianceDecoder(bytes.NewReader(buf.Bytes()))
	dec.SetColorSpace(ColorSpaceSRGB)
	img := dec.Decode()
	require.False(t, img.Empty())

	r, _, _ := img.RGB(0, 0)
	assert.InDelta(t, srgbToLinear(64.5/256.0), r, 1e-6)
}

func TestEncodeRadianceRoundTrip(t *testing.T) {
	src := NewLinearImage(2, 2, 3)
	src.SetRGB(0, 0, 1, 0, 0)
	src.SetRGB(1, 0, 0, 4, 0)
	src.SetRGB(0, 1, 0, 0, 0.25)
	src.SetRGB(1, 1, 0, 0, 0)

	var buf bytes.Buffer
	require.NoError(t, EncodeRadiance(&buf, src))

	img := NewRadianceDecoder(&buf).Decode()
	require.False(t, img.Empty())
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			wr, wg, wb := src.RGB(x, y)
			r, g, b := img.RGB(x, y)
			tol := 0.01 * max(wr, wg, wb, 0.1)
			assert.InDelta(t, wr, r, float64(tol))
			assert.InDelta(t, wg, g, float64(tol))
			assert.InDelta(t, wb, b, float64(tol))
		}
	}
}

func TestEncodeRadianceRejectsEmpty(t *testing.T) {
	assert.Error(t, EncodeRadiance(&bytes.Buffer{}, LinearImage{}))
}
