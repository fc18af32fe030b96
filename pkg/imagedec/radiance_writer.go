package imagedec

import (
	"bufio"
	"fmt"
	"io"
	"math"
)

// EncodeRadiance writes img as a flat (uncompressed) Radiance RGBE file.
// Images with fewer than three channels are written as grey.
func EncodeRadiance(w io.Writer, img LinearImage) error {
	if img.Empty() {
		return fmt.Errorf("imagedec: cannot encode empty image")
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%sFORMAT=32-bit_rle_rgbe\n\n-Y %d +X %d\n", radianceMagic, img.Height, img.Width)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			r, g, b := img.RGB(x, y)
			px := floatToRGBE(r, g, b)
			if _, err := bw.Write(px[:]); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// floatToRGBE packs a linear color into a shared-exponent pixel
func floatToRGBE(r, g, b float32) [4]byte {
	v := max(r, g, b)
	if v < 1e-32 {
		return [4]byte{}
	}
	frac, exp := math.Frexp(float64(v))
	scale := float32(frac*256.0) / v
	return [4]byte{
		byte(max(0, r) * scale),
		byte(max(0, g) * scale),
		byte(max(0, b) * scale),
		byte(exp + 128),
	}
}
