package renderer

import (
	"math"

	"github.com/df07/go-turntable-renderer/pkg/engine"
	"github.com/go-gl/mathgl/mgl32"
)

// frameState is everything needed to shade one view, captured when the view is rendered
type frameState struct {
	width, height int
	viewport      engine.Viewport
	rays          rayGenerator
	near, far     float32
	world         *bvh
	light         lighting
	exposure      float32 // applied to the indirect light only
	blend         engine.BlendMode
	clear         engine.ClearOptions
	samples       int
}

// colorBuffer is an RGBA8 image with row 0 at the top
type colorBuffer struct {
	width, height int
	pix           []byte
}

func newColorBuffer(width, height int) *colorBuffer {
	return &colorBuffer{width: width, height: height, pix: make([]byte, width*height*4)}
}

// fill sets every pixel to c
func (cb *colorBuffer) fill(c [4]byte) {
	for i := 0; i < len(cb.pix); i += 4 {
		copy(cb.pix[i:i+4], c[:])
	}
}

// set writes a pixel given in bottom-left origin coordinates
func (cb *colorBuffer) set(x, y int, c [4]byte) {
	row := cb.height - 1 - y
	copy(cb.pix[(row*cb.width+x)*4:], c[:])
}

// at reads a pixel given in bottom-left origin coordinates
func (cb *colorBuffer) at(x, y int) [4]byte {
	row := cb.height - 1 - y
	i := (row*cb.width + x) * 4
	return [4]byte{cb.pix[i], cb.pix[i+1], cb.pix[i+2], cb.pix[i+3]}
}

// shade returns the linear RGBA color seen along a primary ray.
// Misses return the clear color; alpha is zero there for translucent views.
func (f *frameState) shade(origin, dir mgl32.Vec3) (mgl32.Vec4, bool) {
	rec, ok := f.world.hit(origin, dir, f.near, f.far)
	if !ok {
		return f.background(), false
	}

	tri := rec.tri
	n := tri.shadingNormal(rec.u, rec.v)
	if n.Dot(dir) > 0 {
		n = n.Mul(-1)
	}

	albedo := tri.material.albedo(tri.texCoord(rec.u, rec.v))
	vc := tri.vertexColor(rec.u, rec.v)
	e := f.light.irradiance(n).Mul(f.exposure)

	return mgl32.Vec4{
		albedo[0] * vc[0] * e[0],
		albedo[1] * vc[1] * e[1],
		albedo[2] * vc[2] * e[2],
		mgl32.Clamp(albedo[3]*vc[3], 0, 1),
	}, true
}

func (f *frameState) background() mgl32.Vec4 {
	c := f.clear.ClearColor
	if f.blend == engine.BlendOpaque {
		c[3] = 1
	}
	return c
}

// encodePixel converts linear RGBA to sRGB-encoded RGBA8. Alpha stays linear.
func encodePixel(c mgl32.Vec4) [4]byte {
	return [4]byte{
		toByte(linearToSRGB(c[0])),
		toByte(linearToSRGB(c[1])),
		toByte(linearToSRGB(c[2])),
		toByte(c[3]),
	}
}

func linearToSRGB(v float32) float32 {
	v = mgl32.Clamp(v, 0, 1)
	if v <= 0.0031308 {
		return 12.92 * v
	}
	return float32(1.055*math.Pow(float64(v), 1/2.4) - 0.055)
}

func toByte(v float32) byte {
	return byte(mgl32.Clamp(v, 0, 1)*255 + 0.5)
}
