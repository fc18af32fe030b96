package renderer

import (
	"sync/atomic"

	"github.com/df07/go-turntable-renderer/pkg/engine"
	"github.com/df07/go-turntable-renderer/pkg/imagedec"
	"github.com/go-gl/mathgl/mgl32"
)

// Material is the single lit shading model of the software renderer. Each
// distinct material description gets its own Material so callers can count
// and prepare them independently.
type Material struct {
	name     string
	prepared atomic.Bool
}

// Name returns the material name
func (m *Material) Name() string { return m.name }

// Prepare marks the material ready. Texture conversion already happened per instance.
func (m *Material) Prepare() {
	m.prepared.Store(true)
}

// Prepared reports whether Prepare has run
func (m *Material) Prepared() bool {
	return m.prepared.Load()
}

// MaterialInstance carries the base color parameters of one glTF-style material
type MaterialInstance struct {
	material    *Material
	baseColor   mgl32.Vec4
	texture     *texture
	doubleSided bool
}

// Material returns the shading model of the instance
func (mi *MaterialInstance) Material() engine.Material { return mi.material }

// BaseColor returns the base color factor
func (mi *MaterialInstance) BaseColor() mgl32.Vec4 { return mi.baseColor }

// DoubleSided reports whether back faces are lit like front faces
func (mi *MaterialInstance) DoubleSided() bool { return mi.doubleSided }

// albedo evaluates base color factor times texture at uv
func (mi *MaterialInstance) albedo(uv mgl32.Vec2) mgl32.Vec4 {
	c := mi.baseColor
	if mi.texture != nil {
		t := mi.texture.evaluate(uv)
		c = mgl32.Vec4{c[0] * t[0], c[1] * t[1], c[2] * t[2], c[3] * t[3]}
	}
	return c
}

// texture provides color from a 2D image
type texture struct {
	width, height int
	texels        []mgl32.Vec4 // Row-major: texels[y*width + x], row 0 at the top
}

// newTexture converts a linear image into RGBA texels. Missing alpha is opaque.
func newTexture(img imagedec.LinearImage) *texture {
	if img.Empty() {
		return nil
	}
	t := &texture{width: img.Width, height: img.Height, texels: make([]mgl32.Vec4, img.Width*img.Height)}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			r, g, b := img.RGB(x, y)
			a := float32(1)
			if img.Channels >= 4 {
				a = img.Pix[(y*img.Width+x)*img.Channels+3]
			}
			t.texels[y*img.Width+x] = mgl32.Vec4{r, g, b, a}
		}
	}
	return t
}

// evaluate samples the texture at uv using nearest-neighbor filtering and repeat wrapping.
// glTF places v = 0 at the top of the image.
func (t *texture) evaluate(uv mgl32.Vec2) mgl32.Vec4 {
	u := uv[0] - float32(int(uv[0]))
	v := uv[1] - float32(int(uv[1]))
	if u < 0 {
		u += 1
	}
	if v < 0 {
		v += 1
	}

	x := min(max(int(u*float32(t.width)), 0), t.width-1)
	y := min(max(int(v*float32(t.height)), 0), t.height-1)
	return t.texels[y*t.width+x]
}
