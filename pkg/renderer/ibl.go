package renderer

import (
	"fmt"
	"math"

	"github.com/df07/go-turntable-renderer/pkg/imagedec"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	radianceMapWidth    = 32
	radianceMapHeight   = 16
	irradianceMapWidth  = 16
	irradianceMapHeight = 8
)

// lighting returns diffuse irradiance (normalized so a uniform environment of
// radiance L yields L) for a world-space normal
type lighting interface {
	irradiance(n mgl32.Vec3) mgl32.Vec3
}

// IndirectLight is image based lighting from an equirectangular environment.
// The environment's vertical axis is +Y.
type IndirectLight struct {
	intensity float32
	irrMap    [irradianceMapWidth * irradianceMapHeight]mgl32.Vec3
}

// NewIndirectLight precomputes a diffuse irradiance map from an equirectangular image
func NewIndirectLight(env imagedec.LinearImage, intensity float32) (*IndirectLight, error) {
	if env.Empty() {
		return nil, fmt.Errorf("renderer: empty environment image")
	}
	if intensity < 0 || math.IsNaN(float64(intensity)) {
		return nil, fmt.Errorf("renderer: invalid indirect light intensity %v", intensity)
	}

	radiance := downsample(env, radianceMapWidth, radianceMapHeight)

	// Precompute direction and solid angle of every radiance texel.
	dirs := make([]mgl32.Vec3, len(radiance))
	weights := make([]float32, len(radiance))
	for y := 0; y < radianceMapHeight; y++ {
		for x := 0; x < radianceMapWidth; x++ {
			d, sinTheta := equirectDirection(x, y, radianceMapWidth, radianceMapHeight)
			dirs[y*radianceMapWidth+x] = d
			weights[y*radianceMapWidth+x] = sinTheta * (2 * math.Pi / radianceMapWidth) * (math.Pi / radianceMapHeight)
		}
	}

	light := &IndirectLight{intensity: intensity}
	for y := 0; y < irradianceMapHeight; y++ {
		for x := 0; x < irradianceMapWidth; x++ {
			n, _ := equirectDirection(x, y, irradianceMapWidth, irradianceMapHeight)
			var sum mgl32.Vec3
			for i, d := range dirs {
				if c := n.Dot(d); c > 0 {
					sum = sum.Add(radiance[i].Mul(c * weights[i]))
				}
			}
			light.irrMap[y*irradianceMapWidth+x] = sum.Mul(1 / math.Pi)
		}
	}
	return light, nil
}

// Intensity returns the scale applied to the environment
func (l *IndirectLight) Intensity() float32 { return l.intensity }

func (l *IndirectLight) irradiance(n mgl32.Vec3) mgl32.Vec3 {
	x, y := equirectTexel(n, irradianceMapWidth, irradianceMapHeight)
	return l.irrMap[y*irradianceMapWidth+x].Mul(l.intensity)
}

// skyGradient lights the scene when no environment was provided
type skyGradient struct {
	top, bottom mgl32.Vec3
}

var defaultSky = skyGradient{
	top:    mgl32.Vec3{0.5, 0.7, 1.0},
	bottom: mgl32.Vec3{1.0, 1.0, 1.0},
}

func (s skyGradient) irradiance(n mgl32.Vec3) mgl32.Vec3 {
	// Map y from [-1,1] to [0,1] and blend bottom to top.
	t := 0.5 * (n[1] + 1)
	return s.bottom.Mul(1 - t).Add(s.top.Mul(t))
}

// equirectDirection returns the direction through the center of texel (x, y)
// and the sine of its polar angle
func equirectDirection(x, y, width, height int) (mgl32.Vec3, float32) {
	phi := (float64(x)+0.5)/float64(width)*2*math.Pi - math.Pi
	theta := (float64(y) + 0.5) / float64(height) * math.Pi
	sinTheta := math.Sin(theta)
	return mgl32.Vec3{
		float32(sinTheta * math.Sin(phi)),
		float32(math.Cos(theta)),
		float32(-sinTheta * math.Cos(phi)),
	}, float32(sinTheta)
}

// equirectTexel returns the texel containing direction d
func equirectTexel(d mgl32.Vec3, width, height int) (int, int) {
	u := 0.5 + math.Atan2(float64(d[0]), float64(-d[2]))/(2*math.Pi)
	v := math.Acos(float64(mgl32.Clamp(d[1], -1, 1))) / math.Pi
	x := min(max(int(u*float64(width)), 0), width-1)
	y := min(max(int(v*float64(height)), 0), height-1)
	return x, y
}

// downsample box-filters img to width x height RGB
func downsample(img imagedec.LinearImage, width, height int) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, width*height)
	counts := make([]int, width*height)
	for y := 0; y < img.Height; y++ {
		ty := y * height / img.Height
		for x := 0; x < img.Width; x++ {
			tx := x * width / img.Width
			r, g, b := img.RGB(x, y)
			i := ty*width + tx
			out[i] = out[i].Add(mgl32.Vec3{r, g, b})
			counts[i]++
		}
	}

	// Upsample small sources by nearest lookup so no texel stays empty.
	for ty := 0; ty < height; ty++ {
		for tx := 0; tx < width; tx++ {
			i := ty*width + tx
			if counts[i] > 0 {
				out[i] = out[i].Mul(1 / float32(counts[i]))
				continue
			}
			r, g, b := img.RGB(tx*img.Width/width, ty*img.Height/height)
			out[i] = mgl32.Vec3{r, g, b}
		}
	}
	return out
}
