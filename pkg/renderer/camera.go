package renderer

import (
	"math"
	"sync"

	"github.com/df07/go-turntable-renderer/pkg/engine"
	"github.com/go-gl/mathgl/mgl32"
)

// sensorHeight is the height in millimeters of the film a focal length refers to
const sensorHeight = 24.0

// Camera is a pinhole camera positioned with LookAt and projected from a lens description.
// LookAt is relative to the parent of the camera's entity.
type Camera struct {
	mu     sync.Mutex
	entity engine.Entity
	params cameraParams
}

// cameraParams is the immutable state a frame captures
type cameraParams struct {
	Eye, Target, Up mgl32.Vec3
	FovY            float32 // radians
	Aspect          float32
	Scaling         mgl32.Vec2
	Near, Far       float32
	Exposure        float32
}

// newCamera creates a camera with a 50mm lens and unit exposure looking down -Z
func newCamera(entity engine.Entity) *Camera {
	c := &Camera{entity: entity, params: cameraParams{
		Eye:      mgl32.Vec3{0, 0, 0},
		Target:   mgl32.Vec3{0, 0, -1},
		Up:       mgl32.Vec3{0, 1, 0},
		Aspect:   1,
		Scaling:  mgl32.Vec2{1, 1},
		Near:     0.1,
		Far:      100,
		Exposure: 1,
	}}
	c.SetLensProjection(50, 1, 0.1, 100)
	return c
}

// LookAt positions the camera
func (c *Camera) LookAt(eye, target, up mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params.Eye, c.params.Target, c.params.Up = eye, target, up
}

// SetLensProjection derives the vertical field of view from a focal length in millimeters
func (c *Camera) SetLensProjection(focalLength, aspect, near, far float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params.FovY = float32(2 * math.Atan(sensorHeight/(2*focalLength)))
	c.params.Aspect = float32(aspect)
	c.params.Near = float32(near)
	c.params.Far = float32(far)
}

// SetScaling scales the projection horizontally and vertically
func (c *Camera) SetScaling(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params.Scaling = mgl32.Vec2{float32(x), float32(y)}
}

// Entity returns the entity the camera is attached to
func (c *Camera) Entity() engine.Entity { return c.entity }

// SetExposure sets exposure from physical camera settings (EV100 model)
func (c *Camera) SetExposure(aperture, shutterSpeed, sensitivity float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params.Exposure = exposureFromSettings(aperture, shutterSpeed, sensitivity)
}

// Exposure returns the linear exposure factor applied to scene radiance
func (c *Camera) Exposure() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params.Exposure
}

// FieldOfView returns the vertical field of view in degrees
func (c *Camera) FieldOfView() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return mgl32.RadToDeg(c.params.FovY)
}

// snapshot returns the camera state with the pose moved into world space
func (c *Camera) snapshot(tm *TransformManager) cameraParams {
	c.mu.Lock()
	p := c.params
	c.mu.Unlock()

	parent := tm.WorldTransform(tm.Parent(c.entity))
	p.Eye = mgl32.TransformCoordinate(p.Eye, parent)
	p.Target = mgl32.TransformCoordinate(p.Target, parent)
	p.Up = mgl32.TransformNormal(p.Up, parent)
	return p
}

// exposureFromSettings converts aperture, shutter and ISO into a luminance scale
func exposureFromSettings(aperture, shutterSpeed, sensitivity float32) float32 {
	if aperture <= 0 || shutterSpeed <= 0 || sensitivity <= 0 {
		return 1
	}
	ev100 := math.Log2(float64(aperture*aperture) / float64(shutterSpeed) * 100 / float64(sensitivity))
	return float32(1 / (1.2 * math.Exp2(ev100)))
}

// rayGenerator turns pixel coordinates into primary rays
type rayGenerator struct {
	origin     mgl32.Vec3
	lowerLeft  mgl32.Vec3
	horizontal mgl32.Vec3
	vertical   mgl32.Vec3
}

// newRayGenerator builds the image plane one unit in front of the eye
func newRayGenerator(p cameraParams) rayGenerator {
	w := p.Eye.Sub(p.Target).Normalize()
	u := p.Up.Cross(w).Normalize()
	v := w.Cross(u)

	halfHeight := float32(math.Tan(float64(p.FovY)/2)) / p.Scaling[1]
	halfWidth := p.Aspect * float32(math.Tan(float64(p.FovY)/2)) / p.Scaling[0]

	return rayGenerator{
		origin:     p.Eye,
		lowerLeft:  p.Eye.Sub(u.Mul(halfWidth)).Sub(v.Mul(halfHeight)).Sub(w),
		horizontal: u.Mul(2 * halfWidth),
		vertical:   v.Mul(2 * halfHeight),
	}
}

// ray returns a normalized direction for normalized screen coordinates s, t in [0,1],
// with t = 0 at the bottom of the image
func (g rayGenerator) ray(s, t float32) (origin, dir mgl32.Vec3) {
	dir = g.lowerLeft.Add(g.horizontal.Mul(s)).Add(g.vertical.Mul(t)).Sub(g.origin).Normalize()
	return g.origin, dir
}
