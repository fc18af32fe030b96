// Package engine defines the contracts between the capture pipeline, the asset
// loader and a rendering backend.
//
// A backend executes submitted frames asynchronously. Pixel readbacks complete
// through a callback that the backend invokes exactly once per request, on a
// goroutine of its choosing, at some point after later frames were submitted.
package engine

import (
	"fmt"

	"github.com/df07/go-turntable-renderer/pkg/core"
	"github.com/df07/go-turntable-renderer/pkg/imagedec"
	"github.com/go-gl/mathgl/mgl32"
)

// Entity is an opaque handle. The zero Entity is null.
type Entity uint32

// IsNull reports whether the entity is the null handle
func (e Entity) IsNull() bool { return e == 0 }

// Viewport is a pixel rectangle with a bottom-left origin
type Viewport struct {
	Left, Bottom  int
	Width, Height int
}

// String formats the viewport as WxH+X+Y
func (vp Viewport) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", vp.Width, vp.Height, vp.Left, vp.Bottom)
}

// PixelDataFormat describes channel layout of a readback buffer
type PixelDataFormat int

const (
	PixelRGBA PixelDataFormat = iota
	PixelRGB
)

// Channels returns the channel count of the format
func (f PixelDataFormat) Channels() int {
	if f == PixelRGB {
		return 3
	}
	return 4
}

// PixelDataType describes the per-channel storage of a readback buffer
type PixelDataType int

const (
	PixelUByte PixelDataType = iota
)

// ReadbackCallback receives the filled buffer and the user value of its request
type ReadbackCallback func(buffer []byte, user any)

// PixelBufferDescriptor describes a readback destination. The backend owns Buffer
// from ReadPixels until Callback is invoked, which then owns it.
type PixelBufferDescriptor struct {
	Buffer   []byte
	Format   PixelDataFormat
	Type     PixelDataType
	Callback ReadbackCallback
	User     any
}

// BlendMode controls how the view composites onto the clear color
type BlendMode int

const (
	BlendOpaque BlendMode = iota
	BlendTranslucent
)

// ClearOptions sets the color written to pixels no geometry covers
type ClearOptions struct {
	ClearColor mgl32.Vec4
	Clear      bool
}

// SwapChain is the presentation target frames are begun against
type SwapChain interface {
	Size() (width, height int)
}

// Renderer submits frames and readbacks
type Renderer interface {
	// BeginFrame returns false when the swap chain cannot accept a frame yet
	BeginFrame(sc SwapChain) bool
	Render(view View)
	// ReadPixels must be called between Render and EndFrame
	ReadPixels(vp Viewport, desc PixelBufferDescriptor) error
	EndFrame()
	SetClearOptions(opts ClearOptions)
}

// Camera is a perspective camera
type Camera interface {
	LookAt(eye, target, up mgl32.Vec3)
	// SetLensProjection sets a projection from a focal length in millimeters
	SetLensProjection(focalLength, aspect, near, far float64)
	// SetExposure sets exposure from aperture (f-stops), shutter speed (seconds) and ISO
	SetExposure(aperture, shutterSpeed, sensitivity float32)
	// SetScaling scales the projection, e.g. (1/aspect, 1) to match a viewport
	SetScaling(x, y float64)
}

// View binds a camera and a scene to a viewport
type View interface {
	SetViewport(vp Viewport)
	Viewport() Viewport
	SetCamera(cam Camera)
	SetScene(scene Scene)
	SetBlendMode(mode BlendMode)
}

// IndirectLight is image based lighting built from an environment map
type IndirectLight interface {
	Intensity() float32
}

// Scene holds the entities that get rendered
type Scene interface {
	AddEntity(e Entity)
	SetIndirectLight(light IndirectLight)
	EntityCount() int
}

// TransformManager stores local transforms and parent links
type TransformManager interface {
	Create(e Entity)
	SetTransform(e Entity, m mgl32.Mat4)
	Transform(e Entity) mgl32.Mat4
	WorldTransform(e Entity) mgl32.Mat4
	SetParent(child, parent Entity)
}

// Material is a shading model shared by material instances
type Material interface {
	Name() string
	// Prepare performs one-time setup before the first frame that uses the material
	Prepare()
}

// MaterialInstance is a parameterised use of a Material
type MaterialInstance interface {
	Material() Material
}

// MaterialDesc describes a metallic-roughness material
type MaterialDesc struct {
	Name             string
	BaseColor        mgl32.Vec4
	BaseColorTexture *imagedec.LinearImage // linear RGBA, nil for none
	DoubleSided      bool
}

// Geometry is an indexed triangle list in the entity's local space
type Geometry struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3 // optional, one per position
	UVs       []mgl32.Vec2 // optional, one per position
	Colors    []mgl32.Vec4 // optional, linear, one per position
	Indices   []uint32
}

// Bounds returns the bounding box of the positions
func (g Geometry) Bounds() core.AABB {
	return core.NewAABBFromPoints(g.Positions...)
}

// Validate checks index ranges and attribute lengths
func (g Geometry) Validate() error {
	n := len(g.Positions)
	if len(g.Indices)%3 != 0 {
		return fmt.Errorf("engine: index count %d is not a multiple of 3", len(g.Indices))
	}
	for _, i := range g.Indices {
		if int(i) >= n {
			return fmt.Errorf("engine: index %d out of range for %d positions", i, n)
		}
	}
	if g.Normals != nil && len(g.Normals) != n {
		return fmt.Errorf("engine: %d normals for %d positions", len(g.Normals), n)
	}
	if g.UVs != nil && len(g.UVs) != n {
		return fmt.Errorf("engine: %d uvs for %d positions", len(g.UVs), n)
	}
	if g.Colors != nil && len(g.Colors) != n {
		return fmt.Errorf("engine: %d colors for %d positions", len(g.Colors), n)
	}
	return nil
}

// Primitive is one draw of a renderable
type Primitive struct {
	Geometry Geometry
	Material MaterialInstance
}

// RenderableManager attaches geometry to entities
type RenderableManager interface {
	SetPrimitives(e Entity, prims []Primitive) error
	PrimitiveCount(e Entity) int
	MaterialInstanceAt(e Entity, i int) MaterialInstance
	// Bounds returns the world-space bounds of the renderable
	Bounds(e Entity) core.AABB
}

// Engine creates and destroys every other object
type Engine interface {
	CreateEntity() Entity
	DestroyEntity(e Entity)
	TransformManager() TransformManager
	RenderableManager() RenderableManager
	CreateMaterial(desc MaterialDesc) MaterialInstance
	CreateIndirectLight(env imagedec.LinearImage, intensity float32) (IndirectLight, error)
}
