package renderer

import (
	"sync"

	"github.com/df07/go-turntable-renderer/pkg/engine"
)

// View binds a camera and a scene to a viewport
type View struct {
	mu       sync.Mutex
	viewport engine.Viewport
	camera   *Camera
	scene    *Scene
	blend    engine.BlendMode
}

// SetViewport sets the rendered rectangle of the swap chain
func (v *View) SetViewport(vp engine.Viewport) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.viewport = vp
}

// Viewport returns the rendered rectangle
func (v *View) Viewport() engine.Viewport {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.viewport
}

// SetCamera sets the camera. Cameras from other packages are ignored.
func (v *View) SetCamera(cam engine.Camera) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.camera, _ = cam.(*Camera)
}

// SetScene sets the scene. Scenes from other packages are ignored.
func (v *View) SetScene(scene engine.Scene) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scene, _ = scene.(*Scene)
}

// SetBlendMode sets how the view composites onto the clear color
func (v *View) SetBlendMode(mode engine.BlendMode) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.blend = mode
}

func (v *View) state() (engine.Viewport, *Camera, *Scene, engine.BlendMode) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.viewport, v.camera, v.scene, v.blend
}
