package renderer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/df07/go-turntable-renderer/pkg/engine"
)

// maxFramesInFlight is the number of submitted frames a swap chain accepts
// before BeginFrame reports not-ready
const maxFramesInFlight = 2

var (
	ErrNoFrame       = errors.New("renderer: no frame in progress")
	ErrNothingToRead = errors.New("renderer: no view rendered in this frame")
)

// passKey identifies everything a rendered color buffer depends on
type passKey struct {
	width, height     int
	viewport          engine.Viewport
	camera            cameraParams
	blend             engine.BlendMode
	clear             engine.ClearOptions
	scene             *Scene
	sceneVersion      uint64
	transformVersion  uint64
	renderableVersion uint64
	light             *IndirectLight
}

type renderPass struct {
	key      passKey
	entities []engine.Entity
}

type readback struct {
	pass int
	vp   engine.Viewport
	desc engine.PixelBufferDescriptor
}

type frame struct {
	sc        *SwapChain
	passes    []renderPass
	readbacks []readback
}

// completion is a filled readback waiting for delivery
type completion struct {
	desc engine.PixelBufferDescriptor
}

// Renderer records frames on the caller's goroutine and executes them on a
// driver goroutine. Readback callbacks run on the driver goroutine once the
// frame after the one that requested them has been executed.
type Renderer struct {
	engine *Engine
	frames chan *frame
	done   chan struct{}

	mu      sync.Mutex
	current *frame
	clear   engine.ClearOptions
	closed  bool

	// driver goroutine state
	cacheKey passKey
	cacheBuf *colorBuffer
	worldKey passKey
	world    *bvh
}

func newRenderer(e *Engine) *Renderer {
	r := &Renderer{
		engine: e,
		frames: make(chan *frame, maxFramesInFlight),
		done:   make(chan struct{}),
	}
	go r.drive()
	return r
}

// SetClearOptions sets the color of pixels no geometry covers
func (r *Renderer) SetClearOptions(opts engine.ClearOptions) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clear = opts
}

// BeginFrame starts recording a frame. It returns false while the swap chain
// has its maximum number of frames in flight, a frame is already being
// recorded, or the renderer is closed.
func (r *Renderer) BeginFrame(sc engine.SwapChain) bool {
	chain, ok := sc.(*SwapChain)
	if !ok {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.current != nil {
		return false
	}
	if !chain.acquire() {
		return false
	}
	r.current = &frame{sc: chain}
	return true
}

// Render records a render of view into the current frame
func (r *Renderer) Render(v engine.View) {
	view, ok := v.(*View)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return
	}

	vp, cam, scene, blend := view.state()
	if cam == nil || scene == nil {
		slog.Debug("renderer: view has no camera or scene, skipping")
		return
	}

	key := passKey{
		viewport:          vp,
		camera:            cam.snapshot(r.engine.transforms),
		blend:             blend,
		clear:             r.clear,
		scene:             scene,
		sceneVersion:      scene.currentVersion(),
		transformVersion:  r.engine.transforms.Version(),
		renderableVersion: r.engine.renderables.Version(),
		light:             scene.IndirectLight(),
	}
	key.width, key.height = r.current.sc.Size()
	r.current.passes = append(r.current.passes, renderPass{key: key, entities: scene.snapshot()})
}

// ReadPixels requests an asynchronous copy of vp from the last view rendered
// in the current frame. The rows of desc.Buffer are filled top to bottom.
func (r *Renderer) ReadPixels(vp engine.Viewport, desc engine.PixelBufferDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return ErrNoFrame
	}
	if len(r.current.passes) == 0 {
		return ErrNothingToRead
	}
	if desc.Callback == nil {
		return fmt.Errorf("renderer: readback without callback")
	}
	if desc.Type != engine.PixelUByte {
		return fmt.Errorf("renderer: unsupported pixel type %d", desc.Type)
	}

	w, h := r.current.sc.Size()
	if vp.Width <= 0 || vp.Height <= 0 || vp.Left < 0 || vp.Bottom < 0 ||
		vp.Left+vp.Width > w || vp.Bottom+vp.Height > h {
		return fmt.Errorf("renderer: viewport %s outside %dx%d swap chain", vp, w, h)
	}
	if need := vp.Width * vp.Height * desc.Format.Channels(); len(desc.Buffer) < need {
		return fmt.Errorf("renderer: buffer holds %d bytes, readback of %s needs %d", len(desc.Buffer), vp, need)
	}

	r.current.readbacks = append(r.current.readbacks, readback{
		pass: len(r.current.passes) - 1,
		vp:   vp,
		desc: desc,
	})
	return nil
}

// EndFrame submits the recorded frame to the driver
func (r *Renderer) EndFrame() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return
	}
	// acquire guarantees the channel has room for this frame
	r.frames <- r.current
	r.current = nil
}

// Close stops the driver after the submitted frames are executed and
// delivers every outstanding readback
func (r *Renderer) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	if r.current != nil {
		r.current.sc.release()
		r.current = nil
	}
	r.mu.Unlock()

	close(r.frames)
	<-r.done
}

// drive executes frames in submission order
func (r *Renderer) drive() {
	defer close(r.done)

	var pending []completion
	for f := range r.frames {
		ready := r.execute(f)
		deliver(pending)
		pending = ready
		f.sc.release()
	}
	deliver(pending)
}

func deliver(completions []completion) {
	for _, c := range completions {
		c.desc.Callback(c.desc.Buffer, c.desc.User)
	}
}

// execute renders the passes of f and fills its readback buffers
func (r *Renderer) execute(f *frame) []completion {
	buffers := make([]*colorBuffer, len(f.passes))
	for i, p := range f.passes {
		buffers[i] = r.renderPass(p)
	}

	ready := make([]completion, 0, len(f.readbacks))
	for _, rb := range f.readbacks {
		copyViewport(buffers[rb.pass], rb.vp, rb.desc)
		ready = append(ready, completion{desc: rb.desc})
	}
	return ready
}

// renderPass returns the color buffer of p, reusing the previous one when
// nothing it depends on changed
func (r *Renderer) renderPass(p renderPass) *colorBuffer {
	if r.cacheBuf != nil && p.key == r.cacheKey {
		return r.cacheBuf
	}

	start := time.Now()
	world := r.worldFor(p)

	fs := &frameState{
		width:    p.key.width,
		height:   p.key.height,
		viewport: p.key.viewport,
		rays:     newRayGenerator(p.key.camera),
		near:     p.key.camera.Near,
		far:      p.key.camera.Far,
		world:    world,
		light:    defaultSky,
		exposure: 1,
		blend:    p.key.blend,
		clear:    p.key.clear,
		samples:  r.engine.opts.Samples,
	}
	if p.key.light != nil {
		fs.light = p.key.light
		fs.exposure = p.key.camera.Exposure
	}

	buf := newColorBuffer(p.key.width, p.key.height)
	if p.key.clear.Clear {
		buf.fill(encodePixel(fs.background()))
	}
	stats := r.engine.renderFrame(fs, buf)

	r.cacheKey, r.cacheBuf = p.key, buf
	slog.Debug("renderer: rendered view",
		"viewport", p.key.viewport.String(),
		"triangles", len(world.triangles),
		"samples", stats.TotalSamples,
		"coverage", stats.Coverage(),
		"duration_ms", time.Since(start).Milliseconds())
	return buf
}

// worldFor returns the acceleration structure for the scene state of p
func (r *Renderer) worldFor(p renderPass) *bvh {
	sameWorld := r.world != nil &&
		p.key.scene == r.worldKey.scene &&
		p.key.sceneVersion == r.worldKey.sceneVersion &&
		p.key.transformVersion == r.worldKey.transformVersion &&
		p.key.renderableVersion == r.worldKey.renderableVersion
	if sameWorld {
		return r.world
	}

	var triangles []triangle
	for _, e := range p.entities {
		triangles = r.engine.renderables.appendTriangles(triangles, e)
	}
	r.world = newBVH(triangles)
	r.worldKey = p.key
	return r.world
}

// copyViewport copies vp out of cb into desc.Buffer, top row first
func copyViewport(cb *colorBuffer, vp engine.Viewport, desc engine.PixelBufferDescriptor) {
	channels := desc.Format.Channels()
	i := 0
	for row := 0; row < vp.Height; row++ {
		y := vp.Bottom + vp.Height - 1 - row
		for x := vp.Left; x < vp.Left+vp.Width; x++ {
			px := cb.at(x, y)
			copy(desc.Buffer[i:i+channels], px[:channels])
			i += channels
		}
	}
}
