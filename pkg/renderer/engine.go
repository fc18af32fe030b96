// Package renderer is a CPU implementation of the engine contracts. Frames are
// ray traced tile by tile on a worker pool against a BVH of world-space
// triangles, lit by image based lighting or a sky gradient.
package renderer

import (
	"fmt"
	"sync"

	"github.com/df07/go-turntable-renderer/pkg/engine"
	"github.com/df07/go-turntable-renderer/pkg/imagedec"
)

var (
	_ engine.Engine           = (*Engine)(nil)
	_ engine.Renderer         = (*Renderer)(nil)
	_ engine.View             = (*View)(nil)
	_ engine.Scene            = (*Scene)(nil)
	_ engine.Camera           = (*Camera)(nil)
	_ engine.SwapChain        = (*SwapChain)(nil)
	_ engine.IndirectLight    = (*IndirectLight)(nil)
	_ engine.MaterialInstance = (*MaterialInstance)(nil)
)

// Options configures the software engine
type Options struct {
	Samples  int // Samples per pixel
	Workers  int // Number of parallel workers (0 = use CPU count)
	TileSize int // Size of each tile in pixels
}

// DefaultOptions returns sensible default values
func DefaultOptions() Options {
	return Options{
		Samples:  4,
		Workers:  0,
		TileSize: 64,
	}
}

// Engine owns entities, components and the render workers
type Engine struct {
	opts        Options
	transforms  *TransformManager
	renderables *RenderableManager
	pool        *WorkerPool
	renderMu    sync.Mutex // serializes pool use across renderers

	mu         sync.Mutex
	nextEntity engine.Entity
	alive      map[engine.Entity]struct{}
	materials  map[string]*Material
	renderers  []*Renderer
	closed     bool
}

// NewEngine creates an engine and starts its workers
func NewEngine(opts Options) *Engine {
	if opts.Samples <= 0 {
		opts.Samples = 1
	}
	transforms := newTransformManager()
	e := &Engine{
		opts:        opts,
		transforms:  transforms,
		renderables: newRenderableManager(transforms),
		pool:        NewWorkerPool(opts.Workers, opts.TileSize),
		alive:       make(map[engine.Entity]struct{}),
		materials:   make(map[string]*Material),
	}
	e.pool.Start()
	return e
}

// Options returns the options the engine was created with
func (e *Engine) Options() Options { return e.opts }

// CreateEntity returns a new non-null entity
func (e *Engine) CreateEntity() engine.Entity {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextEntity++
	e.alive[e.nextEntity] = struct{}{}
	return e.nextEntity
}

// DestroyEntity removes e and its components
func (e *Engine) DestroyEntity(ent engine.Entity) {
	e.mu.Lock()
	delete(e.alive, ent)
	e.mu.Unlock()
	e.renderables.destroy(ent)
	e.transforms.destroy(ent)
}

// IsAlive reports whether ent was created and not destroyed
func (e *Engine) IsAlive(ent engine.Entity) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.alive[ent]
	return ok
}

// TransformManager returns the transform component manager
func (e *Engine) TransformManager() engine.TransformManager { return e.transforms }

// RenderableManager returns the renderable component manager
func (e *Engine) RenderableManager() engine.RenderableManager { return e.renderables }

// CreateMaterial creates an instance of the material named by desc. Instances
// with the same name share one Material.
func (e *Engine) CreateMaterial(desc engine.MaterialDesc) engine.MaterialInstance {
	name := desc.Name
	if name == "" {
		name = "default"
	}

	e.mu.Lock()
	m, ok := e.materials[name]
	if !ok {
		m = &Material{name: name}
		e.materials[name] = m
	}
	e.mu.Unlock()

	mi := &MaterialInstance{
		material:    m,
		baseColor:   desc.BaseColor,
		doubleSided: desc.DoubleSided,
	}
	if desc.BaseColorTexture != nil {
		mi.texture = newTexture(*desc.BaseColorTexture)
	}
	return mi
}

// MaterialCount returns the number of distinct materials created so far
func (e *Engine) MaterialCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.materials)
}

// CreateIndirectLight builds image based lighting from an equirectangular environment
func (e *Engine) CreateIndirectLight(env imagedec.LinearImage, intensity float32) (engine.IndirectLight, error) {
	light, err := NewIndirectLight(env, intensity)
	if err != nil {
		return nil, err
	}
	return light, nil
}

// CreateRenderer creates a renderer with its own driver goroutine
func (e *Engine) CreateRenderer() *Renderer {
	r := newRenderer(e)
	e.mu.Lock()
	e.renderers = append(e.renderers, r)
	e.mu.Unlock()
	return r
}

// CreateScene creates an empty scene
func (e *Engine) CreateScene() *Scene { return &Scene{} }

// CreateView creates a view with an empty viewport
func (e *Engine) CreateView() *View { return &View{} }

// CreateCamera attaches a camera to ent, giving it a transform component
func (e *Engine) CreateCamera(ent engine.Entity) *Camera {
	e.transforms.Create(ent)
	return newCamera(ent)
}

// CreateSwapChain creates an offscreen swap chain of the given size
func (e *Engine) CreateSwapChain(width, height int) (*SwapChain, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("renderer: invalid swap chain size %dx%d", width, height)
	}
	return &SwapChain{width: width, height: height}, nil
}

// Close stops every renderer, delivering outstanding readbacks, then the workers
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	renderers := e.renderers
	e.renderers = nil
	e.mu.Unlock()

	for _, r := range renderers {
		r.Close()
	}
	e.pool.Stop()
}

func (e *Engine) renderFrame(fs *frameState, out *colorBuffer) RenderStats {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()
	return e.pool.RenderFrame(fs, out)
}
