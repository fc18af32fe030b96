// Package app wires the engine, the asset loader and the capture pipeline into
// a single turntable run.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cogentcore.org/core/base/errors"
	"github.com/df07/go-turntable-renderer/pkg/asset"
	"github.com/df07/go-turntable-renderer/pkg/capture"
	"github.com/df07/go-turntable-renderer/pkg/config"
	"github.com/df07/go-turntable-renderer/pkg/engine"
	"github.com/df07/go-turntable-renderer/pkg/framing"
	"github.com/df07/go-turntable-renderer/pkg/imagedec"
	"github.com/df07/go-turntable-renderer/pkg/renderer"
)

// App owns every engine object of a run. Close releases them in reverse
// acquisition order.
type App struct {
	cfg config.Config

	engine    *renderer.Engine
	swapChain *renderer.SwapChain
	renderer  *renderer.Renderer
	view      *renderer.View
	scene     *renderer.Scene

	cameraEntity  engine.Entity
	camera        *renderer.Camera
	rootTransform engine.Entity

	ibl       engine.IndirectLight
	loader    *asset.Loader
	resources *asset.ResourceLoader
	asset     *asset.Asset

	cleanups []func()
}

// New creates the engine, a square swap chain and view, the camera and the
// root transform every placed entity hangs from
func New(cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	a := &App{cfg: cfg}
	a.engine = renderer.NewEngine(renderer.Options{
		Samples:  cfg.Renderer.Samples,
		Workers:  cfg.Renderer.Workers,
		TileSize: cfg.Renderer.TileSize,
	})
	a.onClose(a.engine.Close)

	res := cfg.Resolution
	sc, err := a.engine.CreateSwapChain(res, res)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app: %w", err)
	}
	a.swapChain = sc

	a.renderer = a.engine.CreateRenderer()
	a.onClose(a.renderer.Close)
	a.scene = a.engine.CreateScene()
	a.view = a.engine.CreateView()
	a.view.SetViewport(engine.Viewport{Width: res, Height: res})

	a.cameraEntity = a.engine.CreateEntity()
	a.camera = a.engine.CreateCamera(a.cameraEntity)
	a.camera.SetExposure(cfg.Camera.Aperture, cfg.Camera.ShutterSpeed, cfg.Camera.Sensitivity)
	a.onClose(func() { a.engine.DestroyEntity(a.cameraEntity) })

	a.view.SetCamera(a.camera)
	a.view.SetScene(a.scene)

	a.rootTransform = a.engine.CreateEntity()
	a.engine.TransformManager().Create(a.rootTransform)
	a.onClose(func() { a.engine.DestroyEntity(a.rootTransform) })

	a.loader = asset.NewLoader(a.engine)

	// Pixels no geometry covers stay transparent so the clear color shows through
	a.view.SetBlendMode(engine.BlendTranslucent)

	slog.Debug("app: engine ready",
		"resolution", res,
		"workers", a.engine.Options().Workers,
		"samples", a.engine.Options().Samples)
	return a, nil
}

// onClose pushes a release step onto the cleanup stack
func (a *App) onClose(fn func()) {
	a.cleanups = append(a.cleanups, fn)
}

// Engine returns the software engine
func (a *App) Engine() *renderer.Engine { return a.engine }

// Scene returns the scene assets are added to
func (a *App) Scene() *renderer.Scene { return a.scene }

// Camera returns the capture camera
func (a *App) Camera() *renderer.Camera { return a.camera }

// Asset returns the loaded asset, nil before LoadAsset
func (a *App) Asset() *asset.Asset { return a.asset }

// IndirectLight returns the image based light, nil when none was loaded
func (a *App) IndirectLight() engine.IndirectLight { return a.ibl }

// LoadIBL loads an equirectangular environment map as the scene's indirect
// light. A missing or undecodable file is reported and leaves the scene on
// its default sky.
func (a *App) LoadIBL(path string) {
	info, err := os.Stat(path)
	if err != nil {
		errors.Log(fmt.Errorf("app: the specified IBL path does not exist: %s", path))
		return
	}
	if info.IsDir() {
		errors.Log(fmt.Errorf("app: could not load the specified IBL: %s is a directory", path))
		return
	}

	f, err := os.Open(path)
	if err != nil {
		errors.Log(fmt.Errorf("app: could not load the specified IBL: %w", err))
		return
	}
	defer f.Close()

	env := imagedec.Decode(f, path, imagedec.ColorSpaceLinear)
	if env.Empty() {
		errors.Log(fmt.Errorf("app: could not load the specified IBL: %s (%s)", path, identifyFile(f)))
		return
	}
	light, err := a.engine.CreateIndirectLight(env, a.cfg.IBL.Intensity)
	if err != nil {
		errors.Log(fmt.Errorf("app: could not load the specified IBL: %w", err))
		return
	}

	a.ibl = light
	a.scene.SetIndirectLight(light)
	a.onClose(func() {
		a.scene.SetIndirectLight(nil)
		a.ibl = nil
	})
	slog.Info("app: IBL loaded", "path", path, "width", env.Width, "height", env.Height)
}

// identifyFile names the type of an open file from its first bytes
func identifyFile(f io.ReadSeeker) string {
	head := make([]byte, imagedec.SignatureSize)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "unreadable"
	}
	n, _ := io.ReadFull(f, head)
	if mime := imagedec.Identify(head[:n]); mime != "" {
		return mime
	}
	return "unknown type"
}

// LoadAsset reads and parses the asset at path, loads its resources relative
// to its directory, prepares its materials and adds its renderables to the scene
func (a *App) LoadAsset(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("app: unable to open %s: %w", path, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("app: unable to open %s: %w", path, asset.ErrEmptyAsset)
	}
	slog.Debug("app: read asset", "path", path, "bytes", len(data))

	loaded, err := a.loader.CreateAsset(data)
	if err != nil {
		return fmt.Errorf("app: unable to parse %s: %w", path, err)
	}
	a.asset = loaded
	a.onClose(func() {
		a.loader.DestroyAsset(a.asset)
		a.asset = nil
	})

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	a.resources = asset.NewResourceLoader(a.engine, filepath.Dir(abs))
	textures := asset.StdTextureProvider{}
	a.resources.AddTextureProvider(asset.MimePNG, textures)
	a.resources.AddTextureProvider(asset.MimeJPEG, textures)
	a.resources.AddTextureProvider(asset.MimeWebP, textures)
	if err := a.resources.LoadResources(loaded); err != nil {
		return fmt.Errorf("app: unable to load resources of %s: %w", path, err)
	}

	prepared := a.prepareMaterials()
	for _, e := range loaded.RenderableEntities() {
		a.scene.AddEntity(e)
	}
	slog.Info("app: asset loaded",
		"path", path,
		"format", loaded.Format().String(),
		"renderables", len(loaded.RenderableEntities()),
		"materials", prepared)
	return nil
}

// prepareMaterials prepares each distinct material used by the asset's
// renderables once and returns how many there were
func (a *App) prepareMaterials() int {
	rm := a.engine.RenderableManager()
	unique := make(map[engine.Material]struct{})
	for _, e := range a.asset.RenderableEntities() {
		for i := 0; i < rm.PrimitiveCount(e); i++ {
			if mi := rm.MaterialInstanceAt(e, i); mi != nil {
				unique[mi.Material()] = struct{}{}
			}
		}
	}
	for m := range unique {
		m.Prepare()
	}
	return len(unique)
}

// SetupCamera fits the asset into the unit cube, converts it from y-up to
// z-up and points the camera at the default pose
func (a *App) SetupCamera() error {
	if a.asset == nil {
		return fmt.Errorf("app: no asset loaded")
	}
	bounds := a.asset.BoundingBox()
	placement, err := framing.Placement(bounds, 0, framing.YUp, framing.ZUp)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.engine.TransformManager().SetTransform(a.asset.Root(), placement)

	pose := framing.DefaultPose
	a.camera.LookAt(pose.Eye, pose.Target, pose.Up)

	slog.Debug("app: asset framed",
		"min", bounds.Min,
		"max", bounds.Max,
		"max_extent", bounds.MaxExtent())
	return nil
}

// PreRender sets the lens, matches the projection to the viewport aspect,
// parents the camera and the asset to the root transform and sets the clear color
func (a *App) PreRender() {
	cam := a.cfg.Camera
	a.camera.SetLensProjection(cam.FocalLength, 1, cam.Near, cam.Far)
	a.view.SetCamera(a.camera)

	vp := a.view.Viewport()
	aspect := float64(vp.Width) / float64(vp.Height)
	a.camera.SetScaling(1/aspect, 1)

	tm := a.engine.TransformManager()
	tm.SetParent(a.cameraEntity, a.rootTransform)
	if a.asset != nil {
		tm.SetParent(a.asset.Root(), a.rootTransform)
	}

	a.renderer.SetClearOptions(engine.ClearOptions{ClearColor: a.cfg.Renderer.ClearColor, Clear: true})
}

// Render captures every turntable view into the output directory and returns
// the files written
func (a *App) Render(ctx context.Context) ([]string, error) {
	enc, err := capture.EncoderFor(a.cfg.Output.Format, a.cfg.Output.JPEGQuality)
	if err != nil {
		return nil, err
	}
	p := &capture.Pipeline{
		Renderer:  a.renderer,
		SwapChain: a.swapChain,
		View:      a.view,
		Camera:    a.camera,
		Encoder:   enc,
		Dir:       a.cfg.Output.Dir,
		Timeout:   time.Duration(a.cfg.Renderer.FrameTimeout),
	}
	return p.Run(ctx)
}

// Close releases everything in reverse acquisition order. It is safe to call twice.
func (a *App) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}

// Run performs a complete capture of the asset at path
func Run(ctx context.Context, cfg config.Config, path string) ([]string, error) {
	a, err := New(cfg)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	start := time.Now()
	a.LoadIBL(cfg.IBL.Path)
	if err := a.LoadAsset(path); err != nil {
		return nil, err
	}
	slog.Info("app: load time", "duration_ms", time.Since(start).Milliseconds())

	if err := a.SetupCamera(); err != nil {
		return nil, err
	}
	a.PreRender()
	return a.Render(ctx)
}
