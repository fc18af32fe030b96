package renderer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/df07/go-turntable-renderer/pkg/engine"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRig struct {
	engine   *Engine
	renderer *Renderer
	view     *View
	scene    *Scene
	camera   *Camera
	chain    *SwapChain
}

// newTestRig renders a red quad spanning x in [-0.2, 0.2] and y in [0.05, 0.2]
// seen from z = 2 with the default 50mm lens
func newTestRig(t *testing.T, size int) *testRig {
	t.Helper()
	e := NewEngine(Options{Samples: 1, Workers: 2, TileSize: 8})
	t.Cleanup(e.Close)

	chain, err := e.CreateSwapChain(size, size)
	require.NoError(t, err)

	rig := &testRig{
		engine:   e,
		renderer: e.CreateRenderer(),
		view:     e.CreateView(),
		scene:    e.CreateScene(),
		camera:   e.CreateCamera(e.CreateEntity()),
		chain:    chain,
	}
	rig.camera.LookAt(mgl32.Vec3{0, 0, 2}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	rig.view.SetViewport(engine.Viewport{Width: size, Height: size})
	rig.view.SetCamera(rig.camera)
	rig.view.SetScene(rig.scene)
	rig.view.SetBlendMode(engine.BlendTranslucent)
	rig.renderer.SetClearOptions(engine.ClearOptions{ClearColor: mgl32.Vec4{1, 1, 1, 0}, Clear: true})

	quad := e.CreateEntity()
	mi := e.CreateMaterial(engine.MaterialDesc{Name: "red", BaseColor: mgl32.Vec4{1, 0, 0, 1}})
	require.NoError(t, e.RenderableManager().SetPrimitives(quad, []engine.Primitive{{
		Geometry: engine.Geometry{
			Positions: []mgl32.Vec3{{-0.2, 0.05, 0}, {0.2, 0.05, 0}, {0.2, 0.2, 0}, {-0.2, 0.2, 0}},
			Indices:   []uint32{0, 1, 2, 0, 2, 3},
		},
		Material: mi,
	}}))
	rig.scene.AddEntity(quad)
	return rig
}

// capture reads back the whole viewport, pumping frames until the callback runs
func (rig *testRig) capture(t *testing.T) []byte {
	t.Helper()
	vp := rig.view.Viewport()
	deadline := time.Now().Add(10 * time.Second)

	var done atomic.Bool
	var got []byte
	desc := engine.PixelBufferDescriptor{
		Buffer: make([]byte, vp.Width*vp.Height*4),
		Format: engine.PixelRGBA,
		Type:   engine.PixelUByte,
		Callback: func(buffer []byte, user any) {
			got = buffer
			done.Store(true)
		},
	}

	for !rig.renderer.BeginFrame(rig.chain) {
		require.True(t, time.Now().Before(deadline), "swap chain never became ready")
	}
	rig.renderer.Render(rig.view)
	require.NoError(t, rig.renderer.ReadPixels(vp, desc))
	rig.renderer.EndFrame()

	for !done.Load() {
		require.True(t, time.Now().Before(deadline), "readback never completed")
		if rig.renderer.BeginFrame(rig.chain) {
			rig.renderer.Render(rig.view)
			rig.renderer.EndFrame()
		}
	}
	return got
}

func pixelAt(buf []byte, width, x, row int) [4]byte {
	i := (row*width + x) * 4
	return [4]byte{buf[i], buf[i+1], buf[i+2], buf[i+3]}
}

func TestRendererCapture(t *testing.T) {
	rig := newTestRig(t, 32)
	buf := rig.capture(t)
	require.Len(t, buf, 32*32*4)

	// Rows are top to bottom, so the quad above the center lands in the upper half
	hit := pixelAt(buf, 32, 16, 11)
	assert.Equal(t, byte(255), hit[3])
	assert.Greater(t, hit[0], byte(200))
	assert.Equal(t, byte(0), hit[1])
	assert.Equal(t, byte(0), hit[2])

	mirrored := pixelAt(buf, 32, 16, 20)
	assert.Equal(t, [4]byte{255, 255, 255, 0}, mirrored)
	assert.Equal(t, [4]byte{255, 255, 255, 0}, pixelAt(buf, 32, 0, 0))
}

func TestRendererCaptureIsRepeatable(t *testing.T) {
	rig := newTestRig(t, 16)
	first := rig.capture(t)
	second := rig.capture(t)
	assert.Equal(t, first, second)
}

func TestRendererCaptureOpaque(t *testing.T) {
	rig := newTestRig(t, 16)
	rig.view.SetBlendMode(engine.BlendOpaque)
	buf := rig.capture(t)
	assert.Equal(t, [4]byte{255, 255, 255, 255}, pixelAt(buf, 16, 0, 0))
}

func TestRendererCallbackWaitsForNextFrame(t *testing.T) {
	rig := newTestRig(t, 8)
	vp := rig.view.Viewport()

	var done atomic.Bool
	require.True(t, rig.renderer.BeginFrame(rig.chain))
	rig.renderer.Render(rig.view)
	require.NoError(t, rig.renderer.ReadPixels(vp, engine.PixelBufferDescriptor{
		Buffer:   make([]byte, vp.Width*vp.Height*4),
		Callback: func([]byte, any) { done.Store(true) },
	}))
	rig.renderer.EndFrame()

	// Without another frame the readback stays pending
	time.Sleep(100 * time.Millisecond)
	assert.False(t, done.Load())

	deadline := time.Now().Add(10 * time.Second)
	for !rig.renderer.BeginFrame(rig.chain) {
		require.True(t, time.Now().Before(deadline))
	}
	rig.renderer.Render(rig.view)
	rig.renderer.EndFrame()

	for !done.Load() {
		require.True(t, time.Now().Before(deadline), "readback never completed")
		time.Sleep(time.Millisecond)
	}
}

func TestRendererCloseFlushesReadbacks(t *testing.T) {
	rig := newTestRig(t, 8)
	vp := rig.view.Viewport()

	var user any
	require.True(t, rig.renderer.BeginFrame(rig.chain))
	rig.renderer.Render(rig.view)
	require.NoError(t, rig.renderer.ReadPixels(vp, engine.PixelBufferDescriptor{
		Buffer:   make([]byte, vp.Width*vp.Height*4),
		Callback: func(_ []byte, u any) { user = u },
		User:     "state",
	}))
	rig.renderer.EndFrame()

	rig.renderer.Close()
	assert.Equal(t, "state", user)
	assert.False(t, rig.renderer.BeginFrame(rig.chain))
}

func TestRendererReadPixelsValidation(t *testing.T) {
	rig := newTestRig(t, 8)
	vp := rig.view.Viewport()
	good := engine.PixelBufferDescriptor{
		Buffer:   make([]byte, vp.Width*vp.Height*4),
		Callback: func([]byte, any) {},
	}

	assert.ErrorIs(t, rig.renderer.ReadPixels(vp, good), ErrNoFrame)

	require.True(t, rig.renderer.BeginFrame(rig.chain))
	assert.ErrorIs(t, rig.renderer.ReadPixels(vp, good), ErrNothingToRead)
	rig.renderer.Render(rig.view)

	short := good
	short.Buffer = make([]byte, 10)
	assert.Error(t, rig.renderer.ReadPixels(vp, short))

	noCallback := good
	noCallback.Callback = nil
	assert.Error(t, rig.renderer.ReadPixels(vp, noCallback))

	assert.Error(t, rig.renderer.ReadPixels(engine.Viewport{Left: 4, Width: 8, Height: 8}, good))

	rgb := good
	rgb.Format = engine.PixelRGB
	rgb.Buffer = make([]byte, vp.Width*vp.Height*3)
	assert.NoError(t, rig.renderer.ReadPixels(vp, rgb))
	rig.renderer.EndFrame()
}

func TestRendererBackPressure(t *testing.T) {
	rig := newTestRig(t, 8)

	require.True(t, rig.renderer.BeginFrame(rig.chain))
	// A second BeginFrame while recording is refused
	assert.False(t, rig.renderer.BeginFrame(rig.chain))
	rig.renderer.EndFrame()

	chain := &SwapChain{width: 4, height: 4}
	assert.True(t, chain.acquire())
	assert.True(t, chain.acquire())
	assert.False(t, chain.acquire())
	assert.Equal(t, maxFramesInFlight, chain.FramesInFlight())
	chain.release()
	assert.True(t, chain.acquire())
}

func TestNewTileGrid(t *testing.T) {
	tiles := NewTileGrid(20, 10, 8)
	require.Len(t, tiles, 6)

	covered := 0
	for i, tile := range tiles {
		assert.Equal(t, i, tile.ID)
		covered += tile.Bounds.Dx() * tile.Bounds.Dy()
	}
	assert.Equal(t, 200, covered)
	assert.Equal(t, 4, tiles[2].Bounds.Dx())
	assert.Equal(t, 2, tiles[5].Bounds.Dy())
}
