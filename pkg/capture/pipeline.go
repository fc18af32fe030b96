package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/df07/go-turntable-renderer/pkg/engine"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// ErrFrameTimeout is returned when a capture does not complete before its deadline
var ErrFrameTimeout = errors.New("capture: frame timeout")

// State is the progress of a single capture
type State int32

const (
	StateIdle State = iota
	StateFrameSubmitted
	StateReadbackPending
	StateEncoding
	StateWritten
	StateFailed
)

var stateNames = [...]string{"idle", "frame-submitted", "readback-pending", "encoding", "written", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

// CaptureState tracks one view capture. The readback callback is the only
// writer of the completion flag and the error.
type CaptureState struct {
	View     engine.View
	Filename string
	TraceID  string

	state     atomic.Int32
	done      atomic.Bool
	abandoned atomic.Bool
	mu        sync.Mutex
	err       error
}

func newCaptureState(view engine.View, filename string) *CaptureState {
	return &CaptureState{View: view, Filename: filename, TraceID: uuid.NewString()}
}

// State returns the current step of the capture
func (s *CaptureState) State() State { return State(s.state.Load()) }

// Done reports whether the readback callback has finished
func (s *CaptureState) Done() bool { return s.done.Load() }

// Err returns the error raised by the callback, if any
func (s *CaptureState) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Abandoned reports whether the capture gave up waiting for its readback.
// A late callback for an abandoned capture writes nothing.
func (s *CaptureState) Abandoned() bool { return s.abandoned.Load() }

func (s *CaptureState) setState(st State) { s.state.Store(int32(st)) }

func (s *CaptureState) abandon(err error) {
	s.abandoned.Store(true)
	s.fail(err)
}

func (s *CaptureState) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.setState(StateFailed)
}

// Pipeline captures views of a scene through an engine renderer
type Pipeline struct {
	Renderer  engine.Renderer
	SwapChain engine.SwapChain
	View      engine.View
	Camera    engine.Camera
	Encoder   Encoder
	// Dir is the output directory, the working directory when empty
	Dir string
	// Timeout bounds each capture, zero for none
	Timeout time.Duration
}

// Run captures every view direction in order and returns the files written.
// It stops at the first failed view.
func (p *Pipeline) Run(ctx context.Context) ([]string, error) {
	var written []string
	for i, dir := range ViewDirections {
		p.Camera.LookAt(EyePosition(dir), mgl32.Vec3{}, UpVector(dir))

		path := filepath.Join(p.Dir, Filename(i, p.Encoder.Extension()))
		if err := p.RenderToFile(ctx, path); err != nil {
			return written, fmt.Errorf("capture: view %d: %w", i, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// RenderToFile renders the view once, reads it back and writes the encoded
// image to filename. Frames keep being submitted until the readback completes.
func (p *Pipeline) RenderToFile(ctx context.Context, filename string) error {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	start := time.Now()
	state := newCaptureState(p.View, filename)
	log := slog.With("file", filename, "trace_id", state.TraceID)
	log.Info("capture: rendering")

	vp := p.View.Viewport()
	if vp.Width <= 0 || vp.Height <= 0 {
		return fmt.Errorf("capture: empty viewport %v", vp)
	}
	desc := engine.PixelBufferDescriptor{
		Buffer:   make([]byte, vp.Width*vp.Height*4),
		Format:   engine.PixelRGBA,
		Type:     engine.PixelUByte,
		Callback: p.onReadback(vp),
		User:     state,
	}

	for !p.Renderer.BeginFrame(p.SwapChain) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: begin frame: %w", ErrFrameTimeout, err)
		}
		runtime.Gosched()
	}
	p.Renderer.Render(p.View)
	state.setState(StateFrameSubmitted)
	if err := p.Renderer.ReadPixels(vp, desc); err != nil {
		p.Renderer.EndFrame()
		return fmt.Errorf("capture: read pixels: %w", err)
	}
	p.Renderer.EndFrame()
	state.setState(StateReadbackPending)

	frames := 1
	for !state.Done() {
		if err := ctx.Err(); err != nil {
			log.Warn("capture: readback did not complete", "frames", frames, "state", state.State().String())
			err = fmt.Errorf("%w: readback: %w", ErrFrameTimeout, err)
			state.abandon(err)
			return err
		}
		if p.Renderer.BeginFrame(p.SwapChain) {
			p.Renderer.Render(p.View)
			p.Renderer.EndFrame()
			frames++
		} else {
			runtime.Gosched()
		}
	}

	if err := state.Err(); err != nil {
		return err
	}
	log.Info("capture: render + image write",
		"frames", frames,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// onReadback returns the completion callback for a readback of vp. It encodes
// and writes the buffer, then raises the completion flag.
func (p *Pipeline) onReadback(vp engine.Viewport) engine.ReadbackCallback {
	enc := p.Encoder
	return func(buffer []byte, user any) {
		state := user.(*CaptureState)
		defer state.done.Store(true)
		if state.Abandoned() {
			return
		}
		state.setState(StateEncoding)

		pix, channels := buffer, 4
		if enc.Channels() == 3 {
			pix, channels = ConvertRGBAtoRGB(buffer, vp.Width, vp.Height), 3
		}

		payload, err := enc.Encode(pix, vp.Width, vp.Height, channels)
		if err != nil {
			state.fail(err)
			return
		}
		if state.Abandoned() {
			return
		}
		if err := os.WriteFile(state.Filename, payload, 0o644); err != nil {
			state.fail(fmt.Errorf("capture: write: %w", err))
			return
		}
		state.setState(StateWritten)
	}
}
