// Package config holds the tunables of a turntable capture run.
//
// Every field has a default matching the reference capture setup. A TOML file
// may override any subset of them.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// EnvFile names the environment variable holding an explicit config path
const EnvFile = "TURNTABLE_CONFIG"

// DefaultFile is read from the working directory when present
const DefaultFile = "turntable.toml"

// Config configures the renderer, camera, lighting and output
type Config struct {
	Resolution int `toml:"resolution"`

	Camera   CameraConfig   `toml:"camera"`
	IBL      IBLConfig      `toml:"ibl"`
	Renderer RendererConfig `toml:"renderer"`
	Output   OutputConfig   `toml:"output"`

	LogLevel string `toml:"log_level"`
}

// CameraConfig sets the lens and exposure
type CameraConfig struct {
	FocalLength  float64 `toml:"focal_length"` // millimeters
	Near         float64 `toml:"near"`
	Far          float64 `toml:"far"`
	Aperture     float32 `toml:"aperture"`      // f-stops
	ShutterSpeed float32 `toml:"shutter_speed"` // seconds
	Sensitivity  float32 `toml:"sensitivity"`   // ISO
}

// IBLConfig locates the environment map
type IBLConfig struct {
	Path      string  `toml:"path"`
	Intensity float32 `toml:"intensity"`
}

// RendererConfig tunes the software renderer
type RendererConfig struct {
	Samples  int `toml:"samples"`
	Workers  int `toml:"workers"` // 0 uses every CPU
	TileSize int `toml:"tile_size"`
	// ClearColor is linear RGBA written where no geometry is hit
	ClearColor [4]float32 `toml:"clear_color"`
	// FrameTimeout bounds the capture of one view, e.g. "30s"
	FrameTimeout Duration `toml:"frame_timeout"`
}

// OutputConfig selects the image format and destination
type OutputConfig struct {
	Format      string `toml:"format"` // png or jpeg
	JPEGQuality int    `toml:"jpeg_quality"`
	Dir         string `toml:"dir"`
}

// Duration is a time.Duration written as a Go duration string in TOML
type Duration time.Duration

// UnmarshalText parses strings like "1m30s"
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration as a Go duration string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns the reference configuration
func Default() Config {
	return Config{
		Resolution: 512,
		Camera: CameraConfig{
			FocalLength:  40,
			Near:         0.1,
			Far:          100,
			Aperture:     16,
			ShutterSpeed: 1.0 / 125,
			Sensitivity:  100,
		},
		IBL: IBLConfig{
			Path:      "assets/lightroom_14b.hdr",
			Intensity: 30000,
		},
		Renderer: RendererConfig{
			Samples:      4,
			Workers:      0,
			TileSize:     64,
			ClearColor:   [4]float32{1, 1, 1, 0},
			FrameTimeout: Duration(time.Minute),
		},
		Output: OutputConfig{
			Format:      "png",
			JPEGQuality: 90,
		},
		LogLevel: "info",
	}
}

// Load returns the defaults overridden by the file named in $TURNTABLE_CONFIG,
// or by turntable.toml in the working directory when the variable is unset.
// A missing default file is not an error; a missing explicit file is.
func Load() (Config, error) {
	if path := os.Getenv(EnvFile); path != "" {
		return LoadFile(path)
	}
	cfg, err := LoadFile(DefaultFile)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// LoadFile reads a TOML file over the defaults
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default(), err
	}
	cfg, err := Parse(data)
	if err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	slog.Debug("config: loaded", "path", path)
	return cfg, nil
}

// Parse decodes TOML over the defaults and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return cfg, fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks ranges and enumerations
func (c Config) Validate() error {
	var errs []error
	if c.Resolution <= 0 {
		errs = append(errs, fmt.Errorf("resolution must be positive, got %d", c.Resolution))
	}
	if c.Camera.FocalLength <= 0 {
		errs = append(errs, fmt.Errorf("camera.focal_length must be positive, got %v", c.Camera.FocalLength))
	}
	if c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near {
		errs = append(errs, fmt.Errorf("camera clip range [%v, %v] is invalid", c.Camera.Near, c.Camera.Far))
	}
	if c.Camera.Aperture <= 0 || c.Camera.ShutterSpeed <= 0 || c.Camera.Sensitivity <= 0 {
		errs = append(errs, errors.New("camera exposure settings must be positive"))
	}
	if c.IBL.Intensity < 0 {
		errs = append(errs, fmt.Errorf("ibl.intensity must not be negative, got %v", c.IBL.Intensity))
	}
	if c.Renderer.Samples <= 0 {
		errs = append(errs, fmt.Errorf("renderer.samples must be positive, got %d", c.Renderer.Samples))
	}
	if c.Renderer.Workers < 0 {
		errs = append(errs, fmt.Errorf("renderer.workers must not be negative, got %d", c.Renderer.Workers))
	}
	if c.Renderer.TileSize <= 0 {
		errs = append(errs, fmt.Errorf("renderer.tile_size must be positive, got %d", c.Renderer.TileSize))
	}
	if c.Renderer.FrameTimeout < 0 {
		errs = append(errs, errors.New("renderer.frame_timeout must not be negative"))
	}
	switch c.Output.Format {
	case "png", "jpeg", "jpg":
	default:
		errs = append(errs, fmt.Errorf("output.format %q is not png or jpeg", c.Output.Format))
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("output.jpeg_quality must be in [1, 100], got %d", c.Output.JPEGQuality))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLevel maps a log_level name to a slog level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level %q is not debug, info, warn or error", name)
	}
}
