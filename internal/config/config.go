// Package config handles atmosphere tool configuration loading and management.
package config

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-atmosphere/pkg/atmosphere"
	"github.com/Faultbox/midgard-atmosphere/pkg/formats"
	"github.com/Faultbox/midgard-atmosphere/pkg/precompute"
)

// Config holds all settings shared by the atmosphere tools.
type Config struct {
	Atmosphere atmosphere.Parameters   `yaml:"atmosphere"`
	Textures   atmosphere.TextureSizes `yaml:"textures"`
	Features   atmosphere.Features     `yaml:"features"`
	Precompute PrecomputeConfig        `yaml:"precompute"`
	Output     OutputConfig            `yaml:"output"`
	View       ViewConfig              `yaml:"view"`
	Logging    LoggingConfig           `yaml:"logging"`
}

// PrecomputeConfig holds LUT precomputation settings.
type PrecomputeConfig struct {
	ScatteringOrders int    `yaml:"scattering_orders"`
	Backend          string `yaml:"backend"` // "parallel" or "serial"
	Workers          int    `yaml:"workers"` // 0 = one per CPU
}

// OutputConfig holds LUT bundle settings.
type OutputConfig struct {
	Path     string `yaml:"path"`
	Encoding string `yaml:"encoding"` // "float32" or "half"
}

// ViewConfig holds image and viewer settings.
type ViewConfig struct {
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	VSync      bool    `yaml:"vsync"`
	Projection string  `yaml:"projection"` // "fisheye" or "panorama"
	Exposure   float64 `yaml:"exposure"`   // 0 = default for the unit
	Luminance  bool    `yaml:"luminance"`
	Altitude   float64 `yaml:"altitude"` // meters above ground
	SunZenith  float64 `yaml:"sun_zenith"`
	SunAzimuth float64 `yaml:"sun_azimuth"`
	// UnitsPerFrame is how many precomputation units the viewer runs
	// between frames.
	UnitsPerFrame int `yaml:"units_per_frame"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Atmosphere: atmosphere.Earth(),
		Textures:   atmosphere.DefaultTextureSizes(),
		Features:   atmosphere.Features{},
		Precompute: PrecomputeConfig{
			ScatteringOrders: precompute.DefaultScatteringOrders,
			Backend:          "parallel",
			Workers:          0,
		},
		Output: OutputConfig{
			Path:     "atmosphere.luts",
			Encoding: "float32",
		},
		View: ViewConfig{
			Width:         1280,
			Height:        720,
			VSync:         true,
			Projection:    "fisheye",
			Altitude:      1,
			SunZenith:     60,
			SunAzimuth:    180,
			UnitsPerFrame: 1,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks the atmosphere, texture and tool settings.
func (c *Config) Validate() error {
	if _, err := atmosphere.NewModel(c.Atmosphere, c.Textures, c.Features); err != nil {
		return err
	}
	if _, err := precompute.Plan(c.Precompute.ScatteringOrders); err != nil {
		return fmt.Errorf("precompute: %w", err)
	}
	switch c.Precompute.Backend {
	case "", "serial", "parallel":
	default:
		return fmt.Errorf("precompute: unknown backend %q", c.Precompute.Backend)
	}
	if c.Precompute.Workers < 0 {
		return fmt.Errorf("precompute: workers must not be negative, got %d", c.Precompute.Workers)
	}
	if _, err := formats.ParseLUTEncoding(c.Output.Encoding); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if c.View.Width <= 0 || c.View.Height <= 0 {
		return fmt.Errorf("view: invalid size %dx%d", c.View.Width, c.View.Height)
	}
	switch c.View.Projection {
	case "", "fisheye", "panorama":
	default:
		return fmt.Errorf("view: unknown projection %q", c.View.Projection)
	}
	if c.View.UnitsPerFrame < 1 {
		return fmt.Errorf("view: units_per_frame must be at least 1, got %d", c.View.UnitsPerFrame)
	}
	return nil
}

// Encoding returns the parsed output encoding.
func (c *Config) Encoding() formats.LUTEncoding {
	enc, err := formats.ParseLUTEncoding(c.Output.Encoding)
	if err != nil {
		return formats.EncodingFloat32
	}
	return enc
}

// NewBackend creates the configured compute backend. The caller closes a
// parallel backend when done.
func (c *Config) NewBackend() (precompute.Backend, error) {
	return precompute.NewBackend(c.Precompute.Backend, c.Precompute.Workers)
}

// PrecomputeOptions returns the precomputer options for this config.
func (c *Config) PrecomputeOptions(backend precompute.Backend, log *zap.Logger) precompute.Options {
	return precompute.Options{
		Sizes:            c.Textures,
		Features:         c.Features,
		ScatteringOrders: c.Precompute.ScatteringOrders,
		Backend:          backend,
		Logger:           log,
	}
}
