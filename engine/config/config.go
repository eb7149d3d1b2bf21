package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/Carmen-Shannon/oxy-bench/common"
	"github.com/pelletier/go-toml/v2"
)

// Defaults applied by Normalize to zero fields.
const (
	DefaultScene            = "complex"
	DefaultModelCount       = 100
	DefaultTimeLimitSeconds = 60
	DefaultWidth            = 1280
	DefaultHeight           = 720
	DefaultMSAA             = 4
	DefaultFramesInFlight   = 2
	DefaultResourceDir      = "resources"
	DefaultShaderDir        = "shaders"
)

// Config is the run configuration record. It is read from and written back to a TOML file.
type Config struct {
	// Backend is "vulkan", "wgpu" or "headless". Empty asks on the prompt.
	Backend string `toml:"backend"`

	// Scene is "complex" or "simple".
	Scene string `toml:"scene"`

	// ModelCount is the number of extra instances of the complex scene.
	ModelCount int `toml:"model_count"`

	// TimeLimitSeconds stops the run after this many seconds.
	TimeLimitSeconds int `toml:"time_limit_seconds"`

	Width  int `toml:"width"`
	Height int `toml:"height"`

	VSync          bool `toml:"vsync"`
	MSAA           int  `toml:"msaa"`
	FramesInFlight int  `toml:"frames_in_flight"`

	// Workers is the recorder pool size. Zero uses NumCPU-1.
	Workers int `toml:"workers"`

	Validation bool `toml:"validation"`

	// Software asks WGPU for a fallback adapter.
	Software bool `toml:"software"`

	ResourceDir string `toml:"resource_dir"`
	ShaderDir   string `toml:"shader_dir"`

	// LastFPS is the average frame rate of the previous run.
	LastFPS float64 `toml:"last_fps"`
}

// Default returns a Config with every default applied.
func Default() Config {
	var c Config
	c.Normalize()
	return c
}

// Normalize fills zero fields with their defaults. ModelCount may be set to a negative value to place no
// extra instances; it is clamped to 0.
func (c *Config) Normalize() {
	c.Scene = common.Coalesce(c.Scene, DefaultScene)
	c.ModelCount = common.Coalesce(c.ModelCount, DefaultModelCount)
	c.ModelCount = max(c.ModelCount, 0)
	c.TimeLimitSeconds = common.Coalesce(c.TimeLimitSeconds, DefaultTimeLimitSeconds)
	c.Width = common.Coalesce(c.Width, DefaultWidth)
	c.Height = common.Coalesce(c.Height, DefaultHeight)
	c.MSAA = common.Coalesce(c.MSAA, DefaultMSAA)
	c.FramesInFlight = common.Coalesce(c.FramesInFlight, DefaultFramesInFlight)
	c.ResourceDir = common.Coalesce(c.ResourceDir, DefaultResourceDir)
	c.ShaderDir = common.Coalesce(c.ShaderDir, DefaultShaderDir)
}

// TimeLimit returns TimeLimitSeconds as a duration.
func (c Config) TimeLimit() time.Duration {
	return time.Duration(c.TimeLimitSeconds) * time.Second
}

// Load reads a Config from a TOML file and normalizes it. A missing file yields Default without error.
// Unknown keys are rejected so a typo does not silently fall back to a default.
//
// Parameters:
//   - path: the TOML file
//
// Returns:
//   - Config: the loaded configuration
//   - error: a read or decode error
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var c Config
	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(&c); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	c.Normalize()
	return c, nil
}

// Save writes the Config to a TOML file, creating its directory when needed.
//
// Parameters:
//   - path: the TOML file
//
// Returns:
//   - error: an encode or write error
func (c Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
