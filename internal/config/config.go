package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Window holds the initial window size in logical pixels.
type Window struct {
	Width  int `koanf:"width" toml:"width"`
	Height int `koanf:"height" toml:"height"`
}

// Orientation overrides what the display reports.
type Orientation struct {
	// Fixed pins the raw orientation label, e.g. "portrait-primary".
	Fixed string `koanf:"fixed" toml:"fixed,omitempty"`
	// Mode pins the display mode: browser, fullscreen, standalone or
	// window-controls-overlay.
	Mode string `koanf:"mode" toml:"mode,omitempty"`
}

// Notify holds notification settings.
type Notify struct {
	Change bool `koanf:"change" toml:"change"`
	Copy   bool `koanf:"copy" toml:"copy"`
}

// Store holds wallpaper persistence settings.
type Store struct {
	Enabled bool   `koanf:"enabled" toml:"enabled"`
	Path    string `koanf:"path" toml:"path,omitempty"`
}

// Config holds the application configuration.
type Config struct {
	Source      string      `koanf:"source" toml:"source,omitempty"`
	Quality     string      `koanf:"quality" toml:"quality"`
	FPS         int         `koanf:"fps" toml:"fps"`
	Window      Window      `koanf:"window" toml:"window"`
	Orientation Orientation `koanf:"orientation" toml:"orientation"`
	Notify      Notify      `koanf:"notify" toml:"notify"`
	Store       Store       `koanf:"store" toml:"store"`
}

// New creates a new Config with defaults.
func New() *Config {
	return &Config{
		Quality: "bilinear",
		FPS:     60,
		Window:  Window{Width: 1024, Height: 768},
		Store:   Store{Enabled: true},
	}
}

// String implements fmt.Stringer and returns the configuration as TOML.
func (c *Config) String() string {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("# marshal config: %v\n", err)
	}
	return string(data)
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(c.String()), 0o644)
}

// normalize expands paths and replaces out of range values with defaults.
func (c *Config) normalize() {
	def := New()
	c.Source = expandPath(strings.TrimSpace(c.Source))
	c.Store.Path = expandPath(strings.TrimSpace(c.Store.Path))
	c.Quality = strings.ToLower(strings.TrimSpace(c.Quality))
	if c.Quality == "" {
		c.Quality = def.Quality
	}
	if c.FPS <= 0 || c.FPS > 240 {
		c.FPS = def.FPS
	}
	if c.Window.Width <= 0 {
		c.Window.Width = def.Window.Width
	}
	if c.Window.Height <= 0 {
		c.Window.Height = def.Window.Height
	}
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
