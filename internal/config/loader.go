package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	appName        = "coverpaper"
	configFileName = "config.toml"
	localFileName  = "coverpaper.toml"
)

// EnvSource names the environment variable that overrides the configured
// source.
const EnvSource = "COVERPAPER_SOURCE"

// Loader handles loading the configuration.
type Loader struct {
	Version      string // Build version, used to determine dev mode
	OverridePath string // Explicit config file, e.g. from -config
}

// NewLoader creates a new Loader.
func NewLoader(version string, overridePath string) *Loader {
	return &Loader{
		Version:      version,
		OverridePath: overridePath,
	}
}

// Load reads the configuration file, if any, on top of the defaults and
// applies environment overrides.
func (l *Loader) Load() (*Config, error) {
	cfg := New()
	if path := l.GetConfigPath(); path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		if err := k.Unmarshal("", cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvSource)); v != "" {
		cfg.Source = v
	}
	cfg.normalize()
	return cfg, nil
}

// GetConfigPath returns the path to the configuration file, or empty string if not found.
func (l *Loader) GetConfigPath() string {
	// 1. Explicit override
	if l.OverridePath != "" {
		if _, err := os.Stat(l.OverridePath); err == nil {
			return l.OverridePath
		}
	}

	// 2. Local run directory (dev mode)
	if l.Version == "dev" {
		wd, _ := os.Getwd()
		localPath := filepath.Join(wd, localFileName)
		if _, err := os.Stat(localPath); err == nil {
			return localPath
		}
	}

	// 3. XDG config directories
	if path, err := xdg.SearchConfigFile(filepath.Join(appName, configFileName)); err == nil {
		return path
	}
	return ""
}

// SavePath returns where `config save` writes: the override path if set,
// otherwise the user XDG config file.
func (l *Loader) SavePath() (string, error) {
	if l.OverridePath != "" {
		return l.OverridePath, nil
	}
	return xdg.ConfigFile(filepath.Join(appName, configFileName))
}
