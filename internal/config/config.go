package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	StatePath string `koanf:"state_path"` // sqlite db path, empty means XDG default

	// Catalog service (track and playlist data)
	Catalog CatalogConfig `koanf:"catalog"`

	// Playback behavior
	Playback PlaybackConfig `koanf:"playback"`

	// Logging
	Log LogConfig `koanf:"log"`
}

// CatalogConfig holds the track/playlist data service configuration.
type CatalogConfig struct {
	URL    string `koanf:"url"`    // e.g., "http://localhost:8090"
	APIKey string `koanf:"apikey"` // API key, optional
}

// PlaybackConfig holds playback defaults.
type PlaybackConfig struct {
	DefaultVolume int `koanf:"default_volume"`  // 0-100, used before a preference is saved (default: 100)
	AutoSkipLimit int `koanf:"auto_skip_limit"` // consecutive failures skipped on auto-advance, 1-10 (default: 3)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `koanf:"level"`  // "debug", "info", "warn", "error"
	Output string `koanf:"output"` // "stderr", "discard", or file path
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Try config files in order of priority (last wins)
	configPaths := getConfigPaths()

	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	if cfg.StatePath != "" {
		cfg.StatePath = expandPath(cfg.StatePath)
	}

	// Normalize catalog URL (remove trailing slash)
	cfg.Catalog.URL = strings.TrimSuffix(cfg.Catalog.URL, "/")

	return cfg, nil
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/cadence/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "cadence", "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// HasCatalogConfig returns true if the catalog service is configured.
func (c *Config) HasCatalogConfig() bool {
	return c.Catalog.URL != ""
}

// GetPlaybackConfig returns the playback configuration with defaults applied.
func (c *Config) GetPlaybackConfig() PlaybackConfig {
	cfg := c.Playback

	if cfg.DefaultVolume <= 0 || cfg.DefaultVolume > 100 {
		cfg.DefaultVolume = 100
	}
	if cfg.AutoSkipLimit <= 0 {
		cfg.AutoSkipLimit = 3
	} else if cfg.AutoSkipLimit > 10 {
		cfg.AutoSkipLimit = 10
	}

	return cfg
}
