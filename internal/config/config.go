package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the optional aiocp configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
}

// DefaultsConfig holds persistent flag defaults. Nil means unset.
type DefaultsConfig struct {
	ChunkSize   *string `toml:"chunk_size"`
	Slots       *int    `toml:"slots"`
	Backend     *string `toml:"backend"`
	Timeout     *string `toml:"timeout"`
	Verify      *bool   `toml:"verify"`
	MetricsFile *string `toml:"metrics_file"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "aiocp", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path. A missing file yields a zero Config.
func LoadFile(path string) (Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	d := c.Defaults
	if d.ChunkSize != nil {
		n, err := ParseSize(*d.ChunkSize)
		if err != nil {
			return fmt.Errorf("chunk_size: %w", err)
		}
		if err := ValidateChunkSize(n); err != nil {
			return fmt.Errorf("chunk_size: %w", err)
		}
	}
	if d.Slots != nil && *d.Slots <= 0 {
		return fmt.Errorf("slots must be positive, got %d", *d.Slots)
	}
	if d.Timeout != nil {
		if _, err := time.ParseDuration(*d.Timeout); err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
	}
	return nil
}
