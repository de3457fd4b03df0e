package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads configuration from standard locations with environment overrides.
// Search order: $ELIXIR_CONFIG, ~/.elixirrc, $XDG_CONFIG_HOME/elixir/config.toml
func Load() (*Config, error) {
	cfg := &Config{}

	path := FindConfigFile()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadFrom reads configuration from a specific file path.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)
	return cfg, nil
}

// FindConfigFile returns the first existing config file path, or "".
func FindConfigFile() string {
	if p := os.Getenv("ELIXIR_CONFIG"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	paths := []string{
		filepath.Join(home, ".elixirrc"),
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	paths = append(paths, filepath.Join(xdgConfig, "elixir", "config.toml"))

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// DefaultPath is where `config init` writes a new file.
func DefaultPath() string {
	if p := os.Getenv("ELIXIR_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".elixirrc"
	}
	return filepath.Join(home, ".elixirrc")
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("ELIXIR_SERVER_URL"); v != "" {
		cfg.Server.URL = v
	}
	if v := os.Getenv("ELIXIR_REGISTRY_URL"); v != "" {
		cfg.Server.RegistryURL = v
	}
	if v := os.Getenv("ELIXIR_NETWORK"); v != "" {
		cfg.Server.Network = strings.ToLower(v)
	}

	// Playback
	if v := os.Getenv("ELIXIR_BACKEND"); v != "" {
		cfg.Playback.Backend = strings.ToLower(v)
	}

	// Log
	if v := os.Getenv("ELIXIR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ELIXIR_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}
