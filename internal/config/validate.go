package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := c.Discovery.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("discovery: %w", err))
	}
	if err := c.Playback.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("playback: %w", err))
	}
	if err := c.Backends.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("backends: %w", err))
	}
	if err := c.TUI.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tui: %w", err))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}

	return errors.Join(errs...)
}

// Validate checks ServerConfig for errors.
func (c *ServerConfig) Validate() error {
	if c.RegistryURL != "" {
		u, err := url.Parse(c.RegistryURL)
		if err != nil {
			return fmt.Errorf("invalid registry_url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("registry_url must be http or https: %s", c.RegistryURL)
		}
	}
	switch c.Network {
	case "", "lan", "wan":
		// valid
	default:
		return fmt.Errorf("invalid network: %s (must be lan or wan)", c.Network)
	}
	return nil
}

// Validate checks DiscoveryConfig for errors.
func (c *DiscoveryConfig) Validate() error {
	if c.BrowseTimeout.Duration < 0 || c.ProbeTimeout.Duration < 0 {
		return errors.New("timeouts must be non-negative")
	}
	if c.ResolveConcurrency < 0 {
		return errors.New("resolve_concurrency must be non-negative")
	}
	if c.Service != "" && !strings.HasSuffix(c.Service, "._tcp") && !strings.HasSuffix(c.Service, "._udp") {
		return fmt.Errorf("invalid service type: %s", c.Service)
	}
	return nil
}

// Validate checks PlaybackConfig for errors.
func (c *PlaybackConfig) Validate() error {
	if c.PollInterval.Duration < 0 || c.SeekDebounce.Duration < 0 {
		return errors.New("intervals must be non-negative")
	}
	if c.SeekStep < 0 {
		return errors.New("seek_step must be non-negative")
	}
	switch c.Backend {
	case "", "none", "stream", "external", "embedded":
		// valid
	default:
		return fmt.Errorf("invalid backend: %s (must be none, stream, external, or embedded)", c.Backend)
	}
	if c.Capabilities.MaxBitrateKbps < 0 {
		return errors.New("max_bitrate_kbps must be non-negative")
	}
	return nil
}

// Validate checks BackendsConfig for errors.
func (c *BackendsConfig) Validate() error {
	for _, ext := range c.Stream.NativeExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("native extension %q must start with a dot", ext)
		}
	}
	return nil
}

// Validate checks TUIConfig for errors.
func (c *TUIConfig) Validate() error {
	switch c.Theme {
	case "", "auto", "dark", "light":
		// valid
	default:
		return fmt.Errorf("invalid theme: %s (must be auto, dark, or light)", c.Theme)
	}
	if c.RefreshInterval.Duration < 0 {
		return errors.New("refresh_interval must be non-negative")
	}
	return nil
}

// Validate checks LogConfig for errors.
func (c *LogConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Level)
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return errors.New("rotation limits must be non-negative")
	}
	return nil
}
