package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Discovery DiscoveryConfig `toml:"discovery"`
	API       APIConfig       `toml:"api"`
	Playback  PlaybackConfig  `toml:"playback"`
	Backends  BackendsConfig  `toml:"backends"`
	TUI       TUIConfig       `toml:"tui"`
	Log       LogConfig       `toml:"log"`
	State     StateConfig     `toml:"state"`
}

// ServerConfig holds the manual server address and registry settings.
type ServerConfig struct {
	URL         string `toml:"url"`
	RegistryURL string `toml:"registry_url"`
	Network     string `toml:"network"`
}

// DiscoveryConfig holds local discovery and probing settings.
type DiscoveryConfig struct {
	Enabled            *bool    `toml:"enabled"`
	Service            string   `toml:"service"`
	BrowseTimeout      Duration `toml:"browse_timeout"`
	ProbeTimeout       Duration `toml:"probe_timeout"`
	ResolveConcurrency int      `toml:"resolve_concurrency"`
}

// DiscoveryEnabled reports whether mDNS browsing is on. Unset means on.
func (c *DiscoveryConfig) DiscoveryEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// APIConfig holds media server request settings.
type APIConfig struct {
	Timeout Duration `toml:"timeout"`
}

// PlaybackConfig holds session controller settings.
type PlaybackConfig struct {
	PollInterval       Duration           `toml:"poll_interval"`
	SeekDebounce       Duration           `toml:"seek_debounce"`
	SeekStep           float64            `toml:"seek_step"`
	EndPreviousOnStart bool               `toml:"end_previous_on_start"`
	Backend            string             `toml:"backend"`
	Capabilities       CapabilitiesConfig `toml:"capabilities"`
}

// CapabilitiesConfig describes what this client can decode. It is sent
// with every play request.
type CapabilitiesConfig struct {
	MaxResolution  string   `toml:"max_resolution"`
	MaxBitrateKbps int      `toml:"max_bitrate_kbps"`
	Containers     []string `toml:"containers"`
	VideoCodecs    []string `toml:"video_codecs"`
	AudioCodecs    []string `toml:"audio_codecs"`
}

// BackendsConfig groups per-backend settings.
type BackendsConfig struct {
	Stream   StreamBackendConfig   `toml:"stream"`
	External ExternalBackendConfig `toml:"external"`
	Embedded EmbeddedBackendConfig `toml:"embedded"`
}

// StreamBackendConfig configures the in-process stream backend.
type StreamBackendConfig struct {
	Sink             string   `toml:"sink"`
	NativeExtensions []string `toml:"native_extensions"`
}

// ExternalBackendConfig configures the external player handoff.
type ExternalBackendConfig struct {
	Binaries []string `toml:"binaries"`
}

// EmbeddedBackendConfig configures the embedded player surface.
type EmbeddedBackendConfig struct {
	Binary   string `toml:"binary"`
	Socket   string `toml:"socket"`
	WindowID string `toml:"window_id"`
	Overlay  bool   `toml:"overlay"`
}

// TUIConfig holds terminal UI settings.
type TUIConfig struct {
	Theme           string   `toml:"theme"`
	RefreshInterval Duration `toml:"refresh_interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// StateConfig locates the persisted server/token state.
type StateConfig struct {
	Path string `toml:"path"`
}

// Duration is a time.Duration written as a string ("250ms", "5s") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
