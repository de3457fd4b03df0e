package config

import "time"

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Discovery: DiscoveryConfig{
			Service:            "_elixir-media._tcp",
			BrowseTimeout:      Duration{1200 * time.Millisecond},
			ProbeTimeout:       Duration{1500 * time.Millisecond},
			ResolveConcurrency: 4,
		},
		API: APIConfig{
			Timeout: Duration{6 * time.Second},
		},
		Playback: PlaybackConfig{
			PollInterval: Duration{5 * time.Second},
			SeekDebounce: Duration{250 * time.Millisecond},
			SeekStep:     10,
			Backend:      "none",
			Capabilities: CapabilitiesConfig{
				MaxResolution: "1080p",
				Containers:    []string{"mp4", "mkv", "webm"},
				VideoCodecs:   []string{"h264", "hevc", "vp9"},
				AudioCodecs:   []string{"aac", "mp3", "opus"},
			},
		},
		Backends: BackendsConfig{
			Stream: StreamBackendConfig{
				Sink:             "discard",
				NativeExtensions: []string{".mp4", ".m4v", ".webm", ".mp3", ".aac", ".m4a", ".ogg"},
			},
			External: ExternalBackendConfig{
				Binaries: []string{"vlc", "cvlc"},
			},
			Embedded: EmbeddedBackendConfig{
				Binary: "mpv",
			},
		},
		TUI: TUIConfig{
			Theme:           "auto",
			RefreshInterval: Duration{time.Second},
		},
		Log: LogConfig{
			Level:      "warn",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	d := Default()

	// Discovery
	if c.Discovery.Service == "" {
		c.Discovery.Service = d.Discovery.Service
	}
	if c.Discovery.BrowseTimeout.Duration == 0 {
		c.Discovery.BrowseTimeout = d.Discovery.BrowseTimeout
	}
	if c.Discovery.ProbeTimeout.Duration == 0 {
		c.Discovery.ProbeTimeout = d.Discovery.ProbeTimeout
	}
	if c.Discovery.ResolveConcurrency == 0 {
		c.Discovery.ResolveConcurrency = d.Discovery.ResolveConcurrency
	}

	// API
	if c.API.Timeout.Duration == 0 {
		c.API.Timeout = d.API.Timeout
	}

	// Playback
	if c.Playback.PollInterval.Duration == 0 {
		c.Playback.PollInterval = d.Playback.PollInterval
	}
	if c.Playback.SeekDebounce.Duration == 0 {
		c.Playback.SeekDebounce = d.Playback.SeekDebounce
	}
	if c.Playback.SeekStep == 0 {
		c.Playback.SeekStep = d.Playback.SeekStep
	}
	if c.Playback.Backend == "" {
		c.Playback.Backend = d.Playback.Backend
	}
	caps := &c.Playback.Capabilities
	if caps.MaxResolution == "" {
		caps.MaxResolution = d.Playback.Capabilities.MaxResolution
	}
	if len(caps.Containers) == 0 {
		caps.Containers = d.Playback.Capabilities.Containers
	}
	if len(caps.VideoCodecs) == 0 {
		caps.VideoCodecs = d.Playback.Capabilities.VideoCodecs
	}
	if len(caps.AudioCodecs) == 0 {
		caps.AudioCodecs = d.Playback.Capabilities.AudioCodecs
	}

	// Backends
	if c.Backends.Stream.Sink == "" {
		c.Backends.Stream.Sink = d.Backends.Stream.Sink
	}
	if len(c.Backends.Stream.NativeExtensions) == 0 {
		c.Backends.Stream.NativeExtensions = d.Backends.Stream.NativeExtensions
	}
	if len(c.Backends.External.Binaries) == 0 {
		c.Backends.External.Binaries = d.Backends.External.Binaries
	}
	if c.Backends.Embedded.Binary == "" {
		c.Backends.Embedded.Binary = d.Backends.Embedded.Binary
	}

	// TUI
	if c.TUI.Theme == "" {
		c.TUI.Theme = d.TUI.Theme
	}
	if c.TUI.RefreshInterval.Duration == 0 {
		c.TUI.RefreshInterval = d.TUI.RefreshInterval
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = d.Log.MaxSizeMB
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = d.Log.MaxBackups
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = d.Log.MaxAgeDays
	}
}
