package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/tessro/elixir/internal/core"
)

const (
	// HealthPath is the liveness endpoint every server exposes.
	HealthPath = "/health"

	// DefaultProbeTimeout bounds a single health probe.
	DefaultProbeTimeout = 1500 * time.Millisecond
)

// probeHTTPClient is shared so probes do not hang on unreachable hosts.
var probeHTTPClient = &http.Client{
	Transport: &http.Transport{
		DialContext:         (&net.Dialer{Timeout: DefaultProbeTimeout}).DialContext,
		TLSHandshakeTimeout: DefaultProbeTimeout,
		IdleConnTimeout:     30 * time.Second,
	},
}

// Probe reports whether the server at endpoint answers its health check
// within timeout. Any error, timeout, or non-2xx status is false.
func Probe(ctx context.Context, hc *http.Client, endpoint string, timeout time.Duration) bool {
	base := core.NormalizeEndpoint(endpoint)
	if base == "" {
		return false
	}
	if hc == nil {
		hc = probeHTTPClient
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+HealthPath, nil)
	if err != nil {
		return false
	}

	resp, err := hc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Prober probes endpoints with a fixed HTTP client and timeout.
type Prober struct {
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Probe implements resolver.Prober.
func (p *Prober) Probe(ctx context.Context, endpoint string) bool {
	return Probe(ctx, p.HTTPClient, endpoint, p.Timeout)
}

// Health probes the client's own server.
func (c *Client) Health(ctx context.Context, timeout time.Duration) bool {
	return Probe(ctx, c.httpClient, c.BaseURL(), timeout)
}
