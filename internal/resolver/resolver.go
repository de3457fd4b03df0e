// Package resolver turns discovery and registry records into a ranked,
// deduplicated list of connectable server candidates.
package resolver

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tessro/elixir/internal/core"
)

// Prober checks whether a server answers its health endpoint.
type Prober interface {
	Probe(ctx context.Context, endpoint string) bool
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context, endpoint string) bool

// Probe calls f.
func (f ProbeFunc) Probe(ctx context.Context, endpoint string) bool {
	return f(ctx, endpoint)
}

// Resolver picks a reachable endpoint for each registry entry.
type Resolver struct {
	prober      Prober
	concurrency int
	logger      zerolog.Logger
}

// New creates a Resolver. Concurrency bounds how many entries resolve at once.
func New(prober Prober, concurrency int, logger zerolog.Logger) *Resolver {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Resolver{prober: prober, concurrency: concurrency, logger: logger}
}

type attempt struct {
	raw string
	via core.Via
}

func attempts(entry core.RegistryEntry) []attempt {
	var out []attempt
	for _, addr := range entry.LANAddresses {
		if addr == "" {
			continue
		}
		out = append(out, attempt{raw: addr, via: core.ViaLAN})
	}
	if entry.WANEndpoint != "" {
		out = append(out, attempt{raw: entry.WANEndpoint, via: core.ViaWAN})
	}
	if entry.OverlayEndpoint != "" {
		out = append(out, attempt{raw: entry.OverlayEndpoint, via: core.ViaWAN})
	}
	return out
}

// ResolveEntry probes the entry's LAN addresses, then its wide-area
// endpoints, one at a time, and returns the first that answers. Probes never
// run in parallel so that a reachable LAN address always wins.
func (r *Resolver) ResolveEntry(ctx context.Context, entry core.RegistryEntry) (core.ResolvedEndpoint, bool) {
	for _, a := range attempts(entry) {
		if ctx.Err() != nil {
			return core.ResolvedEndpoint{}, false
		}
		url := core.NormalizeEndpoint(a.raw)
		start := time.Now()
		ok := r.prober.Probe(ctx, url)
		r.logger.Debug().
			Str("server_id", entry.ServerID).
			Str("url", url).
			Str("via", string(a.via)).
			Bool("ok", ok).
			Dur("took", time.Since(start)).
			Msg("probe")
		if ok {
			return core.ResolvedEndpoint{URL: url, Via: a.via, Raw: a.raw}, true
		}
	}
	r.logger.Info().Str("server_id", entry.ServerID).Msg("registry entry unreachable")
	return core.ResolvedEndpoint{}, false
}

// ResolveRegistry resolves every entry of one registry snapshot. Entries
// resolve concurrently; the result keeps registry order and omits entries
// with no reachable endpoint.
func (r *Resolver) ResolveRegistry(ctx context.Context, entries []core.RegistryEntry) []core.ServerCandidate {
	resolved := make([]*core.ServerCandidate, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			ep, ok := r.ResolveEntry(gctx, entry)
			if !ok {
				return nil
			}
			resolved[i] = &core.ServerCandidate{
				ID:      entry.ServerID,
				Label:   registryLabel(entry),
				URL:     ep.URL,
				Source:  core.SourceRegistry,
				Network: networkFor(ep.Via),
				Via:     ep.Via,
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]core.ServerCandidate, 0, len(entries))
	for _, c := range resolved {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}

func registryLabel(entry core.RegistryEntry) string {
	if entry.DeviceName != "" {
		return entry.DeviceName
	}
	return entry.ServerID
}

func networkFor(via core.Via) core.NetworkClass {
	if via == core.ViaLAN {
		return core.NetworkLocal
	}
	return core.NetworkWideArea
}

// ManualCandidate builds the candidate for a user-entered address, or false
// when the address is blank.
func ManualCandidate(address string) (core.ServerCandidate, bool) {
	url := core.NormalizeEndpoint(address)
	if url == "" {
		return core.ServerCandidate{}, false
	}
	return core.ServerCandidate{
		ID:      "manual",
		Label:   url,
		URL:     url,
		Source:  core.SourceManual,
		Network: core.NetworkUnknown,
	}, true
}

// Merge concatenates discovered, registry, and manual candidates in that
// order and keeps the first candidate seen for each canonical URL.
func Merge(discovered, registry []core.ServerCandidate, manual *core.ServerCandidate) []core.ServerCandidate {
	all := make([]core.ServerCandidate, 0, len(discovered)+len(registry)+1)
	all = append(all, discovered...)
	all = append(all, registry...)
	if manual != nil {
		all = append(all, *manual)
	}

	seen := make(map[string]bool, len(all))
	out := make([]core.ServerCandidate, 0, len(all))
	for _, c := range all {
		key := core.NormalizeEndpoint(c.URL)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		c.URL = key
		out = append(out, c)
	}
	return out
}
