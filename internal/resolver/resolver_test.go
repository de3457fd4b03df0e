package resolver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/elixir/internal/core"
	elixirerrors "github.com/tessro/elixir/internal/errors"
)

// fakeProber answers from a fixed table, optionally after a per-URL delay.
type fakeProber struct {
	up    map[string]bool
	delay map[string]time.Duration

	mu    sync.Mutex
	calls []string
}

func (p *fakeProber) Probe(ctx context.Context, endpoint string) bool {
	p.mu.Lock()
	p.calls = append(p.calls, endpoint)
	p.mu.Unlock()
	if d := p.delay[endpoint]; d > 0 {
		time.Sleep(d)
	}
	return p.up[endpoint]
}

func (p *fakeProber) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func TestResolveEntryPrefersLAN(t *testing.T) {
	entry := core.RegistryEntry{
		ServerID:     "srv",
		LANAddresses: []string{"10.0.0.2:9000"},
		WANEndpoint:  "https://w.test",
	}

	tests := []struct {
		name    string
		up      map[string]bool
		delay   map[string]time.Duration
		wantOK  bool
		wantVia core.Via
		wantURL string
	}{
		{
			name:    "only wan reachable",
			up:      map[string]bool{"https://w.test": true},
			wantOK:  true,
			wantVia: core.ViaWAN,
			wantURL: "https://w.test",
		},
		{
			name:    "both reachable, lan slower",
			up:      map[string]bool{"http://10.0.0.2:9000": true, "https://w.test": true},
			delay:   map[string]time.Duration{"http://10.0.0.2:9000": 50 * time.Millisecond},
			wantOK:  true,
			wantVia: core.ViaLAN,
			wantURL: "http://10.0.0.2:9000",
		},
		{
			name:   "nothing reachable",
			up:     map[string]bool{},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProber{up: tt.up, delay: tt.delay}
			r := New(p, 2, zerolog.Nop())

			got, ok := r.ResolveEntry(context.Background(), entry)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				assert.Equal(t, []string{"http://10.0.0.2:9000", "https://w.test"}, p.Calls())
				return
			}
			assert.Equal(t, tt.wantVia, got.Via)
			assert.Equal(t, tt.wantURL, got.URL)
		})
	}
}

func TestResolveEntryShortCircuits(t *testing.T) {
	p := &fakeProber{up: map[string]bool{"http://10.0.0.3:9000": true, "https://w.test": true}}
	r := New(p, 1, zerolog.Nop())

	entry := core.RegistryEntry{
		LANAddresses:    []string{"10.0.0.2:9000", "10.0.0.3:9000", "10.0.0.4:9000"},
		WANEndpoint:     "https://w.test",
		OverlayEndpoint: "https://overlay.test",
	}
	got, ok := r.ResolveEntry(context.Background(), entry)
	require.True(t, ok)
	assert.Equal(t, "http://10.0.0.3:9000", got.URL)
	assert.Equal(t, "10.0.0.3:9000", got.Raw)
	assert.Equal(t, []string{"http://10.0.0.2:9000", "http://10.0.0.3:9000"}, p.Calls())
}

func TestResolveEntryOverlayFallback(t *testing.T) {
	p := &fakeProber{up: map[string]bool{"https://overlay.test": true}}
	r := New(p, 1, zerolog.Nop())

	got, ok := r.ResolveEntry(context.Background(), core.RegistryEntry{
		WANEndpoint:     "https://w.test",
		OverlayEndpoint: "https://overlay.test/",
	})
	require.True(t, ok)
	assert.Equal(t, core.ViaWAN, got.Via)
	assert.Equal(t, "https://overlay.test", got.URL)
}

// serialProber fails the test if two probes for the same entry overlap.
type serialProber struct {
	inflight int32
	overlap  int32
}

func (p *serialProber) Probe(ctx context.Context, endpoint string) bool {
	if atomic.AddInt32(&p.inflight, 1) > 1 {
		atomic.StoreInt32(&p.overlap, 1)
	}
	time.Sleep(10 * time.Millisecond)
	atomic.AddInt32(&p.inflight, -1)
	return false
}

func TestResolveEntryIsSequential(t *testing.T) {
	p := &serialProber{}
	r := New(p, 4, zerolog.Nop())
	_, ok := r.ResolveEntry(context.Background(), core.RegistryEntry{
		LANAddresses: []string{"a:1", "b:1", "c:1"},
		WANEndpoint:  "https://w.test",
	})
	assert.False(t, ok)
	assert.Zero(t, atomic.LoadInt32(&p.overlap))
}

func TestResolveRegistryKeepsOrderAndRunsEntriesConcurrently(t *testing.T) {
	up := map[string]bool{}
	delay := map[string]time.Duration{}
	var entries []core.RegistryEntry
	for _, id := range []string{"a", "b", "c", "d"} {
		url := "http://" + id + ".lan:9000"
		up[url] = id != "c"
		delay[url] = 100 * time.Millisecond
		entries = append(entries, core.RegistryEntry{ServerID: id, DeviceName: "dev-" + id, LANAddresses: []string{id + ".lan:9000"}})
	}
	p := &fakeProber{up: up, delay: delay}
	r := New(p, 4, zerolog.Nop())

	start := time.Now()
	got := r.ResolveRegistry(context.Background(), entries)
	elapsed := time.Since(start)

	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "d", got[2].ID)
	assert.Equal(t, "dev-a", got[0].Label)
	assert.Equal(t, core.SourceRegistry, got[0].Source)
	assert.Equal(t, core.NetworkLocal, got[0].Network)
	assert.Less(t, elapsed, 350*time.Millisecond)
}

func TestMerge(t *testing.T) {
	discovered := []core.ServerCandidate{
		{ID: "mdns:den", Label: "Den (mDNS)", URL: "http://10.0.0.2:9000", Source: core.SourceDiscovery, Network: core.NetworkLocal},
	}
	registry := []core.ServerCandidate{
		{ID: "srv", Label: "Den (registry)", URL: "http://10.0.0.2:9000/", Source: core.SourceRegistry, Network: core.NetworkLocal, Via: core.ViaLAN},
		{ID: "cabin", Label: "Cabin", URL: "https://cabin.test", Source: core.SourceRegistry, Network: core.NetworkWideArea, Via: core.ViaWAN},
	}
	manual, ok := ManualCandidate("cabin.test")
	require.True(t, ok)

	got := Merge(discovered, registry, &manual)
	require.Len(t, got, 3)
	assert.Equal(t, "Den (mDNS)", got[0].Label)
	assert.Equal(t, "Cabin", got[1].Label)
	assert.Equal(t, "http://cabin.test", got[2].URL)
	assert.Equal(t, core.SourceManual, got[2].Source)
	assert.Equal(t, core.NetworkUnknown, got[2].Network)

	_, ok = ManualCandidate("   ")
	assert.False(t, ok)
	assert.Empty(t, Merge(nil, nil, nil))
}

type localFunc func(ctx context.Context) ([]core.ServerCandidate, error)

func (f localFunc) Candidates(ctx context.Context) ([]core.ServerCandidate, error) { return f(ctx) }

type registryFunc func(ctx context.Context) ([]core.RegistryEntry, error)

func (f registryFunc) ListServers(ctx context.Context) ([]core.RegistryEntry, error) { return f(ctx) }

func TestCatalogDegradesFailedSources(t *testing.T) {
	c := NewCatalog(New(&fakeProber{}, 1, zerolog.Nop()), zerolog.Nop())

	res, err := c.Refresh(context.Background(), Inputs{
		Manual: "192.168.1.5:9000",
		Local: localFunc(func(ctx context.Context) ([]core.ServerCandidate, error) {
			return nil, errors.New("no multicast")
		}),
		Registry: registryFunc(func(ctx context.Context) ([]core.RegistryEntry, error) {
			return nil, errors.New("401 unauthorized")
		}),
	})
	require.NoError(t, err)
	assert.Len(t, res.Errors, 2)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "http://192.168.1.5:9000", res.Data[0].URL)
	assert.Equal(t, res.Data, c.Candidates())
}

func TestCatalogMergesSources(t *testing.T) {
	p := &fakeProber{up: map[string]bool{"https://w.test": true}}
	c := NewCatalog(New(p, 2, zerolog.Nop()), zerolog.Nop())

	res, err := c.Refresh(context.Background(), Inputs{
		Manual: "https://w.test",
		Local: localFunc(func(ctx context.Context) ([]core.ServerCandidate, error) {
			return []core.ServerCandidate{{ID: "mdns:a", Label: "a", URL: "http://a.local:9000", Source: core.SourceDiscovery, Network: core.NetworkLocal}}, nil
		}),
		Registry: registryFunc(func(ctx context.Context) ([]core.RegistryEntry, error) {
			return []core.RegistryEntry{{ServerID: "w", DeviceName: "Remote", LANAddresses: []string{"10.9.9.9:9000"}, WANEndpoint: "https://w.test"}}, nil
		}),
	})
	require.NoError(t, err)
	assert.False(t, res.HasErrors())
	require.Len(t, res.Data, 2)
	assert.Equal(t, core.SourceDiscovery, res.Data[0].Source)
	assert.Equal(t, "Remote", res.Data[1].Label)
	assert.Equal(t, core.ViaWAN, res.Data[1].Via)
	assert.Len(t, c.Entries(), 1)

	updated := c.SetManual("10.1.1.1:9000")
	require.Len(t, updated, 3)
	assert.Equal(t, "http://10.1.1.1:9000", updated[2].URL)
}

func TestCatalogDiscardsSupersededRefresh(t *testing.T) {
	c := NewCatalog(New(&fakeProber{}, 1, zerolog.Nop()), zerolog.Nop())

	release := make(chan struct{})
	started := make(chan struct{})
	slow := localFunc(func(ctx context.Context) ([]core.ServerCandidate, error) {
		close(started)
		<-release
		return []core.ServerCandidate{{URL: "http://stale.local", Label: "stale"}}, nil
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background(), Inputs{Manual: "old.test", Local: slow})
		errCh <- err
	}()
	<-started

	res, err := c.Refresh(context.Background(), Inputs{Manual: "new.test"})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)

	close(release)
	require.ErrorIs(t, <-errCh, elixirerrors.ErrSuperseded)

	got := c.Candidates()
	require.Len(t, got, 1)
	assert.Equal(t, "http://new.test", got[0].URL)
}
