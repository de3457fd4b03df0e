package resolver

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tessro/elixir/internal/core"
	elixirerrors "github.com/tessro/elixir/internal/errors"
)

// LocalSource yields candidates found on the local network.
type LocalSource interface {
	Candidates(ctx context.Context) ([]core.ServerCandidate, error)
}

// RegistrySource lists the servers registered to the signed-in account.
type RegistrySource interface {
	ListServers(ctx context.Context) ([]core.RegistryEntry, error)
}

// Inputs are the changeable keys a refresh depends on. A nil Local or
// Registry skips that source.
type Inputs struct {
	Manual   string
	Local    LocalSource
	Registry RegistrySource
}

// Catalog holds the current candidate list. Each Refresh captures a
// generation; a refresh that completes after a newer one started is
// discarded.
type Catalog struct {
	resolver *Resolver
	logger   zerolog.Logger

	mu       sync.Mutex
	gen      uint64
	manual   string
	local    []core.ServerCandidate
	registry []core.ServerCandidate
	entries  []core.RegistryEntry
	merged   []core.ServerCandidate
}

// NewCatalog creates an empty catalog.
func NewCatalog(resolver *Resolver, logger zerolog.Logger) *Catalog {
	return &Catalog{resolver: resolver, logger: logger}
}

// Refresh re-runs discovery and registry resolution concurrently. Source
// failures degrade to an empty set and are reported in the result. It returns
// ErrSuperseded if another Refresh started before this one finished.
func (c *Catalog) Refresh(ctx context.Context, in Inputs) (*elixirerrors.PartialResult[[]core.ServerCandidate], error) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	var (
		local, registry []core.ServerCandidate
		entries         []core.RegistryEntry
		localErr        error
		registryErr     error
	)

	var g errgroup.Group
	if in.Local != nil {
		g.Go(func() error {
			local, localErr = in.Local.Candidates(ctx)
			return nil
		})
	}
	if in.Registry != nil {
		g.Go(func() error {
			entries, registryErr = in.Registry.ListServers(ctx)
			if registryErr == nil {
				registry = c.resolver.ResolveRegistry(ctx, entries)
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &elixirerrors.PartialResult[[]core.ServerCandidate]{}
	if localErr != nil {
		c.logger.Warn().Err(localErr).Msg("local discovery failed")
		result.AddError(fmt.Errorf("discovery: %w", localErr))
		local = nil
	}
	if registryErr != nil {
		c.logger.Warn().Err(registryErr).Msg("registry fetch failed")
		result.AddError(fmt.Errorf("registry: %w", registryErr))
		registry, entries = nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		c.logger.Debug().Uint64("gen", gen).Uint64("current", c.gen).Msg("discarding stale refresh")
		return nil, elixirerrors.ErrSuperseded
	}
	c.manual = in.Manual
	c.local = local
	c.registry = registry
	c.entries = entries
	c.merged = c.mergeLocked()
	result.Data = append([]core.ServerCandidate(nil), c.merged...)
	return result, nil
}

// SetManual changes the manual address and re-merges without probing.
func (c *Catalog) SetManual(address string) []core.ServerCandidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manual = address
	c.merged = c.mergeLocked()
	return append([]core.ServerCandidate(nil), c.merged...)
}

// Candidates returns the last committed list.
func (c *Catalog) Candidates() []core.ServerCandidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.merged == nil {
		c.merged = c.mergeLocked()
	}
	return append([]core.ServerCandidate(nil), c.merged...)
}

// Entries returns the last registry snapshot, resolved or not.
func (c *Catalog) Entries() []core.RegistryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.RegistryEntry(nil), c.entries...)
}

func (c *Catalog) mergeLocked() []core.ServerCandidate {
	var manual *core.ServerCandidate
	if m, ok := ManualCandidate(c.manual); ok {
		manual = &m
	}
	return Merge(c.local, c.registry, manual)
}
