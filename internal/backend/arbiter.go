package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	elixirerrors "github.com/tessro/elixir/internal/errors"
)

// Arbiter holds the single active backend selection. Select, Play, Restart,
// and Stop serialize on one mutex, so the previous backend is always
// stopped before the next one starts.
type Arbiter struct {
	mu       sync.Mutex
	backends map[Kind]Backend
	active   Kind
	locator  string
	overlay  bool
	paused   bool
	status   string
	logger   zerolog.Logger
}

// NewArbiter creates an arbiter over backends. The selection starts at none.
func NewArbiter(logger zerolog.Logger, backends ...Backend) *Arbiter {
	a := &Arbiter{
		backends: make(map[Kind]Backend, len(backends)),
		active:   KindNone,
		logger:   logger,
	}
	for _, b := range backends {
		a.backends[b.Kind()] = b
	}
	return a
}

// Select makes kind the active backend. An unavailable or unresponsive
// backend is rejected; when a Pinger fails, the selection falls back to
// none. A locator already playing is handed to the new backend.
func (a *Arbiter) Select(ctx context.Context, kind Kind) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if kind == a.active {
		return nil
	}

	var next Backend
	if kind != KindNone {
		b, ok := a.backends[kind]
		if !ok {
			return fmt.Errorf("unknown backend %q", kind)
		}
		if !b.Available(ctx) {
			a.status = fmt.Sprintf("%s backend unavailable", kind)
			return fmt.Errorf("%s: %w", kind, elixirerrors.ErrBackendUnavailable)
		}
		if p, ok := b.(Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				a.logger.Warn().Err(err).Str("backend", string(kind)).Msg("backend ping failed")
				a.stopActiveLocked(ctx)
				a.active = KindNone
				a.status = fmt.Sprintf("%s player did not respond", kind)
				return fmt.Errorf("%s: %w", kind, err)
			}
		}
		next = b
	}

	a.stopActiveLocked(ctx)
	a.active = kind
	a.paused = false
	a.status = ""
	a.logger.Info().Str("backend", string(kind)).Msg("backend selected")

	if next == nil {
		return nil
	}
	if o, ok := next.(Overlayer); ok && a.overlay {
		if err := o.SetOverlay(ctx, true); err != nil {
			a.logger.Debug().Err(err).Str("backend", string(kind)).Msg("overlay not applied")
		}
	}
	if a.locator != "" {
		if err := next.Play(ctx, a.locator); err != nil {
			a.status = fmt.Sprintf("%s backend: %v", kind, err)
			return err
		}
	}
	return nil
}

// Play remembers locator and plays it on the active backend.
func (a *Arbiter) Play(ctx context.Context, locator string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.locator = locator
	a.paused = false
	b := a.backends[a.active]
	if b == nil {
		return nil
	}
	return a.recordLocked(b.Play(ctx, locator))
}

// Restart replaces the locator and restarts the active backend on it.
func (a *Arbiter) Restart(ctx context.Context, locator string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.locator = locator
	a.paused = false
	b := a.backends[a.active]
	if b == nil {
		return nil
	}
	if err := b.Stop(ctx); err != nil {
		a.logger.Debug().Err(err).Str("backend", string(a.active)).Msg("stop before restart failed")
	}
	return a.recordLocked(b.Play(ctx, locator))
}

// Stop stops the active backend and forgets the locator. The selection is
// kept for the next session.
func (a *Arbiter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.locator = ""
	a.paused = false
	b := a.backends[a.active]
	if b == nil {
		return nil
	}
	return b.Stop(ctx)
}

// controlsLocked returns the active backend's player controls. They need
// something loaded.
func (a *Arbiter) controlsLocked() (Controls, error) {
	c, ok := a.backends[a.active].(Controls)
	if !ok {
		return nil, fmt.Errorf("%s: %w", a.active, elixirerrors.ErrNoControls)
	}
	if a.locator == "" {
		return nil, elixirerrors.ErrNoSession
	}
	return c, nil
}

// TogglePause pauses or resumes the active player.
func (a *Arbiter) TogglePause(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, err := a.controlsLocked()
	if err != nil {
		return false, err
	}
	paused, err := c.TogglePause(ctx)
	if err != nil {
		return a.paused, a.recordLocked(err)
	}
	a.paused = paused
	return paused, nil
}

// Paused reports the pause state last seen on the active player.
func (a *Arbiter) Paused() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paused
}

// Tracks lists the tracks of whatever the active player has loaded.
func (a *Arbiter) Tracks(ctx context.Context) ([]Track, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, err := a.controlsLocked()
	if err != nil {
		return nil, err
	}
	return c.Tracks(ctx)
}

func (a *Arbiter) SetAudioTrack(ctx context.Context, id int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, err := a.controlsLocked()
	if err != nil {
		return err
	}
	return a.recordLocked(c.SetAudioTrack(ctx, id))
}

func (a *Arbiter) SetSubtitleTrack(ctx context.Context, id int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, err := a.controlsLocked()
	if err != nil {
		return err
	}
	return a.recordLocked(c.SetSubtitleTrack(ctx, id))
}

// CycleTrack switches to the next track of type typ and returns it.
func (a *Arbiter) CycleTrack(ctx context.Context, typ string) (Track, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, err := a.controlsLocked()
	if err != nil {
		return Track{}, err
	}
	tracks, err := c.Tracks(ctx)
	if err != nil {
		return Track{}, a.recordLocked(err)
	}
	next, ok := NextTrack(tracks, typ)
	if !ok {
		return Track{}, fmt.Errorf("no other %s track", typ)
	}
	if typ == TrackSubtitle {
		err = c.SetSubtitleTrack(ctx, next.ID)
	} else {
		err = c.SetAudioTrack(ctx, next.ID)
	}
	if err != nil {
		return Track{}, a.recordLocked(err)
	}
	a.logger.Debug().Str("type", typ).Int("track", next.ID).Msg("track switched")
	return next, nil
}

// SetOverlay records the overlay flag and applies it to the active backend
// when it supports one.
func (a *Arbiter) SetOverlay(ctx context.Context, on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.overlay = on
	if o, ok := a.backends[a.active].(Overlayer); ok {
		return o.SetOverlay(ctx, on)
	}
	return nil
}

func (a *Arbiter) Overlay() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.overlay
}

// Active returns the selected kind.
func (a *Arbiter) Active() Kind {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Locator returns the locator the active backend was last given.
func (a *Arbiter) Locator() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.locator
}

// Status returns the last backend status message, or "". A player that
// went away while a locator was loaded is reported as exited.
func (a *Arbiter) Status() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status == "" && a.locator != "" {
		if r, ok := a.backends[a.active].(Runner); ok && !r.Running() {
			return fmt.Sprintf("%s player exited", a.active)
		}
	}
	return a.status
}

// Transfer reports the active backend's stream copy, when it does one.
func (a *Arbiter) Transfer() (Transfer, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.backends[a.active].(Reporter)
	if !ok {
		return Transfer{}, false
	}
	return r.Transfer(), true
}

// Backend returns the registered backend for kind, if any.
func (a *Arbiter) Backend(kind Kind) (Backend, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.backends[kind]
	return b, ok
}

// Availability reports which kinds could be selected right now.
func (a *Arbiter) Availability(ctx context.Context) map[Kind]bool {
	a.mu.Lock()
	backends := make(map[Kind]Backend, len(a.backends))
	for k, b := range a.backends {
		backends[k] = b
	}
	a.mu.Unlock()

	out := map[Kind]bool{KindNone: true}
	for _, k := range Kinds()[1:] {
		if b, ok := backends[k]; ok {
			out[k] = b.Available(ctx)
		} else {
			out[k] = false
		}
	}
	return out
}

// Close stops every backend and releases the ones that hold resources.
func (a *Arbiter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	for _, k := range Kinds()[1:] {
		b, ok := a.backends[k]
		if !ok {
			continue
		}
		if err := b.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		if c, ok := b.(closer); ok {
			if err := c.Close(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	a.active = KindNone
	a.locator = ""
	a.paused = false
	return firstErr
}

func (a *Arbiter) stopActiveLocked(ctx context.Context) {
	b := a.backends[a.active]
	if b == nil {
		return
	}
	if err := b.Stop(ctx); err != nil {
		a.logger.Warn().Err(err).Str("backend", string(a.active)).Msg("stop previous backend failed")
	}
}

func (a *Arbiter) recordLocked(err error) error {
	if err != nil {
		a.status = fmt.Sprintf("%s backend: %v", a.active, err)
		return err
	}
	a.status = ""
	return nil
}
