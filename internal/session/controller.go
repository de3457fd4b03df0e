// Package session drives one playback session against the media server:
// start, periodic poll, debounced seek, and end.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tessro/elixir/internal/api"
	"github.com/tessro/elixir/internal/core"
	elixirerrors "github.com/tessro/elixir/internal/errors"
)

const (
	// DefaultPollInterval is how often an active session is polled.
	DefaultPollInterval = 5 * time.Second

	// DefaultSeekDebounce is the quiet period before a seek hits the network.
	DefaultSeekDebounce = 250 * time.Millisecond

	// shutdownEndTimeout bounds the fire-and-forget end sent on Close.
	shutdownEndTimeout = 2 * time.Second
)

// API is the subset of the server API the controller needs. Base URL and
// token are read when each operation is issued.
type API interface {
	BaseURL() string
	Token() string
	StartPlayback(ctx context.Context, req api.PlayRequest) (*api.PlayResponse, error)
	PollSession(ctx context.Context, id string) (*api.SessionPoll, error)
	SeekSession(ctx context.Context, id string, position float64) error
	EndSession(ctx context.Context, id string) error
}

// Renderer is whatever turns a stream locator into output.
type Renderer interface {
	Play(ctx context.Context, locator string) error
	Restart(ctx context.Context, locator string) error
	Stop(ctx context.Context) error
}

// Options configures a Controller.
type Options struct {
	PollInterval time.Duration
	SeekDebounce time.Duration
	// EndPreviousOnStart ends a still-active session server-side before
	// requesting a new one. Off by default; the server enforces its own limits.
	EndPreviousOnStart bool
	// Network is the network_type hint sent with play requests ("lan", "wan", or "").
	Network string
	Now     func() time.Time
}

// StartRequest selects what to play.
type StartRequest struct {
	Item   core.LibraryItem
	FileID string
}

// Snapshot is a consistent copy of controller state.
type Snapshot struct {
	Session    core.PlaybackSession `json:"session"`
	Status     string               `json:"status,omitempty"`
	Debug      string               `json:"debug,omitempty"`
	Generation uint64               `json:"generation"`
}

// Controller owns at most one playback session. Every asynchronous effect
// captures the generation current when it was issued and is dropped if the
// generation moved on before it completed.
type Controller struct {
	api      API
	renderer Renderer
	opts     Options
	logger   zerolog.Logger

	mu           sync.Mutex
	gen          uint64
	session      core.PlaybackSession
	status       string
	debug        string
	pollCancel   context.CancelFunc
	seekTimer    *time.Timer
	seekSeq      uint64
	seekPending  bool
	pendingSeek  float64
	seekInFlight int
	lastStamp    int64
	closed       bool
	closeDone    chan struct{}
	subs         map[int]chan Snapshot
	nextSub      int
}

// New creates a controller. renderer may be nil.
func New(client API, renderer Renderer, opts Options, logger zerolog.Logger) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.SeekDebounce <= 0 {
		opts.SeekDebounce = DefaultSeekDebounce
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		api:      client,
		renderer: renderer,
		opts:     opts,
		logger:   logger,
		session:  core.PlaybackSession{State: core.StateIdle},
		subs:     make(map[int]chan Snapshot),
	}
}

// Start requests a new session for req and, on success, begins polling and
// hands the stream locator to the renderer.
func (c *Controller) Start(ctx context.Context, req StartRequest) error {
	base, token := c.api.BaseURL(), c.api.Token()
	switch {
	case base == "":
		return c.fail("start playback", elixirerrors.ErrNoServer)
	case token == "":
		return c.fail("start playback", elixirerrors.ErrNotAuthenticated)
	case req.Item.ID == "":
		return c.fail("start playback", errors.New("no library item selected"))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("controller closed")
	}
	prev := c.session
	c.stopTimersLocked()
	c.gen++
	gen := c.gen
	c.session = core.PlaybackSession{
		ItemID: req.Item.ID,
		FileID: req.FileID,
		Title:  req.Item.DisplayTitle(),
		State:  core.StateStarting,
	}
	c.status, c.debug = "", ""
	c.publishLocked()
	c.mu.Unlock()

	if c.opts.EndPreviousOnStart && prev.HasSession() {
		c.logger.Info().Str("session_id", prev.ID).Msg("ending previous session before start")
		if err := c.api.EndSession(ctx, prev.ID); err != nil {
			c.logger.Warn().Err(err).Str("session_id", prev.ID).Msg("end previous session failed")
		}
	}

	playReq := api.PlayRequest{MediaItemID: req.Item.ID, NetworkType: c.opts.Network}
	if req.FileID != "" {
		fileID := req.FileID
		playReq.PreferredFileID = &fileID
	}
	resp, err := c.api.StartPlayback(ctx, playReq)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return elixirerrors.ErrSuperseded
	}
	if err != nil {
		c.session.State = core.StateError
		c.session.Error = err.Error()
		c.status, c.debug = elixirerrors.Status("start playback", err)
		c.publishLocked()
		c.mu.Unlock()
		return err
	}

	duration := resp.DurationSeconds
	if duration == nil && req.Item.RuntimeSeconds != nil {
		rt := *req.Item.RuntimeSeconds
		duration = &rt
	}
	position := resp.LogicalPositionSeconds
	if position == 0 {
		position = resp.LogicalStartSeconds
	}
	fileID := resp.MediaFileID
	if fileID == "" {
		fileID = req.FileID
	}

	locator := core.WithToken(core.AbsoluteURL(base, resp.StreamURL), token)
	c.session = core.PlaybackSession{
		ID:          resp.SessionID,
		ItemID:      req.Item.ID,
		FileID:      fileID,
		ServerID:    resp.ServerID,
		Title:       req.Item.DisplayTitle(),
		Mode:        resp.Mode,
		Locator:     locator,
		State:       core.StateActive,
		RemoteState: resp.State,
		Position:    position,
		Duration:    duration,
	}
	pollCtx, cancel := context.WithCancel(context.Background())
	c.pollCancel = cancel
	id := resp.SessionID
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Info().Str("session_id", id).Str("mode", string(resp.Mode)).Uint64("gen", gen).Msg("session started")
	go c.pollLoop(pollCtx, gen, id)

	if c.renderer != nil {
		if err := c.renderer.Play(ctx, locator); err != nil {
			c.setStatus(gen, "playback backend", err)
		}
	}
	return nil
}

func (c *Controller) pollLoop(ctx context.Context, gen uint64, id string) {
	c.pollOnce(ctx, gen, id)

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(ctx, gen, id)
		}
	}
}

func (c *Controller) pollOnce(ctx context.Context, gen uint64, id string) {
	res, err := c.api.PollSession(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.session.ID != id {
		c.logger.Debug().Str("session_id", id).Uint64("gen", gen).Msg("discarding stale poll")
		return
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		_, c.debug = elixirerrors.Status("poll", err)
		c.publishLocked()
		return
	}

	s := &c.session
	if c.seekInFlight == 0 && !c.seekPending {
		s.Position = res.LogicalPositionSeconds
	}
	if res.DurationSeconds != nil {
		d := *res.DurationSeconds
		s.Duration = &d
	}
	if res.Mode != "" {
		s.Mode = res.Mode
	}
	s.RemoteState = res.State
	s.LogPath = res.LogPath
	s.Error = res.Error
	switch {
	case res.Error != "":
		s.State = core.StateError
	case s.State == core.StateError:
		s.State = core.StateActive
	}
	c.debug = ""
	c.publishLocked()
}

// Seek moves playback to position seconds. The local position changes at
// once; the network seek is debounced so a burst of calls produces a single
// request for the last position. With no session, only the local position
// changes.
func (c *Controller) Seek(position float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	position = c.clampLocked(position)
	c.session.Position = position

	if !c.session.HasSession() {
		c.publishLocked()
		return
	}

	c.pendingSeek = position
	c.seekPending = true
	c.seekSeq++
	gen, id, seq := c.gen, c.session.ID, c.seekSeq
	if c.seekTimer != nil {
		c.seekTimer.Stop()
	}
	c.seekTimer = time.AfterFunc(c.opts.SeekDebounce, func() {
		_ = c.flushSeek(context.Background(), gen, id, seq)
	})
	c.publishLocked()
}

// SeekNow sends a seek to position at once, replacing any pending debounced
// seek, and returns when the server has answered. With no session only the
// local position changes.
func (c *Controller) SeekNow(ctx context.Context, position float64) error {
	c.mu.Lock()
	position = c.clampLocked(position)
	c.session.Position = position
	if !c.session.HasSession() {
		c.publishLocked()
		c.mu.Unlock()
		return nil
	}
	if c.seekTimer != nil {
		c.seekTimer.Stop()
		c.seekTimer = nil
	}
	c.pendingSeek = position
	c.seekPending = true
	c.seekSeq++
	gen, id, seq := c.gen, c.session.ID, c.seekSeq
	c.mu.Unlock()

	return c.flushSeek(ctx, gen, id, seq)
}

func (c *Controller) clampLocked(position float64) float64 {
	if position < 0 {
		position = 0
	}
	if d := c.session.Duration; d != nil && *d > 0 && position > *d {
		position = *d
	}
	return position
}

// SeekBy seeks relative to the current position.
func (c *Controller) SeekBy(delta float64) {
	c.mu.Lock()
	target := c.session.Position + delta
	c.mu.Unlock()
	c.Seek(target)
}

// flushSeek sends the pending seek tagged (gen, id, seq). A stale tag is a
// no-op.
func (c *Controller) flushSeek(ctx context.Context, gen uint64, id string, seq uint64) error {
	c.mu.Lock()
	if gen != c.gen || id != c.session.ID || seq != c.seekSeq || !c.seekPending {
		c.mu.Unlock()
		return nil
	}
	target := c.pendingSeek
	c.seekPending = false
	c.seekInFlight++
	prevState := c.session.State
	c.session.State = core.StateSeeking
	c.publishLocked()
	c.mu.Unlock()

	err := c.api.SeekSession(ctx, id, target)

	c.mu.Lock()
	c.seekInFlight--
	if gen != c.gen || id != c.session.ID {
		c.mu.Unlock()
		return nil
	}
	if c.session.State == core.StateSeeking {
		if prevState == core.StateSeeking {
			prevState = core.StateActive
		}
		c.session.State = prevState
	}
	if err != nil {
		c.status, c.debug = elixirerrors.Status("seek failed", err)
		c.logger.Warn().Err(err).Str("session_id", id).Float64("target", target).Msg("seek failed")
		c.publishLocked()
		c.mu.Unlock()
		return err
	}
	if !c.seekPending {
		c.session.Position = target
	}
	c.session.Locator = core.CacheBust(c.session.Locator, c.stampLocked())
	locator := c.session.Locator
	c.status = ""
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Debug().Str("session_id", id).Float64("target", target).Msg("seek acknowledged")
	if c.renderer != nil {
		if err := c.renderer.Restart(ctx, locator); err != nil {
			c.setStatus(gen, "playback backend", err)
		}
	}
	return nil
}

// stampLocked returns a cache-busting value distinct from every earlier one.
func (c *Controller) stampLocked() int64 {
	ms := c.opts.Now().UnixMilli()
	if ms <= c.lastStamp {
		ms = c.lastStamp + 1
	}
	c.lastStamp = ms
	return ms
}

// End ends the current session. The server call is best-effort: a failure
// is logged and local state is cleared regardless.
func (c *Controller) End(ctx context.Context) {
	c.mu.Lock()
	id := c.session.ID
	had := c.session.HasSession()
	c.stopTimersLocked()
	c.gen++
	c.session = core.PlaybackSession{State: core.StateEnded}
	c.status, c.debug = "", ""
	c.publishLocked()
	c.mu.Unlock()

	if had {
		if err := c.api.EndSession(ctx, id); err != nil {
			c.logger.Warn().Err(err).Str("session_id", id).Msg("end session failed")
			c.mu.Lock()
			_, c.debug = elixirerrors.Status("end session", err)
			c.publishLocked()
			c.mu.Unlock()
		} else {
			c.logger.Info().Str("session_id", id).Msg("session ended")
		}
	}
	if c.renderer != nil {
		if err := c.renderer.Stop(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("stop backend failed")
		}
	}
}

// Invalidate drops local session state without contacting the server. Use
// it when the selected server or token changes under an active session.
func (c *Controller) Invalidate(reason string) {
	c.mu.Lock()
	c.stopTimersLocked()
	c.gen++
	c.session = core.PlaybackSession{State: core.StateIdle}
	c.status, c.debug = reason, ""
	c.publishLocked()
	c.mu.Unlock()

	if c.renderer != nil {
		_ = c.renderer.Stop(context.Background())
	}
}

// Close stops all timers and, if a session is active and a token is
// available, ends it in the background without waiting. The returned channel
// is closed once that end request finishes, at most shutdownEndTimeout later;
// every call returns the same channel.
func (c *Controller) Close() <-chan struct{} {
	c.mu.Lock()
	if c.closed {
		done := c.closeDone
		c.mu.Unlock()
		return done
	}
	c.closed = true
	done := make(chan struct{})
	c.closeDone = done
	id := c.session.ID
	had := c.session.HasSession()
	c.stopTimersLocked()
	c.gen++
	c.session = core.PlaybackSession{State: core.StateEnded}
	c.publishLocked()
	for k, ch := range c.subs {
		close(ch)
		delete(c.subs, k)
	}
	c.mu.Unlock()

	if !had || c.api.Token() == "" {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownEndTimeout)
		defer cancel()
		if err := c.api.EndSession(ctx, id); err != nil {
			c.logger.Debug().Err(err).Str("session_id", id).Msg("end on shutdown failed")
		}
	}()
	return done
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel that receives a snapshot after every state
// change. Slow readers miss intermediate snapshots rather than block the
// controller. The returned func unsubscribes.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 32)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	key := c.nextSub
	c.nextSub++
	c.subs[key] = ch
	ch <- c.snapshotLocked()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[key]; ok {
			close(sub)
			delete(c.subs, key)
		}
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	s := c.session
	if s.Duration != nil {
		d := *s.Duration
		s.Duration = &d
	}
	return Snapshot{Session: s, Status: c.status, Debug: c.debug, Generation: c.gen}
}

func (c *Controller) publishLocked() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (c *Controller) stopTimersLocked() {
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
	if c.seekTimer != nil {
		c.seekTimer.Stop()
		c.seekTimer = nil
	}
	c.seekPending = false
}

func (c *Controller) fail(action string, err error) error {
	c.mu.Lock()
	c.status, c.debug = elixirerrors.Status(action, err)
	c.publishLocked()
	c.mu.Unlock()
	return fmt.Errorf("%s: %w", action, err)
}

func (c *Controller) setStatus(gen uint64, action string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.status, c.debug = elixirerrors.Status(action, err)
	c.publishLocked()
}
