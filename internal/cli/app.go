package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tessro/elixir/internal/api"
	"github.com/tessro/elixir/internal/auth"
	"github.com/tessro/elixir/internal/backend"
	"github.com/tessro/elixir/internal/config"
	"github.com/tessro/elixir/internal/core"
	"github.com/tessro/elixir/internal/discovery"
	elixirerrors "github.com/tessro/elixir/internal/errors"
	"github.com/tessro/elixir/internal/resolver"
	"github.com/tessro/elixir/internal/session"
)

// app wires configuration, persisted state, and the network clients for
// one command invocation.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	store *auth.Store
	state *auth.State

	client   *api.Client
	registry *api.Client
	browser  *discovery.Browser
	catalog  *resolver.Catalog
	manual   string

	arbiter    *backend.Arbiter
	stream     *backend.Stream
	controller *session.Controller
}

func newApp() (*app, error) {
	store, err := auth.NewStore(cfg.State.Path)
	if err != nil {
		return nil, err
	}
	state, err := store.Load()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		state:  state,
		manual: cfg.Server.URL,
	}
	if serverFlag != "" {
		a.manual = serverFlag
	}

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout.Duration),
		api.WithCapabilities(capabilities(cfg.Playback.Capabilities)),
	}
	a.client = api.New("", opts...)

	if cfg.Server.RegistryURL != "" {
		a.registry = api.New(cfg.Server.RegistryURL, opts...)
		if rec, ok := state.Lookup(cfg.Server.RegistryURL); ok && rec.Token.Valid() {
			a.registry.SetToken(rec.Token.AccessToken)
		}
	}

	if cfg.Discovery.DiscoveryEnabled() {
		a.browser = discovery.NewBrowser(cfg.Discovery.Service, cfg.Discovery.BrowseTimeout.Duration, logger)
	}

	prober := &api.Prober{Timeout: cfg.Discovery.ProbeTimeout.Duration}
	a.catalog = resolver.NewCatalog(resolver.New(prober, cfg.Discovery.ResolveConcurrency, logger), logger)

	// -s beats server.url beats the last server used.
	current := a.manual
	if current == "" {
		current = state.LastUsed
	}
	if current != "" {
		a.applyServer(current)
	}

	return a, nil
}

func capabilities(c config.CapabilitiesConfig) core.ClientCapabilities {
	return core.ClientCapabilities{
		MaxResolution:  c.MaxResolution,
		MaxBitrateKbps: c.MaxBitrateKbps,
		Containers:     c.Containers,
		VideoCodecs:    c.VideoCodecs,
		AudioCodecs:    c.AudioCodecs,
	}
}

// applyServer points the client at url with that server's saved token.
// A server with no usable token leaves the client unauthenticated.
func (a *app) applyServer(url string) {
	token := a.state.Select(url)
	a.client.SetBaseURL(url)
	if token.Valid() {
		a.client.SetToken(token.AccessToken)
	} else {
		a.client.SetToken("")
	}
	a.logger.Debug().Str("server", a.client.BaseURL()).Bool("token", a.client.HasToken()).Msg("server selected")
}

// requireServer fails when no server has been chosen.
func (a *app) requireServer() error {
	if a.client.BaseURL() == "" {
		return elixirerrors.ErrNoServer
	}
	return nil
}

// requireAuth fails when the current server has no usable token.
func (a *app) requireAuth() error {
	if err := a.requireServer(); err != nil {
		return err
	}
	if !a.client.HasToken() {
		rec, _ := a.state.Lookup(a.client.BaseURL())
		if rec.Token != nil && rec.Token.IsExpired() {
			return elixirerrors.ErrTokenExpired
		}
		return elixirerrors.ErrNotAuthenticated
	}
	return nil
}

// Candidates refreshes and returns the merged server list. Source failures
// are logged and returned alongside whatever did resolve.
func (a *app) Candidates(ctx context.Context) ([]core.ServerCandidate, error) {
	in := resolver.Inputs{Manual: a.manual}
	if a.browser != nil {
		in.Local = a.browser
	}
	if a.registry != nil && a.registry.HasToken() {
		in.Registry = a.registry
	}

	result, err := a.catalog.Refresh(ctx, in)
	if err != nil {
		return a.catalog.Candidates(), err
	}
	if result.HasErrors() {
		return result.Data, errors.Join(result.Errors...)
	}
	return result.Data, nil
}

// Use probes url, switches to it, and remembers it as the last server.
func (a *app) Use(ctx context.Context, url string) error {
	url = core.NormalizeEndpoint(url)
	if !core.ValidBaseURL(url) {
		return fmt.Errorf("invalid server address: %q", url)
	}
	if !api.Probe(ctx, nil, url, a.cfg.Discovery.ProbeTimeout.Duration) {
		return fmt.Errorf("%w: %s", elixirerrors.ErrServerUnreachable, url)
	}

	candidates := a.catalog.Candidates()
	known := -1
	for i, c := range candidates {
		if c.URL == url {
			known = i
		}
	}
	if known < 0 {
		// An address typed in by hand joins the list as the manual entry.
		a.manual = url
		candidates = a.catalog.SetManual(url)
	}

	if _, ok := a.state.Lookup(url); !ok {
		rec := auth.ServerRecord{}
		if known >= 0 {
			rec.Label = candidates[known].Label
			rec.NetworkType = candidates[known].NetworkHint()
		}
		a.state.Remember(url, rec)
	}
	a.applyServer(url)
	if a.controller != nil {
		a.controller.Invalidate("server changed")
	}
	return a.store.Save(a.state)
}

// CurrentHealthy probes the server in use.
func (a *app) CurrentHealthy(ctx context.Context) bool {
	if a.client.BaseURL() == "" {
		return false
	}
	return a.client.Health(ctx, a.cfg.Discovery.ProbeTimeout.Duration)
}

// Current returns the base URL in use.
func (a *app) Current() string {
	return a.client.BaseURL()
}

// network is the play request network hint for the current server.
func (a *app) network() string {
	if a.cfg.Server.Network != "" {
		return a.cfg.Server.Network
	}
	rec, _ := a.state.Lookup(a.client.BaseURL())
	return rec.NetworkType
}

// player builds the backend arbiter and session controller on first use.
func (a *app) player(ctx context.Context) (*session.Controller, *backend.Arbiter, error) {
	if a.controller != nil {
		return a.controller, a.arbiter, nil
	}

	bc := a.cfg.Backends
	a.stream = backend.NewStream(bc.Stream.Sink, a.logger, backend.WithNativeExtensions(bc.Stream.NativeExtensions))
	external := backend.NewExternal(bc.External.Binaries, a.logger)
	embedded := backend.NewEmbedded(backend.EmbeddedConfig{
		Binary:   bc.Embedded.Binary,
		Socket:   bc.Embedded.Socket,
		WindowID: bc.Embedded.WindowID,
	}, a.logger)
	a.arbiter = backend.NewArbiter(a.logger, a.stream, external, embedded)

	if bc.Embedded.Overlay {
		_ = a.arbiter.SetOverlay(ctx, true)
	}
	kind, err := backend.ParseKind(a.cfg.Playback.Backend)
	if err != nil {
		return nil, nil, err
	}
	if err := a.arbiter.Select(ctx, kind); err != nil {
		// Fall back to no output; the session itself still runs.
		a.logger.Warn().Err(err).Str("backend", string(kind)).Msg("default backend unavailable")
	}

	pc := a.cfg.Playback
	a.controller = session.New(a.client, a.arbiter, session.Options{
		PollInterval:       pc.PollInterval.Duration,
		SeekDebounce:       pc.SeekDebounce.Duration,
		EndPreviousOnStart: pc.EndPreviousOnStart,
		Network:            a.network(),
	}, a.logger)

	return a.controller, a.arbiter, nil
}

// close releases the player resources. It returns once the controller's
// shutdown end request has finished, so the process does not exit under it.
func (a *app) close() {
	var ended <-chan struct{}
	if a.controller != nil {
		ended = a.controller.Close()
	}
	if a.arbiter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = a.arbiter.Close(ctx)
	}
	if ended != nil {
		<-ended
	}
}

// saveToken stores a freshly issued token for url.
func (a *app) saveToken(url string, tokens *api.AuthTokens, email string) (*auth.Token, error) {
	token, err := auth.ParseToken(tokens.AccessToken, tokens.TokenType, tokens.AccessExpiresAt)
	if err != nil {
		return nil, err
	}
	a.state.SetToken(url, token, email)
	if err := a.store.Save(a.state); err != nil {
		return nil, err
	}
	return token, nil
}
