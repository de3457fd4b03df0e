package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/elixir/internal/auth"
	"github.com/tessro/elixir/internal/backend"
	"github.com/tessro/elixir/internal/config"
	"github.com/tessro/elixir/internal/core"
	elixirerrors "github.com/tessro/elixir/internal/errors"
	"github.com/tessro/elixir/internal/session"
)

// withConfig installs a default config with state under a temp dir and
// discovery off, restoring the globals afterwards.
func withConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	prevCfg, prevFile, prevServer := cfg, cfgFile, serverFlag
	t.Cleanup(func() { cfg, cfgFile, serverFlag = prevCfg, prevFile, prevServer })

	off := false
	cfg = config.Default()
	cfg.Discovery.Enabled = &off
	cfg.Discovery.ProbeTimeout = config.Duration{Duration: time.Second}
	cfg.State.Path = filepath.Join(dir, "state.json")
	cfgFile = filepath.Join(dir, "config.toml")
	serverFlag = ""
	return dir
}

func healthServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewAppServerPrecedence(t *testing.T) {
	withConfig(t)

	store, err := auth.NewStore(cfg.State.Path)
	require.NoError(t, err)
	state := auth.NewState()
	state.SetToken("http://last.test", &auth.Token{AccessToken: "t-last"}, "me@example.com")
	state.Select("http://last.test")
	require.NoError(t, store.Save(state))

	a, err := newApp()
	require.NoError(t, err)
	assert.Equal(t, "http://last.test", a.Current())
	assert.Equal(t, "t-last", a.client.Token())

	cfg.Server.URL = "config.test:9000"
	a, err = newApp()
	require.NoError(t, err)
	assert.Equal(t, "http://config.test:9000", a.Current())
	assert.False(t, a.client.HasToken(), "token belongs to a different server")

	serverFlag = "flag.test"
	a, err = newApp()
	require.NoError(t, err)
	assert.Equal(t, "http://flag.test", a.Current())
}

func TestRequireAuth(t *testing.T) {
	withConfig(t)

	a, err := newApp()
	require.NoError(t, err)
	assert.ErrorIs(t, a.requireAuth(), elixirerrors.ErrNoServer)

	a.applyServer("http://media.test")
	assert.ErrorIs(t, a.requireAuth(), elixirerrors.ErrNotAuthenticated)

	a.state.SetToken("http://media.test", &auth.Token{AccessToken: "old", ExpiresAt: time.Now().Add(-time.Hour)}, "")
	a.applyServer("http://media.test")
	assert.ErrorIs(t, a.requireAuth(), elixirerrors.ErrTokenExpired)

	a.state.SetToken("http://media.test", &auth.Token{AccessToken: "fresh"}, "")
	a.applyServer("http://media.test")
	assert.NoError(t, a.requireAuth())
}

func TestCandidatesIncludesManual(t *testing.T) {
	withConfig(t)
	cfg.Server.URL = "10.0.0.9:9000"

	a, err := newApp()
	require.NoError(t, err)

	servers, err := a.Candidates(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "http://10.0.0.9:9000", servers[0].URL)
	assert.Equal(t, core.SourceManual, servers[0].Source)
}

func TestUseSwitchesAndPersists(t *testing.T) {
	withConfig(t)
	srv := healthServer(t)

	a, err := newApp()
	require.NoError(t, err)
	a.state.SetToken(srv.URL, &auth.Token{AccessToken: "tok"}, "")

	require.NoError(t, a.Use(context.Background(), srv.URL))
	assert.Equal(t, srv.URL, a.Current())
	assert.Equal(t, "tok", a.client.Token())

	saved, err := a.store.Load()
	require.NoError(t, err)
	assert.Equal(t, srv.URL, saved.LastUsed)
}

func TestUseAddsTypedAddressToCandidates(t *testing.T) {
	withConfig(t)
	srv := healthServer(t)

	a, err := newApp()
	require.NoError(t, err)
	assert.False(t, a.CurrentHealthy(context.Background()), "no server yet")
	assert.Empty(t, a.catalog.Candidates())

	require.NoError(t, a.Use(context.Background(), srv.URL))
	assert.True(t, a.CurrentHealthy(context.Background()))

	servers, err := a.Candidates(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, srv.URL, servers[0].URL)
	assert.Equal(t, core.SourceManual, servers[0].Source)

	srv.Close()
	assert.False(t, a.CurrentHealthy(context.Background()))
}

func TestUseUnreachableKeepsCurrent(t *testing.T) {
	withConfig(t)
	srv := healthServer(t)
	dead := srv.URL
	srv.Close()

	a, err := newApp()
	require.NoError(t, err)
	a.applyServer("http://media.test")

	err = a.Use(context.Background(), dead)
	assert.ErrorIs(t, err, elixirerrors.ErrServerUnreachable)
	assert.Equal(t, "http://media.test", a.Current())

	assert.Error(t, a.Use(context.Background(), "ftp://nope.test"))
}

func TestSetConfigValue(t *testing.T) {
	withConfig(t)

	require.NoError(t, setConfigValue("server.url", "10.0.0.2:9000"))
	require.NoError(t, setConfigValue("playback.seek_step", "30"))
	require.NoError(t, setConfigValue("backends.external.binaries", "mpv, vlc"))
	require.NoError(t, setConfigValue("discovery.enabled", "false"))

	loaded, err := config.LoadFrom(cfgFile)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2:9000", loaded.Server.URL)
	assert.Equal(t, 30.0, loaded.Playback.SeekStep)
	assert.Equal(t, []string{"mpv", "vlc"}, loaded.Backends.External.Binaries)
	assert.False(t, loaded.Discovery.DiscoveryEnabled())
}

func TestSetConfigValueRejectsBadInput(t *testing.T) {
	withConfig(t)

	assert.Error(t, setConfigValue("playback.backend", "vhs"))
	assert.Error(t, setConfigValue("playback.seek_step", "far"))
	assert.Error(t, setConfigValue("log.max_backups", "many"))
	assert.Error(t, setConfigValue("nosection", "x"))
	assert.Error(t, setConfigValue("server.colour", "blue"))

	_, err := os.Stat(cfgFile)
	assert.True(t, os.IsNotExist(err), "rejected values must not create the file")
}

func TestWriteConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")

	require.NoError(t, writeConfig(path, config.Default()))

	var c config.Config
	_, err := toml.DecodeFile(path, &c)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Playback.PollInterval, c.Playback.PollInterval)
	assert.Equal(t, "none", c.Playback.Backend)
}

func TestRemoteFinished(t *testing.T) {
	assert.False(t, remoteFinished(nil))
	assert.False(t, remoteFinished(&session.Snapshot{Session: core.PlaybackSession{RemoteState: "playing"}}))
	assert.True(t, remoteFinished(&session.Snapshot{Session: core.PlaybackSession{RemoteState: "ended"}}))
}

func TestRelativeTime(t *testing.T) {
	assert.Equal(t, "", relativeTime(""))
	assert.Equal(t, "yesterday-ish", relativeTime("yesterday-ish"))
	ts := time.Now().Add(-3 * time.Hour).UTC().Format(time.RFC3339)
	assert.Equal(t, "3 hours ago", relativeTime(ts))
}

func TestOutputHelpers(t *testing.T) {
	assert.Equal(t, "1:05", FormatDuration(65))
	assert.Equal(t, "1:01:01", FormatDuration(3661))
	assert.Equal(t, "0:00", FormatDuration(-4))

	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "a lon...", TruncateString("a long title", 8))
	assert.Equal(t, "●", StatusIcon(true))
	assert.Equal(t, "○", StatusIcon(false))
}

func TestTransferSummary(t *testing.T) {
	assert.Equal(t, "Streamed 2.0 KiB (1:05 of media)",
		transferSummary(backend.Transfer{Bytes: 2048, Buffered: 65 * time.Second}))
	assert.Equal(t, "Streamed 9 B", transferSummary(backend.Transfer{Bytes: 9}))
}
