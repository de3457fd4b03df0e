package backend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	elixirerrors "github.com/tessro/elixir/internal/errors"
)

type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

func (l *opLog) take() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.ops
	l.ops = nil
	return out
}

type fakeBackend struct {
	kind      Kind
	log       *opLog
	available bool
	playErr   error
}

func (f *fakeBackend) Kind() Kind                       { return f.kind }
func (f *fakeBackend) Available(context.Context) bool { return f.available }

func (f *fakeBackend) Play(_ context.Context, locator string) error {
	f.log.add(string(f.kind) + ".play " + locator)
	return f.playErr
}

func (f *fakeBackend) Stop(context.Context) error {
	f.log.add(string(f.kind) + ".stop")
	return nil
}

type fakePinger struct {
	fakeBackend
	pingErr error
	overlay []bool
}

func (f *fakePinger) Ping(context.Context) error {
	f.log.add(string(f.kind) + ".ping")
	return f.pingErr
}

func (f *fakePinger) SetOverlay(_ context.Context, on bool) error {
	f.overlay = append(f.overlay, on)
	return nil
}

func (f *fakePinger) Close(context.Context) error {
	f.log.add(string(f.kind) + ".close")
	return nil
}

func newTestArbiter() (*Arbiter, *opLog, *fakePinger) {
	log := &opLog{}
	embedded := &fakePinger{fakeBackend: fakeBackend{kind: KindEmbedded, log: log, available: true}}
	a := NewArbiter(zerolog.Nop(),
		&fakeBackend{kind: KindStream, log: log, available: true},
		&fakeBackend{kind: KindExternal, log: log, available: true},
		embedded,
	)
	return a, log, embedded
}

func TestSelectStopsPreviousBeforeStartingNext(t *testing.T) {
	ctx := context.Background()
	a, log, _ := newTestArbiter()

	require.NoError(t, a.Select(ctx, KindExternal))
	require.NoError(t, a.Play(ctx, "http://srv/stream/S1?token=T"))
	log.take()

	require.NoError(t, a.Select(ctx, KindEmbedded))
	assert.Equal(t, []string{
		"embedded.ping",
		"external.stop",
		"embedded.play http://srv/stream/S1?token=T",
	}, log.take())
	assert.Equal(t, KindEmbedded, a.Active())
}

func TestSelectNoneStopsActive(t *testing.T) {
	ctx := context.Background()
	a, log, _ := newTestArbiter()

	require.NoError(t, a.Select(ctx, KindStream))
	require.NoError(t, a.Play(ctx, "L"))
	log.take()

	require.NoError(t, a.Select(ctx, KindNone))
	assert.Equal(t, []string{"stream.stop"}, log.take())
	assert.Equal(t, KindNone, a.Active())

	require.NoError(t, a.Play(ctx, "L2"))
	assert.Empty(t, log.take(), "nothing plays with no backend selected")
	assert.Equal(t, "L2", a.Locator())
}

func TestSelectSameKindIsNoop(t *testing.T) {
	ctx := context.Background()
	a, log, _ := newTestArbiter()
	require.NoError(t, a.Select(ctx, KindStream))
	log.take()

	require.NoError(t, a.Select(ctx, KindStream))
	assert.Empty(t, log.take())
}

func TestSelectUnavailable(t *testing.T) {
	ctx := context.Background()
	log := &opLog{}
	a := NewArbiter(zerolog.Nop(), &fakeBackend{kind: KindExternal, log: log})

	err := a.Select(ctx, KindExternal)
	require.ErrorIs(t, err, elixirerrors.ErrBackendUnavailable)
	assert.Equal(t, KindNone, a.Active())
	assert.Equal(t, "external backend unavailable", a.Status())

	require.Error(t, a.Select(ctx, KindEmbedded), "unregistered kind")
	require.Error(t, a.Select(ctx, Kind("bogus")))
}

func TestSelectPingFailureResetsToNone(t *testing.T) {
	ctx := context.Background()
	a, log, embedded := newTestArbiter()
	embedded.pingErr = errors.New("connection refused")

	require.NoError(t, a.Select(ctx, KindStream))
	require.NoError(t, a.Play(ctx, "L"))
	log.take()

	err := a.Select(ctx, KindEmbedded)
	require.Error(t, err)
	assert.Equal(t, KindNone, a.Active())
	assert.Equal(t, "embedded player did not respond", a.Status())
	assert.Equal(t, []string{"embedded.ping", "stream.stop"}, log.take())
}

func TestRestartStopsThenPlays(t *testing.T) {
	ctx := context.Background()
	a, log, _ := newTestArbiter()
	require.NoError(t, a.Select(ctx, KindExternal))
	require.NoError(t, a.Play(ctx, "L?ts=1"))
	log.take()

	require.NoError(t, a.Restart(ctx, "L?ts=2"))
	assert.Equal(t, []string{"external.stop", "external.play L?ts=2"}, log.take())
}

func TestStopKeepsSelection(t *testing.T) {
	ctx := context.Background()
	a, log, _ := newTestArbiter()
	require.NoError(t, a.Select(ctx, KindExternal))
	require.NoError(t, a.Play(ctx, "L"))
	log.take()

	require.NoError(t, a.Stop(ctx))
	assert.Equal(t, []string{"external.stop"}, log.take())
	assert.Equal(t, KindExternal, a.Active())
	assert.Empty(t, a.Locator())

	require.NoError(t, a.Select(ctx, KindStream))
	assert.Equal(t, []string{"external.stop"}, log.take(), "no locator to hand over")
}

func TestPlayFailureSetsStatus(t *testing.T) {
	ctx := context.Background()
	log := &opLog{}
	a := NewArbiter(zerolog.Nop(), &fakeBackend{kind: KindStream, log: log, available: true, playErr: errors.New("404")})
	require.NoError(t, a.Select(ctx, KindStream))

	require.Error(t, a.Play(ctx, "L"))
	assert.Equal(t, "stream backend: 404", a.Status())
}

func TestOverlay(t *testing.T) {
	ctx := context.Background()
	a, _, embedded := newTestArbiter()

	require.NoError(t, a.SetOverlay(ctx, true))
	assert.True(t, a.Overlay())
	assert.Empty(t, embedded.overlay, "not active yet")

	require.NoError(t, a.Select(ctx, KindEmbedded))
	assert.Equal(t, []bool{true}, embedded.overlay)

	require.NoError(t, a.SetOverlay(ctx, false))
	assert.Equal(t, []bool{true, false}, embedded.overlay)
}

func TestAvailability(t *testing.T) {
	log := &opLog{}
	a := NewArbiter(zerolog.Nop(),
		&fakeBackend{kind: KindStream, log: log, available: true},
		&fakeBackend{kind: KindExternal, log: log},
	)
	assert.Equal(t, map[Kind]bool{
		KindNone:     true,
		KindStream:   true,
		KindExternal: false,
		KindEmbedded: false,
	}, a.Availability(context.Background()))
}

func TestCloseStopsAllAndClosesResources(t *testing.T) {
	ctx := context.Background()
	a, log, _ := newTestArbiter()
	require.NoError(t, a.Select(ctx, KindEmbedded))
	log.take()

	require.NoError(t, a.Close(ctx))
	assert.Equal(t, []string{"stream.stop", "external.stop", "embedded.stop", "embedded.close"}, log.take())
	assert.Equal(t, KindNone, a.Active())
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"none", KindNone},
		{"0", KindNone},
		{"Stream", KindStream},
		{"2", KindExternal},
		{" embedded ", KindEmbedded},
		{"3", KindEmbedded},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseKind("4")
	assert.Error(t, err)
	_, err = ParseKind("vlc")
	assert.Error(t, err)
}

func TestControlsNeedEmbeddedAndALocator(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newTestArbiter()

	require.NoError(t, a.Select(ctx, KindStream))
	_, err := a.TogglePause(ctx)
	assert.ErrorIs(t, err, elixirerrors.ErrNoControls)
	_, err = a.CycleTrack(ctx, TrackAudio)
	assert.ErrorIs(t, err, elixirerrors.ErrNoControls)
}

func TestControlsForwardToEmbedded(t *testing.T) {
	ctx := context.Background()
	mpv := newFakeMPV(t)
	mpv.data = map[string]string{
		"get_propertypause": "true",
		"get_propertytrack-list": `[
			{"id":1,"type":"audio","lang":"eng","selected":true},
			{"id":2,"type":"audio","lang":"jpn"},
			{"id":1,"type":"sub","lang":"eng","selected":true}
		]`,
	}
	e, _ := newTestEmbedded(t, mpv.socket())
	a := NewArbiter(zerolog.Nop(), e)

	require.NoError(t, a.Select(ctx, KindEmbedded))
	_, err := a.TogglePause(ctx)
	assert.ErrorIs(t, err, elixirerrors.ErrNoSession, "nothing loaded yet")

	require.NoError(t, a.Play(ctx, "http://srv/x"))
	paused, err := a.TogglePause(ctx)
	require.NoError(t, err)
	assert.True(t, paused)
	assert.True(t, a.Paused())

	audio, err := a.CycleTrack(ctx, TrackAudio)
	require.NoError(t, err)
	assert.Equal(t, 2, audio.ID)

	sub, err := a.CycleTrack(ctx, TrackSubtitle)
	require.NoError(t, err)
	assert.Equal(t, "off", sub.Label())

	require.NoError(t, a.Restart(ctx, "http://srv/y"))
	assert.False(t, a.Paused(), "a new locator starts unpaused")

	assert.Contains(t, mpv.names(), "set_propertyaid2")
	assert.Contains(t, mpv.names(), "set_propertysidno")
}

func TestNextTrack(t *testing.T) {
	tracks := []Track{
		{ID: 1, Type: "video", Selected: true},
		{ID: 1, Type: TrackAudio},
		{ID: 2, Type: TrackAudio, Selected: true},
		{ID: 1, Type: TrackSubtitle},
	}

	next, ok := NextTrack(tracks, TrackAudio)
	require.True(t, ok)
	assert.Equal(t, 1, next.ID, "wraps around")

	next, ok = NextTrack(tracks, TrackSubtitle)
	require.True(t, ok)
	assert.Equal(t, 1, next.ID, "from off to the first subtitle")

	tracks[3].Selected = true
	next, ok = NextTrack(tracks, TrackSubtitle)
	require.True(t, ok)
	assert.Equal(t, 0, next.ID, "back to off")

	_, ok = NextTrack(tracks[:2], TrackAudio)
	assert.False(t, ok, "a single track has nowhere to go")
	_, ok = NextTrack(nil, TrackSubtitle)
	assert.False(t, ok)
}

func TestTrackLabel(t *testing.T) {
	assert.Equal(t, "off", Track{Type: TrackSubtitle}.Label())
	assert.Equal(t, "2: Commentary (eng)", Track{ID: 2, Title: "Commentary", Lang: "eng"}.Label())
	assert.Equal(t, "3: jpn", Track{ID: 3, Lang: "jpn"}.Label())
	assert.Equal(t, "4", Track{ID: 4}.Label())
}

func TestStatusReportsExitedPlayer(t *testing.T) {
	ctx := context.Background()
	mpv := newFakeMPV(t)
	e, l := newTestEmbedded(t, mpv.socket())
	a := NewArbiter(zerolog.Nop(), e)

	require.NoError(t, a.Select(ctx, KindEmbedded))
	assert.Empty(t, a.Status(), "idle player with nothing loaded")

	require.NoError(t, a.Play(ctx, "http://srv/x"))
	assert.Empty(t, a.Status())

	l.proc(0).exit()
	require.Eventually(t, func() bool { return a.Status() == "embedded player exited" },
		time.Second, 5*time.Millisecond)

	require.NoError(t, a.Stop(ctx))
	assert.Empty(t, a.Status(), "nothing loaded, nothing to report")
}

func TestTransferFollowsActiveBackend(t *testing.T) {
	ctx := context.Background()
	srv := newHLSServer(t)
	stream := NewStream("discard", zerolog.Nop(), WithSink(&syncBuffer{}))
	a := NewArbiter(zerolog.Nop(), stream)

	_, ok := a.Transfer()
	assert.False(t, ok, "none selected")

	require.NoError(t, a.Select(ctx, KindStream))
	require.NoError(t, a.Play(ctx, srv.URL+"/stream/S1/master.m3u8"))
	require.Eventually(t, func() bool {
		tr, ok := a.Transfer()
		return ok && tr.Bytes == int64(len("<seg0.ts><seg1.ts><seg2.ts>"))
	}, 2*time.Second, 5*time.Millisecond)

	tr, _ := a.Transfer()
	assert.Equal(t, 16500*time.Millisecond, tr.Buffered)
	require.NoError(t, a.Stop(ctx))
}
