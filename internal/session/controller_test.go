package session

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/elixir/internal/api"
	"github.com/tessro/elixir/internal/core"
	elixirerrors "github.com/tessro/elixir/internal/errors"
)

type fakeAPI struct {
	mu       sync.Mutex
	base     string
	token    string
	starts   []api.PlayRequest
	polls    map[string]int
	seeks    []float64
	ends     []string
	calls    []string
	nextID   int
	duration *float64

	startErr error
	seekErr  error
	pollFn   func(ctx context.Context, id string, n int) (*api.SessionPoll, error)
	endFn    func(ctx context.Context, id string) error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{base: "http://srv.test", token: "T", polls: make(map[string]int)}
}

func (f *fakeAPI) BaseURL() string { f.mu.Lock(); defer f.mu.Unlock(); return f.base }
func (f *fakeAPI) Token() string   { f.mu.Lock(); defer f.mu.Unlock(); return f.token }

func (f *fakeAPI) StartPlayback(ctx context.Context, req api.PlayRequest) (*api.PlayResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, req)
	f.calls = append(f.calls, "start")
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.nextID++
	id := "S" + string(rune('0'+f.nextID))
	return &api.PlayResponse{
		SessionID:       id,
		Mode:            core.ModeDirect,
		StreamURL:       "/stream/" + id,
		State:           "ready",
		DurationSeconds: f.duration,
	}, nil
}

func (f *fakeAPI) PollSession(ctx context.Context, id string) (*api.SessionPoll, error) {
	f.mu.Lock()
	f.polls[id]++
	n := f.polls[id]
	fn := f.pollFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, id, n)
	}
	return &api.SessionPoll{ID: id, State: "playing", LogicalPositionSeconds: float64(n)}, nil
}

func (f *fakeAPI) SeekSession(ctx context.Context, id string, position float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, position)
	return f.seekErr
}

func (f *fakeAPI) EndSession(ctx context.Context, id string) error {
	f.mu.Lock()
	f.ends = append(f.ends, id)
	f.calls = append(f.calls, "end:"+id)
	fn := f.endFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, id)
	}
	return nil
}

func (f *fakeAPI) pollCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[id]
}

func (f *fakeAPI) seekCalls() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.seeks...)
}

func (f *fakeAPI) endCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ends...)
}

type fakeRenderer struct {
	mu       sync.Mutex
	plays    []string
	restarts []string
	stops    int
}

func (r *fakeRenderer) Play(ctx context.Context, locator string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plays = append(r.plays, locator)
	return nil
}

func (r *fakeRenderer) Restart(ctx context.Context, locator string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restarts = append(r.restarts, locator)
	return nil
}

func (r *fakeRenderer) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

func (r *fakeRenderer) snapshot() (plays, restarts []string, stops int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.plays...), append([]string(nil), r.restarts...), r.stops
}

func item(id string, runtime float64) core.LibraryItem {
	it := core.LibraryItem{ID: id, Title: "Item " + id}
	if runtime > 0 {
		it.RuntimeSeconds = &runtime
	}
	return it
}

func newController(t *testing.T, f *fakeAPI, r Renderer, opts Options) *Controller {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Hour
	}
	c := New(f, r, opts, zerolog.Nop())
	t.Cleanup(func() { c.Close() })
	return c
}

func TestStartStoresSessionAndHandsLocatorToRenderer(t *testing.T) {
	f := newFakeAPI()
	r := &fakeRenderer{}
	c := newController(t, f, r, Options{Network: "lan"})

	require.NoError(t, c.Start(context.Background(), StartRequest{Item: item("X", 5400), FileID: "f1"}))

	snap := c.Snapshot()
	assert.Equal(t, "S1", snap.Session.ID)
	assert.Equal(t, core.ModeDirect, snap.Session.Mode)
	assert.Equal(t, core.StateActive, snap.Session.State)
	require.NotNil(t, snap.Session.Duration)
	assert.Equal(t, 5400.0, *snap.Session.Duration, "duration falls back to item runtime")

	u, err := url.Parse(snap.Session.Locator)
	require.NoError(t, err)
	assert.Equal(t, "srv.test", u.Host)
	assert.Equal(t, "/stream/S1", u.Path)
	assert.Equal(t, "T", u.Query().Get("token"))

	plays, _, _ := r.snapshot()
	assert.Equal(t, []string{snap.Session.Locator}, plays)

	require.Len(t, f.starts, 1)
	require.NotNil(t, f.starts[0].PreferredFileID)
	assert.Equal(t, "f1", *f.starts[0].PreferredFileID)
	assert.Equal(t, "lan", f.starts[0].NetworkType)

	require.Eventually(t, func() bool { return f.pollCount("S1") >= 1 }, time.Second, 5*time.Millisecond,
		"first poll runs immediately")
}

func TestStartPrefersServerDuration(t *testing.T) {
	f := newFakeAPI()
	d := 600.0
	f.duration = &d
	c := newController(t, f, nil, Options{})

	require.NoError(t, c.Start(context.Background(), StartRequest{Item: item("X", 5400)}))
	require.NotNil(t, c.Snapshot().Session.Duration)
	assert.Equal(t, 600.0, *c.Snapshot().Session.Duration)
}

func TestStartPreconditions(t *testing.T) {
	f := newFakeAPI()
	f.base = ""
	c := newController(t, f, nil, Options{})
	err := c.Start(context.Background(), StartRequest{Item: item("X", 0)})
	require.ErrorIs(t, err, elixirerrors.ErrNoServer)
	assert.NotEmpty(t, c.Snapshot().Status)

	f = newFakeAPI()
	f.token = ""
	c = newController(t, f, nil, Options{})
	err = c.Start(context.Background(), StartRequest{Item: item("X", 0)})
	require.ErrorIs(t, err, elixirerrors.ErrNotAuthenticated)

	f = newFakeAPI()
	c = newController(t, f, nil, Options{})
	require.Error(t, c.Start(context.Background(), StartRequest{}))
	assert.Empty(t, f.starts)
}

func TestStartFailureSetsErrorState(t *testing.T) {
	f := newFakeAPI()
	f.startErr = &api.APIError{StatusCode: 409, Detail: "too many sessions"}
	c := newController(t, f, nil, Options{})

	require.Error(t, c.Start(context.Background(), StartRequest{Item: item("X", 0)}))
	snap := c.Snapshot()
	assert.Equal(t, core.StateError, snap.Session.State)
	assert.Equal(t, "start playback: too many sessions", snap.Status)
}

func TestPollUpdatesPosition(t *testing.T) {
	f := newFakeAPI()
	c := newController(t, f, nil, Options{PollInterval: 10 * time.Millisecond})

	require.NoError(t, c.Start(context.Background(), StartRequest{Item: item("X", 0)}))

	var last float64
	require.Eventually(t, func() bool {
		pos := c.Snapshot().Session.Position
		if pos < last {
			t.Errorf("position went backwards: %v -> %v", last, pos)
		}
		last = pos
		return pos >= 3
	}, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, "playing", c.Snapshot().Session.RemoteState)
}

func TestPollErrorKeepsPolling(t *testing.T) {
	f := newFakeAPI()
	f.pollFn = func(ctx context.Context, id string, n int) (*api.SessionPoll, error) {
		if n == 2 {
			return &api.SessionPoll{ID: id, State: "failed", Error: "transcoder exited", LogPath: "/var/log/t.log"}, nil
		}
		return &api.SessionPoll{ID: id, State: "playing", LogicalPositionSeconds: float64(n)}, nil
	}
	c := newController(t, f, nil, Options{PollInterval: 20 * time.Millisecond})
	ch, unsubscribe := c.Subscribe()
	defer unsubscribe()

	require.NoError(t, c.Start(context.Background(), StartRequest{Item: item("X", 0)}))

	sawError := false
	deadline := time.After(2 * time.Second)
	for !sawError {
		select {
		case snap := <-ch:
			if snap.Session.State == core.StateError {
				sawError = true
				assert.Equal(t, "transcoder exited", snap.Session.Error)
				assert.Equal(t, "/var/log/t.log", snap.Session.LogPath)
			}
		case <-deadline:
			t.Fatal("never saw error state")
		}
	}

	require.Eventually(t, func() bool {
		s := c.Snapshot().Session
		return s.State == core.StateActive && s.Error == ""
	}, 2*time.Second, 5*time.Millisecond, "session recovers on a clean poll")
}

func TestStalePollIsDiscarded(t *testing.T) {
	f := newFakeAPI()
	release := make(chan struct{})
	inFlight := make(chan struct{})
	var once sync.Once
	f.pollFn = func(ctx context.Context, id string, n int) (*api.SessionPoll, error) {
		if id == "S1" {
			once.Do(func() { close(inFlight) })
			<-release
			return &api.SessionPoll{ID: id, State: "playing", LogicalPositionSeconds: 999, Error: "stale"}, nil
		}
		return &api.SessionPoll{ID: id, State: "playing", LogicalPositionSeconds: 7}, nil
	}
	c := newController(t, f, nil, Options{})

	require.NoError(t, c.Start(context.Background(), StartRequest{Item: item("A", 0)}))
	<-inFlight

	require.NoError(t, c.Start(context.Background(), StartRequest{Item: item("B", 0)}))
	require.Eventually(t, func() bool { return c.Snapshot().Session.Position == 7 }, time.Second, 5*time.Millisecond)

	close(release)
	time.Sleep(50 * time.Millisecond)

	s := c.Snapshot().Session
	assert.Equal(t, "S2", s.ID)
	assert.Equal(t, 7.0, s.Position)
	assert.Empty(t, s.Error)
	assert.Equal(t, core.StateActive, s.State)
	assert.Empty(t, f.endCalls(), "starting over an active session does not end it by default")
}

func TestSeekDebounce(t *testing.T) {
	f := newFakeAPI()
	r := &fakeRenderer{}
	c := newController(t, f, r, Options{})

	require.NoError(t, c.Start(context.Background(), StartRequest{Item: item("X", 0)}))
	require.Eventually(t, func() bool { return f.pollCount("S1") >= 1 }, time.Second, 5*time.Millisecond)
	before := c.Snapshot().Session.Locator

	for _, pos := range []float64{30, 60, 90, 100, 120} {
		c.Seek(pos)
		assert.Equal(t, pos, c.Snapshot().Session.Position, "local position applies at once")
		time.Sleep(20 * time.Millisecond)
	}
	assert.Empty(t, f.seekCalls(), "no network seek inside the quiet window")

	require.Eventually(t, func() bool { return len(f.seekCalls()) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(2 * DefaultSeekDebounce)
	assert.Equal(t, []float64{120}, f.seekCalls())

	require.Eventually(t, func() bool {
		_, restarts, _ := r.snapshot()
		return len(restarts) == 1
	}, time.Second, 5*time.Millisecond)

	snap := c.Snapshot().Session
	assert.Equal(t, 120.0, snap.Position)
	assert.Equal(t, core.StateActive, snap.State)
	assert.NotEqual(t, before, snap.Locator)

	u, err := url.Parse(snap.Locator)
	require.NoError(t, err)
	assert.NotEmpty(t, u.Query().Get("ts"))
	assert.Equal(t, "T", u.Query().Get("token"))

	_, restarts, _ := r.snapshot()
	assert.Equal(t, snap.Locator, restarts[0])
}

func TestSeekNowSkipsDebounce(t *testing.T) {
	f := newFakeAPI()
	r := &fakeRenderer{}
	c := newController(t, f, r, Options{SeekDebounce: time.Hour})

	require.NoError(t, c.Start(context.Background(), StartRequest{Item: item("X", 0)}))
	require.Eventually(t, func() bool { return c.Snapshot().Session.Position == 1 }, time.Second, 5*time.Millisecond)
	c.Seek(30)
	require.NoError(t, c.SeekNow(context.Background(), 600))

	assert.Equal(t, []float64{600}, f.seekCalls(), "pending debounced seek is replaced")
	snap := c.Snapshot().Session
	assert.Equal(t, 600.0, snap.Position)
	assert.Equal(t, core.StateActive, snap.State)
	_, restarts, _ := r.snapshot()
	require.Len(t, restarts, 1)
	assert.Equal(t, snap.Locator, restarts[0])
}

func TestSeekNowReportsFailure(t *testing.T) {
	f := newFakeAPI()
	f.seekErr = errors.New("boom")
	c := newController(t, f, nil, Options{})

	require.NoError(t, c.Start(context.Background(), StartRequest{Item: item("X", 0)}))
	require.Error(t, c.SeekNow(context.Background(), 42))
	assert.NotEmpty(t, c.Snapshot().Status)

	c.End(context.Background())
	require.NoError(t, c.SeekNow(context.Background(), 10), "no session means local only")
	assert.Equal(t, []float64{42}, f.seekCalls())
}

func TestSeekStampsAreDistinct(t *testing.T) {
	f := newFakeAPI()
	fixed := time.UnixMilli(1_700_000_000_000)
	c := newController(t, f, nil, Options{SeekDebounce: 5 * time.Millisecond, Now: func() time.Time { return fixed }})
	require.NoError(t, c.Start(context.Background(), StartRequest{Item: item("X", 0)}))

	var stamps []string
	for i, pos := range []float64{10, 20} {
		c.Seek(pos)
		require.Eventually(t, func() bool { return len(f.seekCalls()) == i+1 }, time.Second, 2*time.Millisecond)
		require.Eventually(t, func() bool {
			u, _ := url.Parse(c.Snapshot().Session.Locator)
			ts := u.Query().Get("ts")
			return ts != "" && (len(stamps) == 0 || ts != stamps[len(stamps)-1])
		}, time.Second, 2*time.Millisecond)
		u, _ := url.Parse(c.Snapshot().Session.Locator)
		stamps = append(stamps, u.Query().Get("ts"))
	}
	assert.Equal(t, []string{"1700000000000", "1700000000001"}, stamps)
}

func TestSeekWithoutSessionIsLocalOnly(t *testing.T) {
	f := newFakeAPI()
	c := newController(t, f, nil, Options{SeekDebounce: 5 * time.Millisecond})

	c.Seek(42)
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, 42.0, c.Snapshot().Session.Position)
	assert.Empty(t, f.seekCalls())
}

func TestSeekFailureKeepsLocalPosition(t *testing.T) {
	f := newFakeAPI()
	f.seekErr = &api.APIError{StatusCode: 500, Detail: "seek out of range"}
	r := &fakeRenderer{}
	c := newController(t, f, r, Options{SeekDebounce: 5 * time.Millisecond})
	require.NoError(t, c.Start(context.Background(), StartRequest{Item: item("X", 0)}))
	locator := c.Snapshot().Session.Locator

	c.Seek(300)
	require.Eventually(t, func() bool { return c.Snapshot().Status != "" }, time.Second, 2*time.Millisecond)

	snap := c.Snapshot()
	assert.Equal(t, "seek failed: seek out of range", snap.Status)
	assert.Equal(t, 300.0, snap.Session.Position)
	assert.Equal(t, locator, snap.Session.Locator)
	_, restarts, _ := r.snapshot()
	assert.Empty(t, restarts)
}

func TestSeekClampsToDuration(t *testing.T) {
	f := newFakeAPI()
	c := newController(t, f, nil, Options{})
	require.NoError(t, c.Start(context.Background(), StartRequest{Item: item("X", 100)}))

	c.Seek(-5)
	assert.Equal(t, 0.0, c.Snapshot().Session.Position)
	c.Seek(250)
	assert.Equal(t, 100.0, c.Snapshot().Session.Position)
	c.SeekBy(-30)
	assert.Equal(t, 70.0, c.Snapshot().Session.Position)
}

func TestEndStopsPollingAndClearsSession(t *testing.T) {
	f := newFakeAPI()
	r := &fakeRenderer{}
	c := newController(t, f, r, Options{PollInterval: 10 * time.Millisecond})

	require.NoError(t, c.Start(context.Background(), StartRequest{Item: item("X", 0)}))
	require.Eventually(t, func() bool { return f.pollCount("S1") >= 2 }, time.Second, 2*time.Millisecond)

	c.End(context.Background())
	snap := c.Snapshot().Session
	assert.Empty(t, snap.ID)
	assert.Empty(t, snap.Locator)
	assert.Equal(t, core.StateEnded, snap.State)
	assert.Equal(t, []string{"S1"}, f.endCalls())
	_, _, stops := r.snapshot()
	assert.Equal(t, 1, stops)

	polls := f.pollCount("S1")
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, f.pollCount("S1"), polls+1, "at most one in-flight poll after end")
}

func TestEndFailureIsNotFatal(t *testing.T) {
	f := newFakeAPI()
	f.endFn = func(ctx context.Context, id string) error { return errors.New("connection reset") }
	c := newController(t, f, nil, Options{})
	require.NoError(t, c.Start(context.Background(), StartRequest{Item: item("X", 0)}))

	c.End(context.Background())
	snap := c.Snapshot()
	assert.Empty(t, snap.Session.ID)
	assert.Contains(t, snap.Debug, "connection reset")
}

func TestEndPreviousOnStart(t *testing.T) {
	f := newFakeAPI()
	c := newController(t, f, nil, Options{EndPreviousOnStart: true})

	require.NoError(t, c.Start(context.Background(), StartRequest{Item: item("A", 0)}))
	require.NoError(t, c.Start(context.Background(), StartRequest{Item: item("B", 0)}))

	f.mu.Lock()
	calls := append([]string(nil), f.calls...)
	f.mu.Unlock()
	assert.Equal(t, []string{"start", "end:S1", "start"}, calls)
}

func TestCloseEndsWithoutBlocking(t *testing.T) {
	f := newFakeAPI()
	block := make(chan struct{})
	defer close(block)
	f.endFn = func(ctx context.Context, id string) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}
	c := New(f, nil, Options{PollInterval: time.Hour}, zerolog.Nop())
	require.NoError(t, c.Start(context.Background(), StartRequest{Item: item("X", 0)}))

	ch, _ := c.Subscribe()

	start := time.Now()
	done := c.Close()
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	require.Eventually(t, func() bool { return len(f.endCalls()) == 1 }, time.Second, 2*time.Millisecond)

	select {
	case <-done:
		t.Fatal("done closed before the end request finished")
	default:
	}

	for range ch {
	}
	require.Error(t, c.Start(context.Background(), StartRequest{Item: item("Y", 0)}))
	assert.Equal(t, done, c.Close(), "repeat Close returns the same channel")
}

func TestCloseDoneWaitsForEnd(t *testing.T) {
	f := newFakeAPI()
	var finished sync.WaitGroup
	finished.Add(1)
	f.endFn = func(ctx context.Context, id string) error {
		defer finished.Done()
		time.Sleep(50 * time.Millisecond)
		return nil
	}
	c := New(f, nil, Options{PollInterval: time.Hour}, zerolog.Nop())
	require.NoError(t, c.Start(context.Background(), StartRequest{Item: item("X", 0)}))

	select {
	case <-c.Close():
	case <-time.After(shutdownEndTimeout + time.Second):
		t.Fatal("Close never finished")
	}
	finished.Wait()
	assert.Equal(t, []string{"S1"}, f.endCalls())
}

func TestCloseWithoutSessionIsDoneAtOnce(t *testing.T) {
	c := New(newFakeAPI(), nil, Options{PollInterval: time.Hour}, zerolog.Nop())
	select {
	case <-c.Close():
	default:
		t.Fatal("nothing to end, yet Close is not done")
	}
}

func TestCloseWithoutTokenSkipsEnd(t *testing.T) {
	f := newFakeAPI()
	c := New(f, nil, Options{PollInterval: time.Hour}, zerolog.Nop())
	require.NoError(t, c.Start(context.Background(), StartRequest{Item: item("X", 0)}))

	f.mu.Lock()
	f.token = ""
	f.mu.Unlock()
	c.Close()
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.endCalls())
}

func TestInvalidateDropsSession(t *testing.T) {
	f := newFakeAPI()
	r := &fakeRenderer{}
	c := newController(t, f, r, Options{SeekDebounce: 30 * time.Millisecond})
	require.NoError(t, c.Start(context.Background(), StartRequest{Item: item("X", 0)}))

	c.Seek(50)
	c.Invalidate("server changed")
	time.Sleep(80 * time.Millisecond)

	snap := c.Snapshot()
	assert.Equal(t, core.StateIdle, snap.Session.State)
	assert.Equal(t, "server changed", snap.Status)
	assert.Empty(t, f.seekCalls(), "pending seek is cancelled")
	assert.Empty(t, f.endCalls())
	_, _, stops := r.snapshot()
	assert.Equal(t, 1, stops)
}
