package backend

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess stands in for the player binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("ELIXIR_WANT_HELPER_PROCESS") != "1" {
		return
	}
	time.Sleep(30 * time.Second)
	os.Exit(0)
}

type recordedCommand struct {
	mu   sync.Mutex
	runs [][]string
}

func (r *recordedCommand) command(name string, args ...string) *exec.Cmd {
	r.mu.Lock()
	r.runs = append(r.runs, append([]string{name}, args...))
	r.mu.Unlock()

	cmd := exec.Command(os.Args[0], "-test.run=TestHelperProcess")
	cmd.Env = append(os.Environ(), "ELIXIR_WANT_HELPER_PROCESS=1")
	return cmd
}

func newTestExternal(found map[string]string) (*External, *recordedCommand) {
	rec := &recordedCommand{}
	e := NewExternal(nil, zerolog.Nop())
	e.lookPath = func(name string) (string, error) {
		if p, ok := found[name]; ok {
			return p, nil
		}
		return "", errors.New("not found")
	}
	e.command = rec.command
	return e, rec
}

func TestExternalAvailability(t *testing.T) {
	e, _ := newTestExternal(nil)
	assert.False(t, e.Available(context.Background()))
	require.Error(t, e.Play(context.Background(), "http://srv/stream/S1"))

	e, _ = newTestExternal(map[string]string{"cvlc": "/usr/bin/cvlc"})
	assert.True(t, e.Available(context.Background()))
}

func TestExternalPlayReplacesRunningPlayer(t *testing.T) {
	ctx := context.Background()
	e, rec := newTestExternal(map[string]string{"vlc": "/usr/bin/vlc", "cvlc": "/usr/bin/cvlc"})

	require.NoError(t, e.Play(ctx, "http://srv/stream/S1?token=T"))
	assert.True(t, e.Running())
	first := e.cmd

	require.NoError(t, e.Play(ctx, "http://srv/stream/S1?token=T&ts=2"))
	assert.True(t, e.Running())
	assert.NotNil(t, first.ProcessState, "previous player was reaped")

	require.NoError(t, e.Stop(ctx))
	assert.False(t, e.Running())
	require.NoError(t, e.Stop(ctx))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, [][]string{
		{"/usr/bin/vlc", "--play-and-exit", "--no-video-title-show", "http://srv/stream/S1?token=T"},
		{"/usr/bin/vlc", "--play-and-exit", "--no-video-title-show", "http://srv/stream/S1?token=T&ts=2"},
	}, rec.runs)
}
