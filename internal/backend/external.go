package backend

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultExternalBinaries are tried in order when looking for an external
// player.
var DefaultExternalBinaries = []string{"vlc", "cvlc"}

// External hands the locator to a separate player process.
type External struct {
	binaries []string
	logger   zerolog.Logger

	lookPath func(string) (string, error)
	command  func(name string, args ...string) *exec.Cmd

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

// NewExternal creates an external backend trying binaries in order.
func NewExternal(binaries []string, logger zerolog.Logger) *External {
	if len(binaries) == 0 {
		binaries = DefaultExternalBinaries
	}
	return &External{
		binaries: binaries,
		logger:   logger,
		lookPath: exec.LookPath,
		command:  exec.Command,
	}
}

func (e *External) Kind() Kind { return KindExternal }

// Available reports whether any configured binary is on PATH.
func (e *External) Available(context.Context) bool {
	_, err := e.binary()
	return err == nil
}

// Play replaces any running player with a new one on locator.
func (e *External) Play(ctx context.Context, locator string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.killLocked()

	bin, err := e.binary()
	if err != nil {
		return err
	}
	cmd := e.command(bin, "--play-and-exit", "--no-video-title-show", locator)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", bin, err)
	}

	done := make(chan struct{})
	e.cmd, e.done = cmd, done
	e.logger.Info().Str("binary", bin).Int("pid", cmd.Process.Pid).Msg("external player started")

	go func() {
		err := cmd.Wait()
		e.logger.Debug().Err(err).Int("pid", cmd.Process.Pid).Msg("external player exited")
		close(done)
	}()
	return nil
}

// Stop kills the running player, if any.
func (e *External) Stop(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.killLocked()
	return nil
}

// Running reports whether a player process is alive.
func (e *External) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

func (e *External) killLocked() {
	if e.cmd == nil {
		return
	}
	select {
	case <-e.done:
	default:
		_ = e.cmd.Process.Kill()
		<-e.done
	}
	e.cmd, e.done = nil, nil
}

func (e *External) binary() (string, error) {
	for _, name := range e.binaries {
		if p, err := e.lookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("none of %v found on PATH", e.binaries)
}
