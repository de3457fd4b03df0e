package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	elixirerrors "github.com/tessro/elixir/internal/errors"
)

const (
	// DefaultEmbeddedBinary is the embedded player.
	DefaultEmbeddedBinary = "mpv"

	ipcTimeout     = 2 * time.Second
	dialRetryEvery = 50 * time.Millisecond
	launchWait     = 3 * time.Second
)

// Process is a launched player.
type Process interface {
	Kill() error
	Wait() error
}

type cmdProcess struct{ cmd *exec.Cmd }

func (p cmdProcess) Kill() error { return p.cmd.Process.Kill() }
func (p cmdProcess) Wait() error { return p.cmd.Wait() }

// EmbeddedConfig configures the embedded backend.
type EmbeddedConfig struct {
	Binary   string
	Socket   string
	WindowID string
}

// Embedded drives an mpv instance over its JSON IPC socket. The player is
// launched idle on the first Ping or Play and reused afterwards; once it
// exits, the next call launches a fresh one.
type Embedded struct {
	cfg    EmbeddedConfig
	logger zerolog.Logger

	lookPath func(string) (string, error)
	launch   func(binary string, args []string) (Process, error)
	dial     func(ctx context.Context, socket string) (net.Conn, error)

	mu     sync.Mutex
	proc   Process
	exited chan struct{}
	conn   net.Conn
	reader *bufio.Reader
	nextID int
}

// NewEmbedded creates an embedded backend. An empty socket path gets a
// per-process path in the temp directory.
func NewEmbedded(cfg EmbeddedConfig, logger zerolog.Logger) *Embedded {
	if cfg.Binary == "" {
		cfg.Binary = DefaultEmbeddedBinary
	}
	if cfg.Socket == "" {
		cfg.Socket = filepath.Join(os.TempDir(), fmt.Sprintf("elixir-mpv-%d.sock", os.Getpid()))
	}
	return &Embedded{
		cfg:      cfg,
		logger:   logger,
		lookPath: exec.LookPath,
		launch:   launchProcess,
		dial:     dialUnix,
	}
}

func (e *Embedded) Kind() Kind { return KindEmbedded }

// Socket is the IPC socket path.
func (e *Embedded) Socket() string { return e.cfg.Socket }

// Available reports whether the player binary is on PATH.
func (e *Embedded) Available(context.Context) bool {
	_, err := e.lookPath(e.cfg.Binary)
	return err == nil
}

// Ping launches the player if needed and asks whether it is idle. Any
// answer with "error":"success" counts as alive.
func (e *Embedded) Ping(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.connectLocked(ctx); err != nil {
		return err
	}
	_, err := e.commandLocked(ctx, "get_property", "idle-active")
	return err
}

// Play loads locator, replacing whatever is playing.
func (e *Embedded) Play(ctx context.Context, locator string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.connectLocked(ctx); err != nil {
		return err
	}
	if _, err := e.commandLocked(ctx, "set_property", "pause", false); err != nil {
		return err
	}
	_, err := e.commandLocked(ctx, "loadfile", locator, "replace")
	return err
}

// Stop stops playback but leaves the player running.
func (e *Embedded) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reapLocked()
	if e.conn == nil {
		return nil
	}
	_, err := e.commandLocked(ctx, "stop")
	return err
}

// SetOverlay keeps the player window above others.
func (e *Embedded) SetOverlay(ctx context.Context, on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reapLocked()
	if e.conn == nil {
		return nil
	}
	_, err := e.commandLocked(ctx, "set_property", "ontop", on)
	return err
}

// TogglePause flips pause and returns the state mpv reports afterwards.
func (e *Embedded) TogglePause(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.liveLocked(); err != nil {
		return false, err
	}
	if _, err := e.commandLocked(ctx, "cycle", "pause"); err != nil {
		return false, err
	}
	data, err := e.commandLocked(ctx, "get_property", "pause")
	if err != nil {
		return false, err
	}
	var paused bool
	if err := json.Unmarshal(data, &paused); err != nil {
		return false, fmt.Errorf("mpv pause: %w", err)
	}
	return paused, nil
}

// Tracks lists the tracks of the loaded file.
func (e *Embedded) Tracks(ctx context.Context) ([]Track, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.liveLocked(); err != nil {
		return nil, err
	}
	data, err := e.commandLocked(ctx, "get_property", "track-list")
	if err != nil {
		return nil, err
	}
	var tracks []Track
	if err := json.Unmarshal(data, &tracks); err != nil {
		return nil, fmt.Errorf("mpv track-list: %w", err)
	}
	return tracks, nil
}

func (e *Embedded) SetAudioTrack(ctx context.Context, id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.liveLocked(); err != nil {
		return err
	}
	_, err := e.commandLocked(ctx, "set_property", "aid", id)
	return err
}

func (e *Embedded) SetSubtitleTrack(ctx context.Context, id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.liveLocked(); err != nil {
		return err
	}
	var value any = id
	if id <= 0 {
		value = "no"
	}
	_, err := e.commandLocked(ctx, "set_property", "sid", value)
	return err
}

// Close asks the player to quit and kills it.
func (e *Embedded) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn != nil {
		if _, err := e.commandLocked(ctx, "quit"); err != nil {
			e.logger.Debug().Err(err).Msg("mpv quit failed")
		}
		e.conn.Close()
		e.conn, e.reader = nil, nil
	}
	if e.proc != nil {
		_ = e.proc.Kill()
		select {
		case <-e.exited:
		case <-ctx.Done():
			e.logger.Warn().Msg("embedded player did not exit after kill")
		}
		e.proc, e.exited = nil, nil
	}
	return nil
}

// Running reports whether a launched player is still alive.
func (e *Embedded) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reapLocked()
	return e.proc != nil
}

// reapLocked forgets a player that has exited, along with its socket.
func (e *Embedded) reapLocked() {
	if e.exited == nil {
		return
	}
	select {
	case <-e.exited:
		e.logger.Info().Msg("embedded player exited")
		e.dropConnLocked()
		e.proc, e.exited = nil, nil
	default:
	}
}

// liveLocked fails unless a player is running and connected.
func (e *Embedded) liveLocked() error {
	e.reapLocked()
	if e.conn == nil {
		return elixirerrors.ErrPlayerNotRunning
	}
	return nil
}

func (e *Embedded) connectLocked(ctx context.Context) error {
	e.reapLocked()
	if e.conn != nil {
		return nil
	}

	if e.proc == nil {
		args := []string{"--idle=yes", "--input-ipc-server=" + e.cfg.Socket, "--force-window=yes"}
		if e.cfg.WindowID != "" {
			args = append(args, "--wid="+e.cfg.WindowID)
		}
		proc, err := e.launch(e.cfg.Binary, args)
		if err != nil {
			return fmt.Errorf("launch %s: %w", e.cfg.Binary, err)
		}
		exited := make(chan struct{})
		go func() {
			err := proc.Wait()
			e.logger.Debug().Err(err).Msg("embedded player process reaped")
			close(exited)
		}()
		e.proc, e.exited = proc, exited
		e.logger.Info().Str("socket", e.cfg.Socket).Msg("embedded player launched")
	}

	dialCtx, cancel := context.WithTimeout(ctx, launchWait)
	defer cancel()
	for {
		conn, err := e.dial(dialCtx, e.cfg.Socket)
		if err == nil {
			e.conn = conn
			e.reader = bufio.NewReader(conn)
			return nil
		}
		select {
		case <-dialCtx.Done():
			return fmt.Errorf("connect to %s: %w", e.cfg.Socket, err)
		case <-e.exited:
			e.proc, e.exited = nil, nil
			return fmt.Errorf("%s exited before its socket opened: %w", e.cfg.Binary, err)
		case <-time.After(dialRetryEvery):
		}
	}
}

type ipcRequest struct {
	Command   []any `json:"command"`
	RequestID int   `json:"request_id"`
}

type ipcResponse struct {
	RequestID *int            `json:"request_id"`
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data"`
	Event     string          `json:"event"`
}

// commandLocked sends one command and reads lines until its reply arrives.
// Event lines in between are skipped.
func (e *Embedded) commandLocked(ctx context.Context, args ...any) (json.RawMessage, error) {
	e.nextID++
	id := e.nextID

	deadline := time.Now().Add(ipcTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = e.conn.SetDeadline(deadline)

	line, err := json.Marshal(ipcRequest{Command: args, RequestID: id})
	if err != nil {
		return nil, err
	}
	if _, err := e.conn.Write(append(line, '\n')); err != nil {
		e.dropConnLocked()
		return nil, fmt.Errorf("mpv ipc write: %w", err)
	}

	for {
		raw, err := e.reader.ReadBytes('\n')
		if err != nil {
			e.dropConnLocked()
			return nil, fmt.Errorf("mpv ipc read: %w", err)
		}
		var resp ipcResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			continue
		}
		if resp.Event != "" || resp.RequestID == nil || *resp.RequestID != id {
			continue
		}
		if resp.Error != "success" {
			return nil, fmt.Errorf("mpv %v: %s", args[0], resp.Error)
		}
		return resp.Data, nil
	}
}

func (e *Embedded) dropConnLocked() {
	if e.conn != nil {
		e.conn.Close()
	}
	e.conn, e.reader = nil, nil
}

func launchProcess(binary string, args []string) (Process, error) {
	cmd := exec.Command(binary, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmdProcess{cmd: cmd}, nil
}

func dialUnix(ctx context.Context, socket string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return nil, opErr.Err
		}
		return nil, err
	}
	return conn, nil
}
