package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/tessro/elixir/internal/core"
	"github.com/tessro/elixir/internal/tui/styles"
)

// NowPlayingState is everything the now-playing panel shows.
type NowPlayingState struct {
	Session core.PlaybackSession
	Status  string
	Backend string
	Overlay bool
	Paused  bool
	// Track is the last track switch, e.g. "audio 2: jpn".
	Track string
	// Stream summarizes the in-process copy.
	Stream string
}

// NowPlaying displays the current playback session
type NowPlaying struct{}

// NewNowPlaying creates a new NowPlaying component
func NewNowPlaying() *NowPlaying {
	return &NowPlaying{}
}

// Render renders the now playing panel
func (n *NowPlaying) Render(state NowPlayingState, width, height int, focused bool) string {
	title := styles.PanelTitle("Now Playing", focused)

	var content string
	if !state.Session.HasSession() {
		content = styles.Muted.Render("Nothing playing")
	} else {
		content = n.renderSession(state, width-4)
	}

	footer := n.renderFooter(state)

	return styles.Panel(focused).
		Width(width).
		Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, "", content, "", footer))
}

func (n *NowPlaying) renderSession(state NowPlayingState, width int) string {
	s := state.Session

	icon := styles.StateIcon(string(s.State))
	name := s.Title
	if name == "" {
		name = s.ItemID
	}
	title := styles.Title.Render(styles.Truncate(name, width-4))

	mode := styles.Subtitle.Render(fmt.Sprintf("%s · %s", s.Mode, s.State))

	progressWidth := width - 16
	if progressWidth < 10 {
		progressWidth = 10
	}
	total := "--:--"
	if s.Duration != nil {
		total = formatClock(*s.Duration)
	}
	progress := fmt.Sprintf("%s %s %s", formatClock(s.Position), styles.ProgressBar(s.ProgressPercent(), progressWidth), total)

	lines := []string{icon + " " + title, "  " + mode, "", progress}
	if s.Error != "" {
		lines = append(lines, "", styles.Failed.Render(styles.Truncate(s.Error, width)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (n *NowPlaying) renderFooter(state NowPlayingState) string {
	backend := state.Backend
	if backend == "" {
		backend = "none"
	}
	line := styles.Label.Render("backend ") + styles.Highlight.Render(backend)
	if state.Paused {
		line += styles.Paused.Render("  paused")
	}
	if state.Overlay {
		line += styles.Label.Render("  overlay on")
	}
	if state.Stream != "" {
		line = lipgloss.JoinVertical(lipgloss.Left, line, styles.Label.Render(state.Stream))
	}
	if state.Track != "" {
		line = lipgloss.JoinVertical(lipgloss.Left, line, styles.Label.Render(state.Track))
	}
	if state.Status != "" {
		line = lipgloss.JoinVertical(lipgloss.Left, line, styles.Paused.Render(state.Status))
	}
	return line
}

func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
