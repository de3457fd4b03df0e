package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/tessro/elixir/internal/core"
	"github.com/tessro/elixir/internal/tui/styles"
)

// Servers displays the merged server candidates.
type Servers struct {
	selected int
}

// NewServers creates a new Servers component
func NewServers() *Servers {
	return &Servers{}
}

// SelectNext selects the next server
func (s *Servers) SelectNext(n int) {
	if s.selected < n-1 {
		s.selected++
	}
}

// SelectPrev selects the previous server
func (s *Servers) SelectPrev() {
	if s.selected > 0 {
		s.selected--
	}
}

// Selected returns the selected index, clamped to n entries.
func (s *Servers) Selected(n int) int {
	if s.selected >= n {
		s.selected = n - 1
	}
	if s.selected < 0 {
		s.selected = 0
	}
	return s.selected
}

// Render renders the servers panel. current is the URL in use.
func (s *Servers) Render(servers []core.ServerCandidate, current string, width, height int, focused bool) string {
	title := styles.PanelTitle("Servers", focused)

	var content string
	if len(servers) == 0 {
		content = styles.Muted.Render("No servers found")
	} else {
		content = s.renderServers(servers, current, width-4, height-4, focused)
	}

	return styles.Panel(focused).
		Width(width).
		Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, "", content))
}

func (s *Servers) renderServers(servers []core.ServerCandidate, current string, width, maxLines int, focused bool) string {
	sel := s.Selected(len(servers))
	lines := make([]string, 0, len(servers))

	for i, c := range servers {
		selector := "  "
		if focused && i == sel {
			selector = "▸ "
		}

		active := ""
		if c.URL == current {
			active = styles.Playing.Render(" ●")
		}

		name := c.Label
		if name == "" {
			name = c.URL
		}
		name = styles.Truncate(name, width-8)
		if focused && i == sel {
			name = styles.Highlight.Render(name)
		}

		lines = append(lines, fmt.Sprintf("%s%s %s%s", selector, styles.SourceIcon(string(c.Source)), name, active))
		if c.Label != "" && c.Label != c.URL {
			lines = append(lines, "     "+styles.Dim.Render(styles.Truncate(c.URL, width-5)))
		}

		if len(lines) >= maxLines {
			break
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
