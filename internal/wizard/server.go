package wizard

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tessro/elixir/internal/core"
)

// ServerModel is the bubbletea model for the server picker.
type ServerModel struct {
	servers  []core.ServerCandidate
	current  string
	cursor   int
	selected *core.ServerCandidate
	width    int
	height   int
}

// Styles for server picker
var (
	serverTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205"))

	serverItemStyle = lipgloss.NewStyle().
			PaddingLeft(2)

	serverSelectedStyle = lipgloss.NewStyle().
				PaddingLeft(2).
				Background(lipgloss.Color("237"))

	serverCurrentStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("82"))

	serverDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

// NewServerModel creates a server picker. current is the URL in use, if any.
func NewServerModel(servers []core.ServerCandidate, current string) ServerModel {
	m := ServerModel{
		servers: servers,
		current: core.NormalizeEndpoint(current),
		width:   80,
		height:  20,
	}
	for i, s := range servers {
		if s.URL == m.current {
			m.cursor = i
			break
		}
	}
	return m
}

// Init initializes the model.
func (m ServerModel) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m ServerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			return m, tea.Quit

		case "enter", " ":
			if len(m.servers) > 0 && m.cursor < len(m.servers) {
				m.selected = &m.servers[m.cursor]
				return m, tea.Quit
			}

		case "up", "k", "ctrl+p":
			if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j", "ctrl+n":
			if m.cursor < len(m.servers)-1 {
				m.cursor++
			}

		case "home", "g":
			m.cursor = 0

		case "end", "G":
			if len(m.servers) > 0 {
				m.cursor = len(m.servers) - 1
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, nil
}

// View renders the model.
func (m ServerModel) View() string {
	var b strings.Builder

	b.WriteString(serverTitleStyle.Render("🖥  Select Server"))
	b.WriteString("\n\n")

	if len(m.servers) == 0 {
		b.WriteString(serverDimStyle.Render("No servers found"))
		b.WriteString("\n\n")
		b.WriteString(serverDimStyle.Render("Set server.url, or sign in so registered servers can be resolved."))
	} else {
		for i, s := range m.servers {
			var line strings.Builder

			if s.URL == m.current {
				line.WriteString(serverCurrentStyle.Render("● "))
			} else {
				line.WriteString(serverDimStyle.Render("○ "))
			}

			line.WriteString(s.Label)
			line.WriteString(" " + serverDimStyle.Render("("+s.URL+", "+SourceLabel(s)+")"))

			if i == m.cursor {
				b.WriteString(serverSelectedStyle.Render("▸ " + line.String()))
			} else {
				b.WriteString(serverItemStyle.Render("  " + line.String()))
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(serverDimStyle.Render("↑/↓ navigate • enter select • esc quit"))
	b.WriteString("\n")
	b.WriteString(serverDimStyle.Render("● in use  ○ available"))

	return b.String()
}

// Selected returns the selected server, or nil if none.
func (m ServerModel) Selected() *core.ServerCandidate {
	return m.selected
}

// SourceLabel describes where a candidate came from, e.g. "registry via lan".
func SourceLabel(s core.ServerCandidate) string {
	label := string(s.Source)
	if s.Via != "" {
		label += " via " + string(s.Via)
	}
	return label
}

// RunServerPicker runs the server picker and returns the selected server.
func RunServerPicker(servers []core.ServerCandidate, current string) (*core.ServerCandidate, error) {
	model := NewServerModel(servers, current)
	p := tea.NewProgram(model, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return nil, err
	}
	return finalModel.(ServerModel).Selected(), nil
}
