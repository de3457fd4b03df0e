package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/tessro/elixir/internal/core"
	"github.com/tessro/elixir/internal/tui/styles"
)

// Detail displays metadata and files for the highlighted library item.
type Detail struct{}

// NewDetail creates a new Detail component
func NewDetail() *Detail {
	return &Detail{}
}

// Render renders the detail panel. loading is shown while a fetch is in flight.
func (d *Detail) Render(detail *core.LibraryDetail, loading bool, width, height int) string {
	title := styles.PanelTitle("Details", false)

	var content string
	switch {
	case detail == nil && loading:
		content = styles.Muted.Render("Loading...")
	case detail == nil:
		content = styles.Muted.Render("Select an item")
	default:
		content = d.renderDetail(detail, width-4, height-4)
	}

	return styles.Panel(false).
		Width(width).
		Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, "", content))
}

func (d *Detail) renderDetail(detail *core.LibraryDetail, width, maxLines int) string {
	lines := []string{styles.Title.Render(styles.Truncate(detail.DisplayTitle(), width))}

	meta := detail.Type
	if detail.RuntimeSeconds != nil {
		meta += " · " + formatClock(*detail.RuntimeSeconds)
	}
	if len(detail.Genres) > 0 {
		meta += " · " + strings.Join(detail.Genres, ", ")
	}
	lines = append(lines, styles.Subtitle.Render(styles.Truncate(meta, width)))

	if detail.Description != "" {
		lines = append(lines, "", styles.Muted.Render(styles.Truncate(detail.Description, width*2)))
	}

	if len(detail.Files) > 0 {
		lines = append(lines, "", styles.Label.Render("Files"))
	}
	for _, f := range detail.Files {
		codecs := strings.Trim(strings.Join([]string{f.Container, f.VideoCodec, f.AudioCodec}, "/"), "/")
		line := fmt.Sprintf("  %s %s", styles.Truncate(f.ID, 12), styles.Dim.Render(codecs))
		if f.SizeBytes > 0 {
			line += " " + humanize.IBytes(uint64(f.SizeBytes))
		}
		lines = append(lines, line)
	}

	if len(lines) > maxLines && maxLines > 0 {
		lines = lines[:maxLines]
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
