package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/tessro/elixir/internal/core"
	"github.com/tessro/elixir/internal/tui/styles"
)

// Library displays the library items of the current server.
type Library struct {
	offset   int
	selected int
}

// NewLibrary creates a new Library component
func NewLibrary() *Library {
	return &Library{}
}

// SelectNext moves the cursor down
func (l *Library) SelectNext(n int) {
	if l.selected < n-1 {
		l.selected++
	}
}

// SelectPrev moves the cursor up
func (l *Library) SelectPrev() {
	if l.selected > 0 {
		l.selected--
	}
}

// Reset moves the cursor back to the top.
func (l *Library) Reset() {
	l.selected = 0
	l.offset = 0
}

// Selected returns the selected index, clamped to n entries.
func (l *Library) Selected(n int) int {
	if l.selected >= n {
		l.selected = n - 1
	}
	if l.selected < 0 {
		l.selected = 0
	}
	return l.selected
}

// Render renders the library panel
func (l *Library) Render(items []core.LibraryItem, filter string, width, height int, focused bool) string {
	label := "Library"
	if filter != "" {
		label = fmt.Sprintf("Library /%s", filter)
	}
	title := styles.PanelTitle(label, focused)

	var content string
	if len(items) == 0 {
		content = styles.Muted.Render("No items")
	} else {
		content = l.renderItems(items, width-4, height-4, focused)
	}

	return styles.Panel(focused).
		Width(width).
		Height(height).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, "", content))
}

func (l *Library) renderItems(items []core.LibraryItem, width, maxLines int, focused bool) string {
	visible := maxLines - 1 // room for the "more" line
	if visible < 1 {
		visible = 1
	}

	sel := l.Selected(len(items))
	if sel < l.offset {
		l.offset = sel
	}
	if sel >= l.offset+visible {
		l.offset = sel - visible + 1
	}

	end := l.offset + visible
	if end > len(items) {
		end = len(items)
	}

	lines := make([]string, 0, end-l.offset+1)
	for i := l.offset; i < end; i++ {
		item := items[i]
		num := fmt.Sprintf("%3d.", i+1)
		kind := styles.Dim.Render(item.Type)
		title := styles.Truncate(item.DisplayTitle(), width-len(num)-len(item.Type)-4)

		var line string
		if focused && i == sel {
			line = styles.Selected.Render(fmt.Sprintf("%s %s", num, title)) + " " + kind
		} else {
			line = fmt.Sprintf("%s %s %s", styles.Dim.Render(num), title, kind)
		}
		lines = append(lines, line)
	}

	if end < len(items) {
		lines = append(lines, styles.Dim.Render(fmt.Sprintf("     ... and %d more", len(items)-end)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
