package tail

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/tessro/elixir/internal/core"
	"github.com/tessro/elixir/internal/session"
)

// Formatter formats events for output.
type Formatter struct {
	showEmoji     bool
	showTimestamp bool
	template      *template.Template
}

// FormatterOption configures a Formatter.
type FormatterOption func(*Formatter)

// WithEmoji enables emoji output.
func WithEmoji(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.showEmoji = enabled
	}
}

// WithTimestamp enables timestamp output.
func WithTimestamp(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.showTimestamp = enabled
	}
}

// WithTemplate sets a custom format template.
func WithTemplate(tmpl string) FormatterOption {
	return func(f *Formatter) {
		if tmpl != "" {
			t, err := template.New("format").Parse(tmpl)
			if err == nil {
				f.template = t
			}
		}
	}
}

// NewFormatter creates a new formatter with the given options.
func NewFormatter(opts ...FormatterOption) *Formatter {
	f := &Formatter{
		showEmoji:     true,
		showTimestamp: false,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format formats an event as a string.
func (f *Formatter) Format(e Event) string {
	if f.template != nil {
		return f.formatTemplate(e)
	}
	return f.formatLine(e)
}

func (f *Formatter) formatLine(e Event) string {
	var parts []string
	if f.showTimestamp {
		parts = append(parts, e.Timestamp.Format("15:04:05"))
	}
	if f.showEmoji {
		parts = append(parts, eventEmoji(e.Type))
	}
	parts = append(parts, f.eventDescription(e))
	return strings.Join(parts, " ")
}

func (f *Formatter) formatTemplate(e Event) string {
	data := templateData{
		Type:      EventTypeName(e.Type),
		Emoji:     eventEmoji(e.Type),
		Timestamp: e.Timestamp,
		Time:      e.Timestamp.Format("15:04:05"),
	}

	if e.Current != nil {
		s := e.Current.Session
		data.SessionID = s.ID
		data.Title = s.Title
		data.State = string(s.State)
		data.Mode = string(s.Mode)
		data.Position = Clock(s.Position)
		if s.Duration != nil {
			data.Duration = Clock(*s.Duration)
		}
		data.Error = errorText(e.Current)
	}

	var buf bytes.Buffer
	if err := f.template.Execute(&buf, data); err != nil {
		return f.formatLine(e)
	}
	return buf.String()
}

type templateData struct {
	Type      string
	Emoji     string
	Timestamp time.Time
	Time      string
	SessionID string
	Title     string
	State     string
	Mode      string
	Position  string
	Duration  string
	Error     string
}

// eventDescription returns a human-readable description of the event.
func (f *Formatter) eventDescription(e Event) string {
	var curr, prev core.PlaybackSession
	if e.Current != nil {
		curr = e.Current.Session
	}
	if e.Previous != nil {
		prev = e.Previous.Session
	}

	switch e.Type {
	case EventSessionStart:
		if curr.Title != "" {
			return fmt.Sprintf("Playing: %s (%s)", curr.Title, modeName(curr.Mode))
		}
		return "Session started"

	case EventStateChange:
		return fmt.Sprintf("State: %s → %s", prev.State, curr.State)

	case EventSeek:
		if curr.Duration != nil {
			return fmt.Sprintf("Seeked to %s / %s", Clock(curr.Position), Clock(*curr.Duration))
		}
		return fmt.Sprintf("Seeked to %s", Clock(curr.Position))

	case EventError:
		return "Error: " + errorText(e.Current)

	case EventErrorCleared:
		return "Recovered"

	case EventModeChange:
		return fmt.Sprintf("Mode: %s", modeName(curr.Mode))

	case EventSessionEnd:
		if prev.Title != "" {
			return fmt.Sprintf("Ended: %s", prev.Title)
		}
		return "Session ended"

	default:
		return "Unknown event"
	}
}

func errorText(s *session.Snapshot) string {
	if s == nil {
		return ""
	}
	if s.Session.Error != "" {
		return s.Session.Error
	}
	return s.Status
}

func modeName(m core.PlaybackMode) string {
	switch m {
	case core.ModeDirect:
		return "direct play"
	case core.ModeTranscode:
		return "transcode"
	default:
		return string(m)
	}
}

// Clock formats seconds as m:ss, or h:mm:ss past an hour.
func Clock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func eventEmoji(t EventType) string {
	switch t {
	case EventSessionStart:
		return "🎬"
	case EventStateChange:
		return "🔄"
	case EventSeek:
		return "⏩"
	case EventError:
		return "⚠️"
	case EventErrorCleared:
		return "✅"
	case EventModeChange:
		return "🎞️"
	case EventSessionEnd:
		return "⏹️"
	default:
		return "❓"
	}
}

// EventTypeName returns the snake_case name of the event type.
func EventTypeName(t EventType) string {
	switch t {
	case EventSessionStart:
		return "session_start"
	case EventStateChange:
		return "state_change"
	case EventSeek:
		return "seek"
	case EventError:
		return "error"
	case EventErrorCleared:
		return "error_cleared"
	case EventModeChange:
		return "mode_change"
	case EventSessionEnd:
		return "session_end"
	default:
		return "unknown"
	}
}
