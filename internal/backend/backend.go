// Package backend owns the rendering backends and guarantees that at most
// one of them is playing at any time.
package backend

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Kind names a rendering backend.
type Kind string

const (
	KindNone     Kind = "none"
	KindStream   Kind = "stream"
	KindExternal Kind = "external"
	KindEmbedded Kind = "embedded"
)

// Kinds lists every backend kind in display order.
func Kinds() []Kind {
	return []Kind{KindNone, KindStream, KindExternal, KindEmbedded}
}

// ParseKind accepts a kind name or its index in Kinds ("0".."3").
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, k := range Kinds() {
		if s == string(k) || s == fmt.Sprint(i) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown backend %q (want none, stream, external, or embedded)", s)
}

// Backend renders a stream locator.
type Backend interface {
	Kind() Kind
	Available(ctx context.Context) bool
	Play(ctx context.Context, locator string) error
	// Stop is idempotent.
	Stop(ctx context.Context) error
}

// Pinger is implemented by backends that must prove they are responsive
// before they can be selected.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Overlayer is implemented by backends that can float above other windows.
type Overlayer interface {
	SetOverlay(ctx context.Context, on bool) error
}

// Runner is implemented by backends that hand playback to a separate
// process, which can go away on its own.
type Runner interface {
	Running() bool
}

// Transfer describes an in-process stream copy.
type Transfer struct {
	Buffered time.Duration
	Bytes    int64
}

// Reporter is implemented by backends that copy the stream themselves.
type Reporter interface {
	Transfer() Transfer
}

type closer interface {
	Close(ctx context.Context) error
}

// Track types as the player reports them.
const (
	TrackAudio    = "audio"
	TrackSubtitle = "sub"
)

// Track is one audio, video, or subtitle track of the loaded media.
type Track struct {
	ID       int    `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Lang     string `json:"lang,omitempty"`
	Codec    string `json:"codec,omitempty"`
	Selected bool   `json:"selected"`
}

// Label is a short display name for the track.
func (t Track) Label() string {
	switch {
	case t.ID <= 0:
		return "off"
	case t.Title != "" && t.Lang != "":
		return fmt.Sprintf("%d: %s (%s)", t.ID, t.Title, t.Lang)
	case t.Title != "":
		return fmt.Sprintf("%d: %s", t.ID, t.Title)
	case t.Lang != "":
		return fmt.Sprintf("%d: %s", t.ID, t.Lang)
	}
	return fmt.Sprint(t.ID)
}

// Controls is implemented by backends that own the player and can drive it
// directly: pause and track selection.
type Controls interface {
	// TogglePause flips the pause state and returns the new one.
	TogglePause(ctx context.Context) (bool, error)
	Tracks(ctx context.Context) ([]Track, error)
	SetAudioTrack(ctx context.Context, id int) error
	// SetSubtitleTrack turns subtitles off for id <= 0.
	SetSubtitleTrack(ctx context.Context, id int) error
}

// NextTrack picks the track after the selected one of type typ, wrapping
// around. Subtitles cycle through an "off" entry with ID 0.
func NextTrack(tracks []Track, typ string) (Track, bool) {
	var candidates []Track
	if typ == TrackSubtitle {
		candidates = append(candidates, Track{Type: TrackSubtitle})
	}
	current := 0
	for _, t := range tracks {
		if t.Type != typ {
			continue
		}
		candidates = append(candidates, t)
		if t.Selected {
			current = len(candidates) - 1
		}
	}
	if len(candidates) < 2 {
		return Track{}, false
	}
	return candidates[(current+1)%len(candidates)], true
}
