package tail

import (
	"context"
	"time"

	"github.com/tessro/elixir/internal/core"
	"github.com/tessro/elixir/internal/session"
)

// EventType represents the type of session event.
type EventType int

const (
	EventSessionStart EventType = iota
	EventStateChange
	EventSeek
	EventError
	EventErrorCleared
	EventModeChange
	EventSessionEnd
)

// Event represents a session change.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Previous  *session.Snapshot
	Current   *session.Snapshot
}

// Source publishes controller snapshots.
type Source interface {
	Subscribe() (<-chan session.Snapshot, func())
}

// Watcher turns a stream of controller snapshots into events.
type Watcher struct {
	source Source
	events chan Event
	done   chan struct{}
	now    func() time.Time
}

// NewWatcher creates a new session watcher.
func NewWatcher(source Source) *Watcher {
	return &Watcher{
		source: source,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
		now:    time.Now,
	}
}

// Events returns the channel of session events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start consumes snapshots until ctx is done, Stop is called, or the
// source closes its channel.
func (w *Watcher) Start(ctx context.Context) error {
	snapshots, unsubscribe := w.source.Subscribe()
	defer unsubscribe()
	defer close(w.events)

	var prev *session.Snapshot
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			curr := snap
			for _, e := range diffSnapshots(prev, &curr, w.now()) {
				select {
				case w.events <- e:
				default:
					// Drop event if channel is full
				}
			}
			prev = &curr
		}
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.done)
}

// diffSnapshots compares two snapshots and returns detected events.
func diffSnapshots(prev, curr *session.Snapshot, now time.Time) []Event {
	if curr == nil {
		return nil
	}
	ev := func(t EventType) Event {
		return Event{Type: t, Timestamp: now, Previous: prev, Current: curr}
	}

	// First snapshot
	if prev == nil {
		if curr.Session.HasSession() {
			return []Event{ev(EventSessionStart)}
		}
		return nil
	}

	p, c := prev.Session, curr.Session
	var events []Event

	if p.ID != c.ID {
		if p.ID != "" {
			events = append(events, ev(EventSessionEnd))
		}
		if c.ID != "" {
			events = append(events, ev(EventSessionStart))
		}
		if c.ID == "" && errorRaised(prev, curr) {
			events = append(events, ev(EventError))
		}
		return events
	}

	if c.State != p.State && c.State != core.StateSeeking && p.State != core.StateSeeking &&
		c.State != core.StateError && p.State != core.StateError {
		events = append(events, ev(EventStateChange))
	}

	// A cache-busted locator within one session means a seek landed.
	if c.ID != "" && p.Locator != "" && c.Locator != p.Locator {
		events = append(events, ev(EventSeek))
	}

	if c.Mode != p.Mode && p.Mode != "" && c.Mode != "" {
		events = append(events, ev(EventModeChange))
	}

	switch {
	case errorRaised(prev, curr):
		events = append(events, ev(EventError))
	case p.Error != "" && c.Error == "":
		events = append(events, ev(EventErrorCleared))
	}

	return events
}

// errorRaised reports a new session error or a new status message.
func errorRaised(prev, curr *session.Snapshot) bool {
	if curr.Session.Error != "" && curr.Session.Error != prev.Session.Error {
		return true
	}
	return curr.Status != "" && curr.Status != prev.Status
}
