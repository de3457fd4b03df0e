package core

// SessionState is the controller-side lifecycle state of a playback session.
type SessionState string

const (
	StateIdle     SessionState = "idle"
	StateStarting SessionState = "starting"
	StateActive   SessionState = "active"
	StateSeeking  SessionState = "seeking"
	StateError    SessionState = "error"
	StateEnded    SessionState = "ended"
)

// PlaybackMode is how the server delivers the stream.
type PlaybackMode string

const (
	ModeDirect    PlaybackMode = "direct_play"
	ModeTranscode PlaybackMode = "transcode"
)

// PlaybackSession is the local view of one server-side playback session.
type PlaybackSession struct {
	ID       string       `json:"session_id"`
	ItemID   string       `json:"media_item_id"`
	FileID   string       `json:"media_file_id,omitempty"`
	ServerID string       `json:"server_id,omitempty"`
	Title    string       `json:"title,omitempty"`
	Mode     PlaybackMode `json:"mode"`
	Locator  string       `json:"stream_url"`
	State    SessionState `json:"state"`
	// RemoteState is the server's own state string from the last poll.
	RemoteState string   `json:"remote_state,omitempty"`
	Position    float64  `json:"logical_position_seconds"`
	Duration    *float64 `json:"duration_seconds,omitempty"`
	Error       string   `json:"error,omitempty"`
	LogPath     string   `json:"log_path,omitempty"`
}

// HasSession reports whether s refers to a live session.
func (s *PlaybackSession) HasSession() bool {
	return s != nil && s.ID != ""
}

// ProgressPercent returns playback progress as a percentage (0-100).
func (s *PlaybackSession) ProgressPercent() float64 {
	if s == nil || s.Duration == nil || *s.Duration <= 0 {
		return 0
	}
	p := s.Position / *s.Duration * 100
	if p > 100 {
		return 100
	}
	return p
}
