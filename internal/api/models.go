package api

import "github.com/tessro/elixir/internal/core"

// AuthTokens is returned by login and signup.
type AuthTokens struct {
	AccessToken     string `json:"access_token"`
	AccessExpiresAt string `json:"access_expires_at"`
	TokenType       string `json:"token_type"`
}

// ResetTicket is returned when a password reset starts.
type ResetTicket struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetStartRequest struct {
	Email string `json:"email"`
}

type resetCompleteRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// PlayRequest starts playback of a library item.
type PlayRequest struct {
	MediaItemID        string                   `json:"media_item_id"`
	PreferredFileID    *string                  `json:"preferred_file_id"`
	NetworkType        string                   `json:"network_type,omitempty"`
	ClientCapabilities *core.ClientCapabilities `json:"client_capabilities,omitempty"`
}

// PlayResponse describes a newly created session.
type PlayResponse struct {
	SessionID              string            `json:"session_id"`
	Mode                   core.PlaybackMode `json:"mode"`
	StreamURL              string            `json:"stream_url"`
	DurationSeconds        *float64          `json:"duration_seconds"`
	LogicalStartSeconds    float64           `json:"logical_start_seconds"`
	MediaFileID            string            `json:"media_file_id"`
	ServerID               string            `json:"server_id"`
	State                  string            `json:"state"`
	LogicalPositionSeconds float64           `json:"logical_position_seconds"`
}

// SessionPoll is the periodic status of a session.
type SessionPoll struct {
	ID                     string            `json:"id"`
	State                  string            `json:"state"`
	Mode                   core.PlaybackMode `json:"mode"`
	LogicalPositionSeconds float64           `json:"logical_position_seconds"`
	DurationSeconds        *float64          `json:"duration_seconds"`
	LogPath                string            `json:"log_path"`
	Error                  string            `json:"error"`
}

type seekRequest struct {
	PositionSeconds float64 `json:"position_seconds"`
}
