package api

import (
	"context"
	"fmt"
	"net/url"
)

// StartPlayback creates a playback session. Configured capabilities are
// attached when the request carries none.
func (c *Client) StartPlayback(ctx context.Context, req PlayRequest) (*PlayResponse, error) {
	if req.ClientCapabilities == nil {
		c.mu.RLock()
		req.ClientCapabilities = c.capabilities
		c.mu.RUnlock()
	}
	var out PlayResponse
	if err := c.Post(ctx, "/api/v1/play", req, &out); err != nil {
		return nil, fmt.Errorf("start playback: %w", err)
	}
	return &out, nil
}

// PollSession returns the current status of a session.
func (c *Client) PollSession(ctx context.Context, id string) (*SessionPoll, error) {
	var out SessionPoll
	if err := c.Get(ctx, sessionPath(id, "poll"), &out); err != nil {
		return nil, fmt.Errorf("poll session: %w", err)
	}
	return &out, nil
}

// SeekSession moves a session to an absolute position in seconds.
func (c *Client) SeekSession(ctx context.Context, id string, position float64) error {
	if err := c.Post(ctx, sessionPath(id, "seek"), seekRequest{PositionSeconds: position}, nil); err != nil {
		return fmt.Errorf("seek session: %w", err)
	}
	return nil
}

// EndSession ends a session.
func (c *Client) EndSession(ctx context.Context, id string) error {
	if err := c.Post(ctx, sessionPath(id, "end"), nil, nil); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

func sessionPath(id, action string) string {
	return "/api/v1/sessions/" + url.PathEscape(id) + "/" + action
}
