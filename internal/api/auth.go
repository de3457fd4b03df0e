package api

import (
	"context"
	"fmt"
)

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthTokens, error) {
	var out AuthTokens
	if err := c.Post(ctx, "/api/v1/auth/login", credentials{Email: email, Password: password}, &out); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &out, nil
}

// Signup creates an account and authenticates.
func (c *Client) Signup(ctx context.Context, email, password string) (*AuthTokens, error) {
	var out AuthTokens
	if err := c.Post(ctx, "/api/v1/auth/signup", credentials{Email: email, Password: password}, &out); err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}
	return &out, nil
}

// StartReset begins a password reset for email.
func (c *Client) StartReset(ctx context.Context, email string) (*ResetTicket, error) {
	var out ResetTicket
	if err := c.Post(ctx, "/api/v1/auth/reset/start", resetStartRequest{Email: email}, &out); err != nil {
		return nil, fmt.Errorf("reset start: %w", err)
	}
	return &out, nil
}

// CompleteReset sets a new password using a reset token.
func (c *Client) CompleteReset(ctx context.Context, token, newPassword string) error {
	if err := c.Post(ctx, "/api/v1/auth/reset/complete", resetCompleteRequest{Token: token, NewPassword: newPassword}, nil); err != nil {
		return fmt.Errorf("reset complete: %w", err)
	}
	return nil
}
