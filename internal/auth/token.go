package auth

import (
	"fmt"
	"time"
)

// Token is a bearer token issued by a media server.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// ParseToken builds a Token from the server's auth response fields.
// An empty expiry means the server did not declare one.
func ParseToken(accessToken, tokenType, expiresAt string) (*Token, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("empty access token")
	}
	t := &Token{AccessToken: accessToken, TokenType: tokenType}
	if expiresAt != "" {
		at, err := time.Parse(time.RFC3339, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("invalid access_expires_at %q: %w", expiresAt, err)
		}
		t.ExpiresAt = at
	}
	return t, nil
}

// IsExpired returns true if the token has expired or will expire within the buffer.
// A token without an expiry never expires locally.
func (t *Token) IsExpired() bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	// Consider token expired 60 seconds before actual expiry
	return time.Now().Add(60 * time.Second).After(t.ExpiresAt)
}

// Valid reports whether t is usable for a request.
func (t *Token) Valid() bool {
	return t != nil && t.AccessToken != "" && !t.IsExpired()
}
