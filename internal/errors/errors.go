package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error types for common failure scenarios.
var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrTokenExpired       = errors.New("token expired")
	ErrNoServer           = errors.New("no server selected")
	ErrServerUnreachable  = errors.New("server unreachable")
	ErrSessionNotFound    = errors.New("session not found")
	ErrNoSession          = errors.New("no active session")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrNoControls         = errors.New("backend has no player controls")
	ErrPlayerNotRunning   = errors.New("player not running")
	ErrRateLimited        = errors.New("rate limited")
	ErrNetworkError       = errors.New("network error")
	ErrTimeout            = errors.New("request timeout")
	ErrConfigNotFound     = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrSuperseded         = errors.New("superseded by a newer request")
)

// ElixirError wraps an error with a user-friendly suggestion.
type ElixirError struct {
	Err        error
	Suggestion string
}

func (e *ElixirError) Error() string {
	return e.Err.Error()
}

func (e *ElixirError) Unwrap() error {
	return e.Err
}

// WithSuggestion wraps an error with a helpful suggestion.
func WithSuggestion(err error, suggestion string) error {
	return &ElixirError{
		Err:        err,
		Suggestion: suggestion,
	}
}

// StatusCoder is implemented by HTTP-level errors that carry a status code
// and the server's failure detail.
type StatusCoder interface {
	error
	HTTPStatus() int
	FailureDetail() string
}

// GetSuggestion returns a suggestion for the given error.
func GetSuggestion(err error) string {
	if err == nil {
		return ""
	}

	var elixirErr *ElixirError
	if errors.As(err, &elixirErr) && elixirErr.Suggestion != "" {
		return elixirErr.Suggestion
	}

	errStr := strings.ToLower(err.Error())
	status := 0
	var sc StatusCoder
	if errors.As(err, &sc) {
		status = sc.HTTPStatus()
	}

	// Authentication errors
	if errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrTokenExpired) ||
		status == 401 || status == 403 ||
		strings.Contains(errStr, "not authenticated") || strings.Contains(errStr, "token expired") {
		return "Run 'elixir auth login' to authenticate with this server"
	}

	if errors.Is(err, ErrNoServer) {
		return "Run 'elixir servers' to find a server, then 'elixir servers use <address>'"
	}

	if errors.Is(err, ErrServerUnreachable) {
		return "Run 'elixir servers probe <address>' to check that the server is up"
	}

	if errors.Is(err, ErrSessionNotFound) || status == 404 && strings.Contains(errStr, "session") {
		return "The session has ended on the server. Start playback again"
	}

	if errors.Is(err, ErrNoControls) || errors.Is(err, ErrPlayerNotRunning) {
		return "Pause and track controls need the embedded backend with something playing"
	}

	if errors.Is(err, ErrBackendUnavailable) {
		return "Run 'elixir backends' to see which players are installed"
	}

	// Rate limiting
	if errors.Is(err, ErrRateLimited) || status == 429 || strings.Contains(errStr, "rate limit") {
		return "Too many requests. Wait a moment and try again"
	}

	// Network errors
	if errors.Is(err, ErrNetworkError) || errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(errStr, "network") || strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Check that the server address is reachable and try again"
	}

	// Config errors
	if errors.Is(err, ErrConfigNotFound) || errors.Is(err, ErrInvalidConfig) {
		return "Run 'elixir config init' to create a configuration file"
	}

	// Server errors
	if status >= 500 {
		return "The media server is having issues. Try again in a moment"
	}

	return ""
}

// Format returns a formatted error message with suggestion if available.
func Format(err error) string {
	if err == nil {
		return ""
	}

	suggestion := GetSuggestion(err)
	if suggestion != "" {
		return fmt.Sprintf("Error: %s\n\nSuggestion: %s", err.Error(), suggestion)
	}

	return fmt.Sprintf("Error: %s", err.Error())
}

// Status converts any error into the single user-visible status line and a
// lower-priority debug string. A nil error yields two empty strings.
func Status(action string, err error) (status, debug string) {
	if err == nil {
		return "", ""
	}

	debug = err.Error()
	var sc StatusCoder
	switch {
	case errors.Is(err, ErrSuperseded), errors.Is(err, context.Canceled):
		return "", debug
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		status = "timed out"
	case errors.As(err, &sc):
		status = sc.FailureDetail()
		if sc.HTTPStatus() == 401 || sc.HTTPStatus() == 403 {
			status = "authentication failed: " + status
		}
	default:
		status = err.Error()
	}

	if action != "" {
		status = action + ": " + status
	}
	return status, debug
}

// PartialResult represents a result that may have partial failures.
type PartialResult[T any] struct {
	Data   T
	Errors []error
}

// HasErrors returns true if there were any errors.
func (p *PartialResult[T]) HasErrors() bool {
	return len(p.Errors) > 0
}

// AddError adds an error to the partial result.
func (p *PartialResult[T]) AddError(err error) {
	if err != nil {
		p.Errors = append(p.Errors, err)
	}
}

// ErrorSummary returns a summary of all errors.
func (p *PartialResult[T]) ErrorSummary() string {
	if len(p.Errors) == 0 {
		return ""
	}
	if len(p.Errors) == 1 {
		return p.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(p.Errors)))
	for i, err := range p.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}
