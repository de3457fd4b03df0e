package wizard

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/tessro/elixir/internal/core"
)

// Interactive provides interactive fallback functionality.
type Interactive struct {
	enabled    bool
	searchFunc SearchFunc
	servers    []core.ServerCandidate
	current    string
}

// NewInteractive creates a new interactive handler.
func NewInteractive() *Interactive {
	return &Interactive{
		enabled: true,
	}
}

// SetEnabled enables or disables interactive mode.
func (i *Interactive) SetEnabled(enabled bool) {
	i.enabled = enabled
}

// SetSearchFunc sets the search function for the library wizard.
func (i *Interactive) SetSearchFunc(fn SearchFunc) {
	i.searchFunc = fn
}

// SetServers sets the candidates for the server picker and the one in use.
func (i *Interactive) SetServers(servers []core.ServerCandidate, current string) {
	i.servers = servers
	i.current = current
}

// IsTerminal returns true if stdin and stdout are both terminals.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// CanInteract returns true if interactive mode is available.
func (i *Interactive) CanInteract() bool {
	return i.enabled && IsTerminal()
}

// PromptItem launches the library wizard if interactive mode is available.
// Returns the selected item, or nil if cancelled or not interactive.
func (i *Interactive) PromptItem() (*core.LibraryItem, error) {
	if !i.CanInteract() || i.searchFunc == nil {
		return nil, nil
	}
	return RunSearch(i.searchFunc)
}

// PromptServer launches the server picker if interactive mode is available.
// Returns the selected server, or nil if cancelled or not interactive.
func (i *Interactive) PromptServer() (*core.ServerCandidate, error) {
	if !i.CanInteract() || len(i.servers) == 0 {
		return nil, nil
	}
	return RunServerPicker(i.servers, i.current)
}

// Credentials are an email and password pair.
type Credentials struct {
	Email    string
	Password string
}

// NeedsCredentials reports whether either field is still missing.
func NeedsCredentials(c Credentials) bool {
	return strings.TrimSpace(c.Email) == "" || c.Password == ""
}

// PromptCredentials fills the missing fields of c with a form. With confirm
// set, the password must be typed twice.
func (i *Interactive) PromptCredentials(c *Credentials, title string, confirm bool) error {
	if !NeedsCredentials(*c) {
		return nil
	}
	if !i.CanInteract() {
		return errors.New("email and password are required (not a terminal)")
	}

	var again string
	fields := []huh.Field{
		huh.NewInput().
			Title("Email").
			Value(&c.Email).
			Validate(func(s string) error {
				if !strings.Contains(s, "@") {
					return errors.New("enter an email address")
				}
				return nil
			}),
		huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&c.Password).
			Validate(requireNonEmpty("password")),
	}
	if confirm {
		fields = append(fields, huh.NewInput().
			Title("Confirm password").
			EchoMode(huh.EchoModePassword).
			Value(&again).
			Validate(func(s string) error {
				if s != c.Password {
					return errors.New("passwords do not match")
				}
				return nil
			}))
	}

	form := huh.NewForm(huh.NewGroup(fields...).Title(title))
	if err := form.Run(); err != nil {
		return fmt.Errorf("cancelled: %w", err)
	}
	return nil
}

// PromptNewPassword asks for a new password twice.
func (i *Interactive) PromptNewPassword(password *string) error {
	if *password != "" {
		return nil
	}
	if !i.CanInteract() {
		return errors.New("new password is required (not a terminal)")
	}

	var again string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("New password").
			EchoMode(huh.EchoModePassword).
			Value(password).
			Validate(requireNonEmpty("password")),
		huh.NewInput().
			Title("Confirm new password").
			EchoMode(huh.EchoModePassword).
			Value(&again).
			Validate(func(s string) error {
				if s != *password {
					return errors.New("passwords do not match")
				}
				return nil
			}),
	))
	if err := form.Run(); err != nil {
		return fmt.Errorf("cancelled: %w", err)
	}
	return nil
}

// BackendOption is one entry in the backend picker.
type BackendOption struct {
	Kind      string
	Available bool
}

// PromptBackend asks which backend to use. Unavailable backends are listed
// but marked. Returns "" if not interactive.
func (i *Interactive) PromptBackend(options []BackendOption, current string) (string, error) {
	if !i.CanInteract() || len(options) == 0 {
		return "", nil
	}

	var opts []huh.Option[string]
	for _, o := range options {
		label := o.Kind
		if !o.Available {
			label += " (unavailable)"
		}
		opts = append(opts, huh.NewOption(label, o.Kind))
	}

	selected := current
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select playback backend").
				Description("Only one backend renders at a time").
				Options(opts...).
				Value(&selected),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("selection cancelled: %w", err)
	}
	return selected, nil
}

func requireNonEmpty(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}
