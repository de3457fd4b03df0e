package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tessro/elixir/internal/core"
)

const (
	// DefaultStateFileName is the default name for the state file.
	DefaultStateFileName = "state.json"
)

// ServerRecord is what the client remembers about one server.
type ServerRecord struct {
	Label       string `json:"label,omitempty"`
	Token       *Token `json:"token,omitempty"`
	Email       string `json:"email,omitempty"`
	NetworkType string `json:"network_type,omitempty"`
}

// State maps canonical server URLs to their records, plus the last used one.
type State struct {
	Servers  map[string]ServerRecord `json:"servers"`
	LastUsed string                  `json:"last_used,omitempty"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Servers: make(map[string]ServerRecord)}
}

// Remember stores rec under the canonical form of url and returns that key.
func (s *State) Remember(url string, rec ServerRecord) string {
	key := core.NormalizeEndpoint(url)
	if s.Servers == nil {
		s.Servers = make(map[string]ServerRecord)
	}
	s.Servers[key] = rec
	return key
}

// Lookup returns the record for url.
func (s *State) Lookup(url string) (ServerRecord, bool) {
	rec, ok := s.Servers[core.NormalizeEndpoint(url)]
	return rec, ok
}

// Select makes url the last used server and returns its saved token, if any.
// A nil token means the caller must drop whatever token it currently holds.
func (s *State) Select(url string) *Token {
	key := core.NormalizeEndpoint(url)
	s.LastUsed = key
	if rec, ok := s.Servers[key]; ok {
		return rec.Token
	}
	return nil
}

// SetToken records a token and the email it was issued to.
func (s *State) SetToken(url string, token *Token, email string) {
	rec, _ := s.Lookup(url)
	rec.Token = token
	if email != "" {
		rec.Email = email
	}
	s.Remember(url, rec)
}

// ClearToken drops the token for url but keeps the rest of the record.
func (s *State) ClearToken(url string) {
	rec, ok := s.Lookup(url)
	if !ok {
		return
	}
	rec.Token = nil
	s.Remember(url, rec)
}

// Forget removes url entirely.
func (s *State) Forget(url string) {
	key := core.NormalizeEndpoint(url)
	delete(s.Servers, key)
	if s.LastUsed == key {
		s.LastUsed = ""
	}
}

// URLs returns the remembered server URLs in sorted order.
func (s *State) URLs() []string {
	urls := make([]string, 0, len(s.Servers))
	for u := range s.Servers {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// Store handles persisting client state to disk.
type Store struct {
	path string
}

// NewStore creates a state store at the specified path.
// If path is empty, uses the default location (~/.config/elixir/state.json).
func NewStore(path string) (*Store, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		path = filepath.Join(configDir, "elixir", DefaultStateFileName)
	}

	return &Store{path: path}, nil
}

// Save persists state to disk.
func (s *Store) Save(state *State) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Tokens live here, so owner only.
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

// Load reads state from disk. A missing file yields an empty state. Entries
// whose key is not a valid server URL are dropped.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var raw State
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	state := NewState()
	for url, rec := range raw.Servers {
		key := core.NormalizeEndpoint(url)
		if !core.ValidBaseURL(key) {
			continue
		}
		state.Servers[key] = rec
	}
	if last := core.NormalizeEndpoint(raw.LastUsed); last != "" {
		if _, ok := state.Servers[last]; ok {
			state.LastUsed = last
		}
	}

	return state, nil
}

// Delete removes the state file.
func (s *Store) Delete() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state file: %w", err)
	}
	return nil
}

// Exists returns true if a state file exists.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Path returns the path to the state file.
func (s *Store) Path() string {
	return s.path
}
