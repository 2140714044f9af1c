package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// ServiceGitHub is the service every query in this client runs against.
const ServiceGitHub = "github"

// ErrNotLoggedIn is returned when an action needs a token that is not set.
var ErrNotLoggedIn = errors.New("not logged in")

// Verifier confirms a token works by asking the server who it belongs to.
type Verifier interface {
	Viewer(ctx context.Context) (string, error)
}

// Session holds access tokens per service.
type Session struct {
	mu       sync.RWMutex
	tokens   map[string]string
	logins   map[string]string
	verifier Verifier
}

// NewSession creates an empty auth session.
func NewSession() *Session {
	return &Session{
		tokens: make(map[string]string),
		logins: make(map[string]string),
	}
}

// SetVerifier wires the client used to validate GitHub tokens. The client
// itself reads tokens from the session, so it is attached after both exist.
func (s *Session) SetVerifier(v Verifier) {
	s.mu.Lock()
	s.verifier = v
	s.mu.Unlock()
}

// CurrentAccessToken returns the GitHub token or "" when logged out.
func (s *Session) CurrentAccessToken() string {
	return s.Token(ServiceGitHub)
}

func (s *Session) Token(service string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[normalize(service)]
}

// Username returns the login name recorded for service by the last
// successful verification.
func (s *Session) Username(service string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logins[normalize(service)]
}

// SetToken stores a token without verifying it.
func (s *Session) SetToken(service, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	service = normalize(service)
	if token == "" {
		delete(s.tokens, service)
		delete(s.logins, service)
		return
	}
	s.tokens[service] = token
}

// Login stores token for service and verifies it. A token that fails
// verification is discarded.
func (s *Session) Login(ctx context.Context, service, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("login to %s: empty token", service)
	}
	s.SetToken(service, token)

	name, err := s.verify(ctx, service)
	if err != nil {
		s.Logout(service)
		return fmt.Errorf("login to %s failed: %w", service, err)
	}

	s.mu.Lock()
	s.logins[normalize(service)] = name
	s.mu.Unlock()
	return nil
}

// IsLoggedIn reports whether service has a token the server accepts.
func (s *Session) IsLoggedIn(ctx context.Context, service string) (bool, error) {
	if s.Token(service) == "" {
		return false, nil
	}
	name, err := s.verify(ctx, service)
	if err != nil {
		if len(MissingServices(err)) > 0 {
			return false, nil
		}
		return false, err
	}
	s.mu.Lock()
	s.logins[normalize(service)] = name
	s.mu.Unlock()
	return true, nil
}

// Logout forgets the token for service.
func (s *Session) Logout(service string) {
	s.SetToken(service, "")
}

func (s *Session) verify(ctx context.Context, service string) (string, error) {
	s.mu.RLock()
	v := s.verifier
	s.mu.RUnlock()

	// Only GitHub tokens can be checked with the viewer query.
	if v == nil || normalize(service) != ServiceGitHub {
		return "", nil
	}
	name, err := v.Viewer(ctx)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", ErrNotLoggedIn
	}
	return name, nil
}

// savedSession is the JSON structure written to disk.
type savedSession struct {
	Tokens  map[string]string `json:"tokens"`
	Logins  map[string]string `json:"logins,omitempty"`
	SavedAt time.Time         `json:"saved_at"`
}

// Save persists the tokens to path with owner-only permissions.
func (s *Session) Save(path string) error {
	s.mu.RLock()
	saved := savedSession{
		Tokens:  make(map[string]string, len(s.tokens)),
		Logins:  make(map[string]string, len(s.logins)),
		SavedAt: time.Now(),
	}
	for k, v := range s.tokens {
		saved.Tokens[k] = v
	}
	for k, v := range s.logins {
		saved.Logins[k] = v
	}
	s.mu.RUnlock()

	if len(saved.Tokens) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Load restores tokens saved by Save. Returns true if any token was
// restored. Tokens are not re-verified here; callers check IsLoggedIn.
func (s *Session) Load(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	var saved savedSession
	if err := json.Unmarshal(data, &saved); err != nil {
		return false
	}
	if len(saved.Tokens) == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range saved.Tokens {
		if v != "" {
			s.tokens[normalize(k)] = v
		}
	}
	for k, v := range saved.Logins {
		s.logins[normalize(k)] = v
	}
	return len(s.tokens) > 0
}

func normalize(service string) string {
	return strings.ToLower(strings.TrimSpace(service))
}
