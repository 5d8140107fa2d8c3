// Package session persists the sign-in state of the local user.
//
// The session file is YAML. A stored token is checked on every
// IsAuthenticated call, so an expired token closes the sync gate without
// anyone rewriting the file.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoUser is returned by Login when neither the token nor the caller
	// names a user.
	ErrNoUser = errors.New("session: no user id")
	// ErrInvalidToken is returned by Login when the token fails verification.
	ErrInvalidToken = errors.New("session: invalid token")
)

// State is the on-disk session record.
type State struct {
	LoggedIn   bool      `yaml:"logged_in"`
	UserID     string    `yaml:"user_id,omitempty"`
	Token      string    `yaml:"token,omitempty"`
	LoggedInAt time.Time `yaml:"logged_in_at,omitempty"`
}

// Options configure token verification.
type Options struct {
	// Secret is the HMAC key. When empty, tokens are decoded without
	// signature verification and only their expiry is enforced.
	Secret string
	// Issuer, when set, must match the token's iss claim.
	Issuer string
	// Now overrides the clock used for expiry checks.
	Now func() time.Time
}

// Session is a file-backed gate.Session.
type Session struct {
	path string
	opts Options

	mu    sync.RWMutex
	state State
}

// Open loads the session at path. A missing file yields a signed-out
// session.
func Open(path string, opts Options) (*Session, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Session{path: path, opts: opts}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the session file location.
func (s *Session) Path() string { return s.path }

// Reload re-reads the session file.
func (s *Session) Reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.state = State{}
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("failed to parse session %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	return nil
}

// State returns a copy of the loaded record.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsAuthenticated implements gate.Session.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	st := s.state
	s.mu.RUnlock()

	if !st.LoggedIn || st.UserID == "" {
		return false
	}
	if st.Token == "" {
		return true
	}
	_, err := s.verify(st.Token)
	return err == nil
}

// UserID implements gate.Session.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.UserID
}

// Login verifies token (when given), records the user and writes the file.
// The token's subject wins over userID when both are present.
func (s *Session) Login(userID, token string) error {
	if token != "" {
		claims, err := s.verify(token)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if claims.Subject != "" {
			userID = claims.Subject
		}
	}
	if userID == "" {
		return ErrNoUser
	}

	st := State{
		LoggedIn:   true,
		UserID:     userID,
		Token:      token,
		LoggedInAt: s.opts.Now().UTC().Truncate(time.Second),
	}
	if err := s.write(st); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	return nil
}

// Logout clears credentials but keeps the user id for display.
func (s *Session) Logout() error {
	s.mu.RLock()
	st := State{UserID: s.state.UserID}
	s.mu.RUnlock()

	if err := s.write(st); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	return nil
}

func (s *Session) verify(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}

	if s.opts.Secret == "" {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, err
		}
		if claims.ExpiresAt != nil && !s.opts.Now().Before(claims.ExpiresAt.Time) {
			return nil, jwt.ErrTokenExpired
		}
		return claims, nil
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.opts.Now),
	}
	if s.opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(s.opts.Issuer))
	}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.opts.Secret), nil
	}, parserOpts...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *Session) write(st State) error {
	data, err := yaml.Marshal(&st)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace session: %w", err)
	}
	return nil
}
