package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"pinmap/internal/domain/user"
)

// TokenKey is the storage key of the session token
const TokenKey = "pocitovaMapaAuthToken"

// Authenticator resolves the stored token to a user
type Authenticator interface {
	Me(ctx context.Context) (*user.User, error)
}

// FileSession keeps the session token in a small JSON key/value file and
// the resolved user in memory
type FileSession struct {
	path string
	auth Authenticator

	values map[string]string
	user   *user.User
	mu     sync.RWMutex
}

// OpenSession loads the session file at path. A missing file is an empty session.
func OpenSession(path string) (*FileSession, error) {
	s := &FileSession{
		path:   path,
		values: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading session file: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.values); err != nil {
			return nil, fmt.Errorf("error parsing session file: %w", err)
		}
	}

	return s, nil
}

// SetAuthenticator sets the collaborator used by Refresh
func (s *FileSession) SetAuthenticator(auth Authenticator) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auth = auth
}

// Token returns the stored token, if any
func (s *FileSession) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.values[TokenKey]
}

// User returns the signed-in user, or nil
func (s *FileSession) User() *user.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.user
}

// CanDeleteAll reports whether the user may delete every pin
func (s *FileSession) CanDeleteAll() bool {
	return s.User().IsAdmin()
}

// Refresh resolves the stored token. A token the server no longer knows is
// forgotten.
func (s *FileSession) Refresh(ctx context.Context) error {
	s.mu.RLock()
	auth, token := s.auth, s.values[TokenKey]
	s.mu.RUnlock()

	if token == "" || auth == nil {
		s.mu.Lock()
		s.user = nil
		s.mu.Unlock()
		return nil
	}

	u, err := auth.Me(ctx)
	if err != nil {
		return fmt.Errorf("error resolving session: %w", err)
	}
	if u == nil {
		return s.Clear()
	}

	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
	return nil
}

// Save stores a new session and persists its token
func (s *FileSession) Save(session *user.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[TokenKey] = session.Token
	s.user = session.User
	return s.persistLocked()
}

// Clear forgets the user and removes the token
func (s *FileSession) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, TokenKey)
	s.user = nil
	return s.persistLocked()
}

// persistLocked writes the file atomically; caller holds the lock
func (s *FileSession) persistLocked() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("error creating session directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("error creating session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error writing session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("error replacing session file: %w", err)
	}

	return nil
}
