package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"pinmap/internal/domain/user"
)

// UserStore defines the storage interface for accounts
type UserStore interface {
	GetUserByToken(ctx context.Context, token string) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	CountUsers(ctx context.Context) (int64, error)
	CreateUser(ctx context.Context, u user.User) (*user.User, error)
	UpdateLogin(ctx context.Context, id, name, token string) (*user.User, error)
	ClearToken(ctx context.Context, id string) error
}

// TokenCache remembers which user holds a token. Get returns nil, nil on a miss.
type TokenCache interface {
	Get(ctx context.Context, token string) (*user.User, error)
	Set(ctx context.Context, token string, u *user.User) error
	Delete(ctx context.Context, token string) error
}

// Service implements the user.Service interface
type Service struct {
	users  UserStore
	cache  TokenCache
	logger *slog.Logger
}

// NewService creates a new auth service. cache may be nil.
func NewService(users UserStore, cache TokenCache, logger *slog.Logger) *Service {
	return &Service{
		users:  users,
		cache:  cache,
		logger: logger,
	}
}

// Authenticate resolves a token to its user. An unknown token yields nil, nil.
func (s *Service) Authenticate(ctx context.Context, token string) (*user.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}

	if s.cache != nil {
		u, err := s.cache.Get(ctx, token)
		if err != nil {
			s.logger.Warn("Token cache lookup failed", "error", err)
		} else if u != nil {
			return u, nil
		}
	}

	u, err := s.users.GetUserByToken(ctx, token)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error resolving token: %w", err)
	}

	s.remember(ctx, token, u)
	return u, nil
}

// Login rotates the token of an existing account and refreshes its name
func (s *Service) Login(ctx context.Context, creds user.Credentials) (*user.Session, error) {
	creds, err := checkCredentials(creds)
	if err != nil {
		return nil, err
	}

	existing, err := s.users.GetUserByEmail(ctx, creds.Email)
	if err != nil {
		return nil, err
	}

	token, err := NewToken()
	if err != nil {
		return nil, err
	}

	u, err := s.users.UpdateLogin(ctx, existing.ID, creds.Name, token)
	if err != nil {
		return nil, fmt.Errorf("error updating login: %w", err)
	}

	s.forget(ctx, existing.AuthToken)
	s.remember(ctx, token, u)
	s.logger.Info("User logged in", "user_id", u.ID)

	return &user.Session{Token: token, User: u}, nil
}

// Register creates an account; the first account becomes admin
func (s *Service) Register(ctx context.Context, creds user.Credentials) (*user.Session, error) {
	creds, err := checkCredentials(creds)
	if err != nil {
		return nil, err
	}

	if _, err := s.users.GetUserByEmail(ctx, creds.Email); err == nil {
		return nil, user.ErrConflict
	} else if !errors.Is(err, user.ErrNotFound) {
		return nil, err
	}

	count, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	role := user.RoleUser
	if count == 0 {
		role = user.RoleAdmin
	}

	id, err := NewID("usr")
	if err != nil {
		return nil, err
	}
	token, err := NewToken()
	if err != nil {
		return nil, err
	}

	u, err := s.users.CreateUser(ctx, user.User{
		ID:        id,
		Email:     creds.Email,
		Name:      creds.Name,
		Role:      role,
		AuthToken: token,
	})
	if err != nil {
		return nil, err
	}

	s.remember(ctx, token, u)
	s.logger.Info("User registered", "user_id", u.ID, "role", u.Role)

	return &user.Session{Token: token, User: u}, nil
}

// Logout invalidates the token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	u, err := s.Authenticate(ctx, token)
	if err != nil || u == nil {
		return err
	}

	if err := s.users.ClearToken(ctx, u.ID); err != nil {
		return err
	}
	s.forget(ctx, token)
	return nil
}

func (s *Service) remember(ctx context.Context, token string, u *user.User) {
	if s.cache == nil || token == "" {
		return
	}
	if err := s.cache.Set(ctx, token, u); err != nil {
		s.logger.Warn("Error caching token", "error", err)
	}
}

func (s *Service) forget(ctx context.Context, token string) {
	if s.cache == nil || token == "" {
		return
	}
	if err := s.cache.Delete(ctx, token); err != nil {
		s.logger.Warn("Error evicting token", "error", err)
	}
}

// checkCredentials normalizes creds and rejects a missing name or an
// email without "@"
func checkCredentials(creds user.Credentials) (user.Credentials, error) {
	creds = creds.Normalize()
	if creds.Email == "" || !strings.Contains(creds.Email, "@") || creds.Name == "" {
		return creds, user.ErrInvalid
	}
	if runes := []rune(creds.Name); len(runes) > user.MaxNameLength {
		creds.Name = string(runes[:user.MaxNameLength])
	}
	return creds, nil
}

var _ user.Service = (*Service)(nil)
