package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"pinmap/internal/domain/user"
)

const userColumns = `id, email, name, role, COALESCE(auth_token, ''), created_at, last_login_at`

// UserStore implements storage for accounts
type UserStore struct {
	db *pgxpool.Pool
}

// NewUserStore creates a new user store
func NewUserStore(db *pgxpool.Pool) *UserStore {
	return &UserStore{
		db: db,
	}
}

// GetUserByToken finds the account holding token
func (s *UserStore) GetUserByToken(ctx context.Context, token string) (*user.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE auth_token = $1`, token)
}

// GetUserByEmail finds the account with a normalized email
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (s *UserStore) getUser(ctx context.Context, query string, arg string) (*user.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, query, arg))
	if err != nil {
		if isNoRows(err) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// CountUsers returns the number of accounts
func (s *UserStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting users: %w", err)
	}
	return n, nil
}

// CreateUser stores a new account. A taken email yields user.ErrConflict.
func (s *UserStore) CreateUser(ctx context.Context, u user.User) (*user.User, error) {
	query := `
		INSERT INTO users (id, email, name, role, auth_token, last_login_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING ` + userColumns

	created, err := scanUser(s.db.QueryRow(ctx, query, u.ID, u.Email, u.Name, string(u.Role), u.AuthToken))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, user.ErrConflict
		}
		return nil, err
	}
	return &created, nil
}

// UpdateLogin renames the account and rotates its token
func (s *UserStore) UpdateLogin(ctx context.Context, id, name, token string) (*user.User, error) {
	query := `
		UPDATE users
		SET name = $2, auth_token = $3, updated_at = now(), last_login_at = now()
		WHERE id = $1
		RETURNING ` + userColumns

	u, err := scanUser(s.db.QueryRow(ctx, query, id, name, token))
	if err != nil {
		if isNoRows(err) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ClearToken signs the account out
func (s *UserStore) ClearToken(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `UPDATE users SET auth_token = NULL, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error clearing token: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	var role string

	err := row.Scan(&u.ID, &u.Email, &u.Name, &role, &u.AuthToken, &u.CreatedAt, &u.LastLoginAt)
	if err != nil {
		if isNoRows(err) || isUniqueViolation(err) {
			return user.User{}, err
		}
		return user.User{}, fmt.Errorf("error scanning user: %w", err)
	}

	u.Role = user.Role(role)
	return u, nil
}
