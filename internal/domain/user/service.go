package user

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Role defines what a user may do with other people's content
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

// MaxNameLength caps display names
const MaxNameLength = 80

// UnknownName is shown when content has no author name
const UnknownName = "Neznamy"

// Common errors
var (
	ErrNotFound     = errors.New("user not found")
	ErrConflict     = errors.New("user already exists")
	ErrInvalid      = errors.New("invalid user payload")
	ErrUnauthorized = errors.New("login required")
	ErrForbidden    = errors.New("permission denied")
)

// User represents a registered account
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        Role       `json:"role"`
	AuthToken   string     `json:"-"`
	CreatedAt   time.Time  `json:"-"`
	LastLoginAt *time.Time `json:"-"`
}

// IsAdmin reports whether u is a signed-in administrator
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Owns reports whether u created content attributed to ownerID
func (u *User) Owns(ownerID string) bool {
	return u != nil && ownerID != "" && u.ID == ownerID
}

// CanEdit reports whether u may change content created by ownerID.
// Admins edit anything; moderators and users only their own.
func (u *User) CanEdit(ownerID string) bool {
	if u == nil {
		return false
	}
	switch u.Role {
	case RoleAdmin:
		return true
	case RoleModerator, RoleUser:
		return u.Owns(ownerID)
	}
	return false
}

// CanDelete reports whether u may delete content created by ownerID
func (u *User) CanDelete(ownerID string) bool {
	return u.IsAdmin() || u.Owns(ownerID)
}

// Credentials is the login and registration payload
type Credentials struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required"`
}

// Normalize lower-cases the email and collapses whitespace in the name
func (c Credentials) Normalize() Credentials {
	return Credentials{
		Email: NormalizeEmail(c.Email),
		Name:  NormalizeName(c.Name),
	}
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeName trims a display name and collapses inner whitespace
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// Session is a signed-in user together with their token
type Session struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Service defines the interface for account and session management
type Service interface {
	// Authenticate resolves a token to its user. An unknown token yields nil, nil.
	Authenticate(ctx context.Context, token string) (*User, error)

	// Login rotates the token of an existing account
	Login(ctx context.Context, creds Credentials) (*Session, error)

	// Register creates an account; the first account becomes admin
	Register(ctx context.Context, creds Credentials) (*Session, error)

	// Logout invalidates the token
	Logout(ctx context.Context, token string) error
}
