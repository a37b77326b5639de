package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinmap/internal/domain/user"
	"pinmap/internal/logger"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*user.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[string]*user.User{}}
}

func (m *memUsers) find(match func(*user.User) bool) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			c := *u
			return &c, nil
		}
	}
	return nil, user.ErrNotFound
}

func (m *memUsers) GetUserByToken(ctx context.Context, token string) (*user.User, error) {
	return m.find(func(u *user.User) bool { return u.AuthToken != "" && u.AuthToken == token })
}

func (m *memUsers) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return m.find(func(u *user.User) bool { return u.Email == email })
}

func (m *memUsers) CountUsers(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

func (m *memUsers) CreateUser(ctx context.Context, u user.User) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return nil, user.ErrConflict
		}
	}
	m.users[u.ID] = &u
	c := u
	return &c, nil
}

func (m *memUsers) UpdateLogin(ctx context.Context, id, name, token string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	u.Name, u.AuthToken = name, token
	c := *u
	return &c, nil
}

func (m *memUsers) ClearToken(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.AuthToken = ""
	}
	return nil
}

type memCache struct {
	entries map[string]*user.User
	failGet bool
}

func (c *memCache) Get(ctx context.Context, token string) (*user.User, error) {
	if c.failGet {
		return nil, errors.New("cache down")
	}
	return c.entries[token], nil
}

func (c *memCache) Set(ctx context.Context, token string, u *user.User) error {
	c.entries[token] = u
	return nil
}

func (c *memCache) Delete(ctx context.Context, token string) error {
	delete(c.entries, token)
	return nil
}

func TestRegisterFirstUserIsAdmin(t *testing.T) {
	svc := NewService(newMemUsers(), nil, logger.Discard())
	ctx := context.Background()

	first, err := svc.Register(ctx, user.Credentials{Email: "  Alice@Example.com ", Name: " Alice   Novak "})
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, first.User.Role)
	assert.Equal(t, "alice@example.com", first.User.Email)
	assert.Equal(t, "Alice Novak", first.User.Name)
	assert.True(t, strings.HasPrefix(first.User.ID, "usr_"))
	assert.Len(t, first.User.ID, len("usr_")+16)
	assert.NotEmpty(t, first.Token)

	second, err := svc.Register(ctx, user.Credentials{Email: "bob@example.com", Name: "Bob"})
	require.NoError(t, err)
	assert.Equal(t, user.RoleUser, second.User.Role)

	_, err = svc.Register(ctx, user.Credentials{Email: "ALICE@example.com", Name: "Again"})
	assert.ErrorIs(t, err, user.ErrConflict)
}

func TestCredentialsValidation(t *testing.T) {
	svc := NewService(newMemUsers(), nil, logger.Discard())
	ctx := context.Background()

	tests := []struct {
		name  string
		creds user.Credentials
	}{
		{name: "no at sign", creds: user.Credentials{Email: "alice.example.com", Name: "Alice"}},
		{name: "blank name", creds: user.Credentials{Email: "alice@example.com", Name: "   "}},
		{name: "blank email", creds: user.Credentials{Email: " ", Name: "Alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.creds)
			assert.ErrorIs(t, err, user.ErrInvalid)
			_, err = svc.Login(ctx, tt.creds)
			assert.ErrorIs(t, err, user.ErrInvalid)
		})
	}

	session, err := svc.Register(ctx, user.Credentials{Email: "long@example.com", Name: strings.Repeat("n", 100)})
	require.NoError(t, err)
	assert.Len(t, session.User.Name, user.MaxNameLength)
}

func TestLoginRotatesToken(t *testing.T) {
	cache := &memCache{entries: map[string]*user.User{}}
	svc := NewService(newMemUsers(), cache, logger.Discard())
	ctx := context.Background()

	registered, err := svc.Register(ctx, user.Credentials{Email: "alice@example.com", Name: "Alice"})
	require.NoError(t, err)
	assert.Contains(t, cache.entries, registered.Token)

	_, err = svc.Login(ctx, user.Credentials{Email: "nobody@example.com", Name: "Nobody"})
	assert.ErrorIs(t, err, user.ErrNotFound)

	session, err := svc.Login(ctx, user.Credentials{Email: "alice@example.com", Name: "Alice N."})
	require.NoError(t, err)
	assert.NotEqual(t, registered.Token, session.Token)
	assert.Equal(t, "Alice N.", session.User.Name)
	assert.NotContains(t, cache.entries, registered.Token)

	old, err := svc.Authenticate(ctx, registered.Token)
	require.NoError(t, err)
	assert.Nil(t, old)

	current, err := svc.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, registered.User.ID, current.ID)
}

func TestAuthenticateFallsBackWhenCacheFails(t *testing.T) {
	cache := &memCache{entries: map[string]*user.User{}}
	svc := NewService(newMemUsers(), cache, logger.Discard())
	ctx := context.Background()

	session, err := svc.Register(ctx, user.Credentials{Email: "alice@example.com", Name: "Alice"})
	require.NoError(t, err)

	cache.failGet = true
	u, err := svc.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	require.NotNil(t, u)

	u, err = svc.Authenticate(ctx, "   ")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestLogout(t *testing.T) {
	cache := &memCache{entries: map[string]*user.User{}}
	svc := NewService(newMemUsers(), cache, logger.Discard())
	ctx := context.Background()

	session, err := svc.Register(ctx, user.Credentials{Email: "alice@example.com", Name: "Alice"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, session.Token))
	assert.Empty(t, cache.entries)

	u, err := svc.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Nil(t, u)

	assert.NoError(t, svc.Logout(ctx, "unknown"))
}

func TestNewIDAndToken(t *testing.T) {
	id, err := NewID("pt")
	require.NoError(t, err)
	assert.Regexp(t, `^pt_[0-9a-f]{16}$`, id)

	a, err := NewToken()
	require.NoError(t, err)
	b, err := NewToken()
	require.NoError(t, err)
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "=")
}
