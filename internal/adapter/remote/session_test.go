package remote

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinmap/internal/domain/user"
)

type fakeAuthenticator struct {
	user *user.User
	err  error
}

func (a *fakeAuthenticator) Me(ctx context.Context) (*user.User, error) {
	return a.user, a.err
}

func TestOpenSessionMissingFile(t *testing.T) {
	s, err := OpenSession(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, err)
	assert.Empty(t, s.Token())
	assert.Nil(t, s.User())
	assert.False(t, s.CanDeleteAll())
}

func TestOpenSessionCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := OpenSession(path)
	assert.Error(t, err)
}

func TestSessionSaveAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(`{"theme":"dark"}`), 0o600))

	s, err := OpenSession(path)
	require.NoError(t, err)

	admin := &user.User{ID: "usr_1", Name: "Alice", Role: user.RoleAdmin}
	require.NoError(t, s.Save(&user.Session{Token: "tok", User: admin}))
	assert.Equal(t, "tok", s.Token())
	assert.True(t, s.CanDeleteAll())

	var stored map[string]string
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, map[string]string{TokenKey: "tok", "theme": "dark"}, stored)

	reopened, err := OpenSession(path)
	require.NoError(t, err)
	assert.Equal(t, "tok", reopened.Token())

	require.NoError(t, s.Clear())
	assert.Empty(t, s.Token())
	assert.Nil(t, s.User())

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.NotContains(t, stored, TokenKey)
}

func TestSessionRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("known token resolves the user", func(t *testing.T) {
		s, err := OpenSession(filepath.Join(t.TempDir(), "session.json"))
		require.NoError(t, err)
		require.NoError(t, s.Save(&user.Session{Token: "tok"}))

		s.SetAuthenticator(&fakeAuthenticator{user: &user.User{ID: "usr_1", Role: user.RoleUser}})
		require.NoError(t, s.Refresh(ctx))
		require.NotNil(t, s.User())
		assert.Equal(t, "usr_1", s.User().ID)
		assert.False(t, s.CanDeleteAll())
	})

	t.Run("unknown token is forgotten", func(t *testing.T) {
		s, err := OpenSession(filepath.Join(t.TempDir(), "session.json"))
		require.NoError(t, err)
		require.NoError(t, s.Save(&user.Session{Token: "stale"}))

		s.SetAuthenticator(&fakeAuthenticator{})
		require.NoError(t, s.Refresh(ctx))
		assert.Empty(t, s.Token())
		assert.Nil(t, s.User())
	})

	t.Run("transport failure keeps the token", func(t *testing.T) {
		s, err := OpenSession(filepath.Join(t.TempDir(), "session.json"))
		require.NoError(t, err)
		require.NoError(t, s.Save(&user.Session{Token: "tok"}))

		s.SetAuthenticator(&fakeAuthenticator{err: errors.New("offline")})
		assert.Error(t, s.Refresh(ctx))
		assert.Equal(t, "tok", s.Token())
	})

	t.Run("no token means signed out", func(t *testing.T) {
		s, err := OpenSession(filepath.Join(t.TempDir(), "session.json"))
		require.NoError(t, err)
		s.SetAuthenticator(&fakeAuthenticator{user: &user.User{ID: "usr_1"}})

		require.NoError(t, s.Refresh(ctx))
		assert.Nil(t, s.User())
	})
}
