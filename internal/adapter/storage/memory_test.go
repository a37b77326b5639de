package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinmap/internal/domain/layer"
	"pinmap/internal/domain/pin"
	"pinmap/internal/domain/user"
)

func TestMemoryPoints(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.EnsureDefaultLayers(ctx))

	_, err := m.InsertPoint(ctx, pin.Record{ID: "x", LayerKey: "nowhere"})
	assert.ErrorIs(t, err, layer.ErrNotFound)

	for _, id := range []string{"c", "a", "b"} {
		_, err := m.InsertPoint(ctx, pin.Record{ID: id, LayerKey: layer.FeelingsKey, Type: "good"})
		require.NoError(t, err)
	}
	_, err = m.InsertPoint(ctx, pin.Record{ID: "a", LayerKey: layer.CityBuildingsKey})
	assert.ErrorIs(t, err, pin.ErrConflict)

	records, err := m.ListPoints(ctx, layer.FeelingsKey)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{records[0].ID, records[1].ID, records[2].ID})
	assert.Equal(t, user.UnknownName, records[0].CreatedByName)

	_, err = m.GetPoint(ctx, layer.CityBuildingsKey, "a")
	assert.ErrorIs(t, err, pin.ErrNotFound)

	updated, err := m.UpdateComment(ctx, layer.FeelingsKey, "a", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", updated.Comment)

	deleted, err := m.DeletePoint(ctx, layer.FeelingsKey, "a")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = m.DeletePoint(ctx, layer.FeelingsKey, "a")
	require.NoError(t, err)
	assert.False(t, deleted)

	n, err := m.DeleteLayerPoints(ctx, layer.FeelingsKey)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := m.CountPoints(ctx, layer.FeelingsKey)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryLayers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.EnsureDefaultLayers(ctx))
	require.NoError(t, m.UpsertLayer(ctx, layer.Layer{Key: "hidden", Name: "Hidden", SortOrder: 1}))
	require.NoError(t, m.UpsertLayer(ctx, layer.Layer{Key: "alpha", Name: "Alpha", IsEnabled: true, SortOrder: 20}))

	enabled, err := m.ListLayers(ctx, true)
	require.NoError(t, err)
	keys := make([]string, 0, len(enabled))
	for _, l := range enabled {
		keys = append(keys, l.Key)
	}
	assert.Equal(t, []string{layer.FeelingsKey, "alpha", layer.CityBuildingsKey}, keys)

	all, err := m.ListLayers(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "hidden", all[0].Key)

	_, err = m.GetLayer(ctx, "missing")
	assert.ErrorIs(t, err, layer.ErrNotFound)
}

func TestMemoryUsers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	created, err := m.CreateUser(ctx, user.User{ID: "usr_1", Email: "a@example.com", Name: "A", Role: user.RoleAdmin, AuthToken: "t1"})
	require.NoError(t, err)
	assert.NotNil(t, created.LastLoginAt)

	_, err = m.CreateUser(ctx, user.User{ID: "usr_2", Email: "a@example.com"})
	assert.ErrorIs(t, err, user.ErrConflict)

	found, err := m.GetUserByToken(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "usr_1", found.ID)

	_, err = m.UpdateLogin(ctx, "usr_1", "Alice", "t2")
	require.NoError(t, err)
	_, err = m.GetUserByToken(ctx, "t1")
	assert.ErrorIs(t, err, user.ErrNotFound)

	require.NoError(t, m.ClearToken(ctx, "usr_1"))
	_, err = m.GetUserByToken(ctx, "")
	assert.ErrorIs(t, err, user.ErrNotFound)

	n, err := m.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
