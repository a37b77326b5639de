package layers

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinmap/internal/adapter/storage"
	"pinmap/internal/domain/layer"
	"pinmap/internal/domain/pin"
	"pinmap/internal/domain/user"
	"pinmap/internal/logger"
)

var alice = &user.User{ID: "usr_alice", Name: "Alice", Role: user.RoleUser}

func ptr(v float64) *float64 { return &v }

func newTestManager(t *testing.T) (*Manager, *storage.Memory) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.EnsureDefaultLayers(ctx))
	require.NoError(t, store.UpsertLayer(ctx, layer.Layer{Key: "archive", Name: "Archiv", IsEnabled: false, AllowUserPoints: true}))
	return NewManager(store, store, logger.Discard()), store
}

func TestListLayersOnlyEnabled(t *testing.T) {
	m, _ := newTestManager(t)

	layers, err := m.ListLayers(context.Background())
	require.NoError(t, err)
	require.Len(t, layers, 2)
	assert.Equal(t, layer.FeelingsKey, layers[0].Key)
	assert.Equal(t, layer.CityBuildingsKey, layers[1].Key)
}

func TestListPoints(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	_, err := store.InsertPoint(ctx, pin.Record{ID: "p1", LayerKey: layer.FeelingsKey, Type: "good", CreatedByUserID: alice.ID})
	require.NoError(t, err)
	_, err = store.InsertPoint(ctx, pin.Record{ID: "b1", LayerKey: layer.CityBuildingsKey, Title: "Radnice", CreatedByUserID: alice.ID})
	require.NoError(t, err)

	feelings, err := m.ListPoints(ctx, alice, layer.FeelingsKey)
	require.NoError(t, err)
	require.Len(t, feelings, 1)
	assert.True(t, feelings[0].CanEdit)

	buildings, err := m.ListPoints(ctx, alice, layer.CityBuildingsKey)
	require.NoError(t, err)
	require.Len(t, buildings, 1)
	assert.Equal(t, "Radnice", buildings[0].Title)
	assert.False(t, buildings[0].CanEdit, "points outside the feelings layer are read-only")

	_, err = m.ListPoints(ctx, alice, "archive")
	assert.ErrorIs(t, err, layer.ErrNotFound)
	_, err = m.ListPoints(ctx, alice, "missing")
	assert.ErrorIs(t, err, layer.ErrNotFound)
}

func TestCreatePoint(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	draft := layer.PointDraft{
		Lat:         ptr(48.94),
		Lng:         ptr(16.74),
		Title:       strings.Repeat("t", 200),
		Description: strings.Repeat("d", 600),
		Type:        strings.Repeat("k", 50),
		Data:        map[string]interface{}{"floors": 3},
	}

	created, err := m.CreatePoint(ctx, alice, layer.FeelingsKey, draft)
	require.NoError(t, err)
	assert.Regexp(t, `^pt_[0-9a-f]{16}$`, created.ID)
	assert.Len(t, created.Title, layer.MaxTitleLength)
	assert.Len(t, created.Description, layer.MaxDescriptionLength)
	assert.Len(t, created.Type, layer.MaxTypeLength)
	assert.Equal(t, "Alice", created.CreatedByName)

	draft.ID = created.ID
	_, err = m.CreatePoint(ctx, alice, layer.FeelingsKey, draft)
	assert.ErrorIs(t, err, layer.ErrConflict)
}

func TestCreatePointErrors(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	valid := layer.PointDraft{Lat: ptr(48.94), Lng: ptr(16.74)}

	tests := []struct {
		name   string
		viewer *user.User
		key    string
		draft  layer.PointDraft
		want   error
	}{
		{name: "missing lat", viewer: alice, key: layer.FeelingsKey, draft: layer.PointDraft{Lng: ptr(1)}, want: layer.ErrInvalid},
		{name: "unknown layer", viewer: alice, key: "missing", draft: valid, want: layer.ErrNotFound},
		{name: "disabled layer", viewer: alice, key: "archive", draft: valid, want: layer.ErrNotFound},
		{name: "closed layer", viewer: alice, key: layer.CityBuildingsKey, draft: valid, want: layer.ErrUserPointsClosed},
		{name: "anonymous", viewer: nil, key: layer.FeelingsKey, draft: valid, want: user.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.CreatePoint(ctx, tt.viewer, tt.key, tt.draft)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
