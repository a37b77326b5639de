package pins

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinmap/internal/adapter/storage"
	"pinmap/internal/domain/pin"
	"pinmap/internal/domain/user"
	"pinmap/internal/logger"
)

type recordingBus struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (b *recordingBus) Publish(subject string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subjects = append(b.subjects, subject)
	b.payloads = append(b.payloads, data)
	return b.err
}

var (
	admin = &user.User{ID: "usr_admin", Name: "Admin", Role: user.RoleAdmin}
	alice = &user.User{ID: "usr_alice", Name: "Alice", Role: user.RoleUser}
	bob   = &user.User{ID: "usr_bob", Name: "Bob", Role: user.RoleModerator}
)

func newTestManager(t *testing.T) (*Manager, *recordingBus) {
	t.Helper()
	store := storage.NewMemory()
	require.NoError(t, store.EnsureDefaultLayers(context.Background()))

	bus := &recordingBus{}
	return NewManager(store, bus, ManagerConfig{EventsTopic: "pins"}, logger.Discard()), bus
}

func TestCreatePin(t *testing.T) {
	m, bus := newTestManager(t)
	ctx := context.Background()

	var events []pin.Event
	m.RegisterEventHandler(func(e pin.Event) { events = append(events, e) })

	created, err := m.CreatePin(ctx, alice, pin.Draft{
		ID:       " p1 ",
		Lat:      48.94,
		Lng:      16.74,
		Category: " good ",
		Comment:  strings.Repeat("x", 400),
	}, " 203.0.113.7 ")
	require.NoError(t, err)

	assert.Equal(t, "p1", created.ID)
	assert.Equal(t, "good", created.Category)
	assert.Len(t, created.Comment, pin.MaxCommentLength)
	assert.Equal(t, "Alice", created.CreatedByName)
	assert.True(t, created.IsOwner)
	assert.True(t, created.CanEdit)
	assert.True(t, created.CanDelete)
	assert.Nil(t, created.CreatedFromIP, "only admins see the source address")

	require.Len(t, events, 1)
	assert.Equal(t, pin.EventCreated, events[0].Type)
	assert.Equal(t, "p1", events[0].PinID)

	require.Equal(t, []string{"pins.created"}, bus.subjects)
	var published pin.Event
	require.NoError(t, json.Unmarshal(bus.payloads[0], &published))
	assert.Equal(t, "p1", published.PinID)

	pins, err := m.ListPins(ctx, admin)
	require.NoError(t, err)
	require.Len(t, pins, 1)
	require.NotNil(t, pins[0].CreatedFromIP)
	assert.Equal(t, "203.0.113.7", *pins[0].CreatedFromIP)
	assert.False(t, pins[0].IsOwner)
	assert.True(t, pins[0].CanEdit)

	anonymous, err := m.ListPins(ctx, nil)
	require.NoError(t, err)
	assert.False(t, anonymous[0].CanEdit)
	assert.False(t, anonymous[0].CanDelete)
}

func TestCreatePinErrors(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreatePin(ctx, nil, pin.Draft{ID: "p1", Category: "good"}, "")
	assert.ErrorIs(t, err, user.ErrUnauthorized)

	tests := []struct {
		name  string
		draft pin.Draft
	}{
		{name: "blank id", draft: pin.Draft{ID: "  ", Category: "good"}},
		{name: "blank type", draft: pin.Draft{ID: "p1", Category: " "}},
		{name: "nan", draft: pin.Draft{ID: "p1", Category: "good", Lat: math.NaN()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.CreatePin(ctx, alice, tt.draft, "")
			assert.ErrorIs(t, err, pin.ErrInvalid)
		})
	}

	_, err = m.CreatePin(ctx, alice, pin.Draft{ID: "p1", Category: "good"}, "")
	require.NoError(t, err)
	_, err = m.CreatePin(ctx, bob, pin.Draft{ID: "p1", Category: "bad"}, "")
	assert.ErrorIs(t, err, pin.ErrConflict)
}

func TestUpdateCommentPermissions(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreatePin(ctx, alice, pin.Draft{ID: "p1", Category: "good"}, "")
	require.NoError(t, err)

	_, err = m.UpdateComment(ctx, nil, "p1", "x")
	assert.ErrorIs(t, err, user.ErrUnauthorized)

	_, err = m.UpdateComment(ctx, bob, "p1", "x")
	assert.ErrorIs(t, err, user.ErrForbidden, "moderators edit only their own pins")

	_, err = m.UpdateComment(ctx, alice, "missing", "x")
	assert.ErrorIs(t, err, pin.ErrNotFound)

	updated, err := m.UpdateComment(ctx, alice, "p1", "moje")
	require.NoError(t, err)
	assert.Equal(t, "moje", updated.Comment)

	updated, err = m.UpdateComment(ctx, admin, "p1", strings.Repeat("y", 301))
	require.NoError(t, err)
	assert.Len(t, updated.Comment, 300)
}

func TestDeletePermissions(t *testing.T) {
	m, bus := newTestManager(t)
	ctx := context.Background()

	for _, id := range []string{"p1", "p2", "p3"} {
		_, err := m.CreatePin(ctx, alice, pin.Draft{ID: id, Category: "good"}, "")
		require.NoError(t, err)
	}

	assert.ErrorIs(t, m.DeletePin(ctx, nil, "p1"), user.ErrUnauthorized)
	assert.ErrorIs(t, m.DeletePin(ctx, bob, "p1"), user.ErrForbidden)
	assert.ErrorIs(t, m.DeletePin(ctx, alice, "missing"), pin.ErrNotFound)
	assert.NoError(t, m.DeletePin(ctx, alice, "p1"))
	assert.NoError(t, m.DeletePin(ctx, admin, "p2"))

	_, err := m.DeleteAll(ctx, alice)
	assert.ErrorIs(t, err, user.ErrForbidden)
	_, err = m.DeleteAll(ctx, nil)
	assert.ErrorIs(t, err, user.ErrForbidden)

	n, err := m.DeleteAll(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, "pins.cleared", bus.subjects[len(bus.subjects)-1])
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	m, bus := newTestManager(t)
	bus.err = errors.New("nats down")

	_, err := m.CreatePin(context.Background(), alice, pin.Draft{ID: "p1", Category: "good"}, "")
	assert.NoError(t, err)
}

func TestNoEventBus(t *testing.T) {
	store := storage.NewMemory()
	require.NoError(t, store.EnsureDefaultLayers(context.Background()))
	m := NewManager(store, nil, ManagerConfig{}, logger.Discard())

	_, err := m.CreatePin(context.Background(), alice, pin.Draft{ID: "p1", Category: "good"}, "")
	assert.NoError(t, err)
}

func TestPublishFailureWithoutLogger(t *testing.T) {
	store := storage.NewMemory()
	require.NoError(t, store.EnsureDefaultLayers(context.Background()))
	bus := &recordingBus{err: errors.New("nats down")}
	m := NewManager(store, bus, ManagerConfig{EventsTopic: "pins"}, nil)

	require.NotPanics(t, func() {
		_, err := m.CreatePin(context.Background(), alice, pin.Draft{ID: "p1", Category: "good"}, "")
		assert.NoError(t, err)
	})
	assert.Equal(t, []string{"pins.created"}, bus.subjects)
}
