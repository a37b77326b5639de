package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pinmap/internal/domain/layer"
	"pinmap/internal/domain/pin"
	"pinmap/internal/domain/user"
)

// Memory keeps users, layers and points in process memory. It offers the
// same methods and errors as the Postgres stores and backs local runs
// without a database.
type Memory struct {
	users  map[string]user.User
	layers map[string]layer.Layer
	points map[string]pin.Record
	now    func() time.Time
	last   time.Time
	mu     sync.RWMutex
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		users:  make(map[string]user.User),
		layers: make(map[string]layer.Layer),
		points: make(map[string]pin.Record),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ListPoints returns the points of a layer, oldest first
func (m *Memory) ListPoints(ctx context.Context, layerKey string) ([]pin.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []pin.Record
	for _, rec := range m.points {
		if rec.LayerKey == layerKey {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

// GetPoint retrieves one point of a layer
func (m *Memory) GetPoint(ctx context.Context, layerKey, id string) (*pin.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.points[id]
	if !ok || rec.LayerKey != layerKey {
		return nil, pin.ErrNotFound
	}
	return &rec, nil
}

// InsertPoint stores a new point. A duplicate id yields pin.ErrConflict.
func (m *Memory) InsertPoint(ctx context.Context, rec pin.Record) (*pin.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.layers[rec.LayerKey]; !ok {
		return nil, fmt.Errorf("error inserting point: %w", layer.ErrNotFound)
	}
	if _, ok := m.points[rec.ID]; ok {
		return nil, pin.ErrConflict
	}

	// creation times strictly increase so listing keeps insertion order
	created := m.now()
	if !created.After(m.last) {
		created = m.last.Add(time.Nanosecond)
	}
	m.last = created

	rec.CreatedByName = rec.AuthorName()
	rec.CreatedAt = created
	rec.UpdatedAt = rec.CreatedAt
	m.points[rec.ID] = rec
	return &rec, nil
}

// UpdateComment replaces the comment of a point
func (m *Memory) UpdateComment(ctx context.Context, layerKey, id, comment string) (*pin.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.points[id]
	if !ok || rec.LayerKey != layerKey {
		return nil, pin.ErrNotFound
	}
	rec.Comment = comment
	rec.UpdatedAt = m.now()
	m.points[id] = rec
	return &rec, nil
}

// DeletePoint removes one point and reports whether it existed
func (m *Memory) DeletePoint(ctx context.Context, layerKey, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.points[id]
	if !ok || rec.LayerKey != layerKey {
		return false, nil
	}
	delete(m.points, id)
	return true, nil
}

// DeleteLayerPoints removes every point of a layer
func (m *Memory) DeleteLayerPoints(ctx context.Context, layerKey string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, rec := range m.points {
		if rec.LayerKey == layerKey {
			delete(m.points, id)
			n++
		}
	}
	return n, nil
}

// CountPoints counts the points of a layer
func (m *Memory) CountPoints(ctx context.Context, layerKey string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, rec := range m.points {
		if rec.LayerKey == layerKey {
			n++
		}
	}
	return n, nil
}

// ListLayers returns layers ordered by sort order, then key
func (m *Memory) ListLayers(ctx context.Context, enabledOnly bool) ([]layer.Layer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var layers []layer.Layer
	for _, l := range m.layers {
		if l.IsEnabled || !enabledOnly {
			layers = append(layers, l)
		}
	}
	sort.Slice(layers, func(i, j int) bool {
		if layers[i].SortOrder != layers[j].SortOrder {
			return layers[i].SortOrder < layers[j].SortOrder
		}
		return layers[i].Key < layers[j].Key
	})
	return layers, nil
}

// GetLayer retrieves a layer by key
func (m *Memory) GetLayer(ctx context.Context, key string) (*layer.Layer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.layers[key]
	if !ok {
		return nil, layer.ErrNotFound
	}
	return &l, nil
}

// UpsertLayer inserts a layer or overwrites the one with the same key
func (m *Memory) UpsertLayer(ctx context.Context, l layer.Layer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.layers[l.Key] = l
	return nil
}

// EnsureDefaultLayers upserts the layers every deployment starts with
func (m *Memory) EnsureDefaultLayers(ctx context.Context) error {
	for _, l := range layer.ServerDefaults() {
		if err := m.UpsertLayer(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) findUser(match func(user.User) bool) (*user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, user.ErrNotFound
}

// GetUserByToken finds the account holding token
func (m *Memory) GetUserByToken(ctx context.Context, token string) (*user.User, error) {
	return m.findUser(func(u user.User) bool { return u.AuthToken != "" && u.AuthToken == token })
}

// GetUserByEmail finds the account with a normalized email
func (m *Memory) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return m.findUser(func(u user.User) bool { return u.Email == email })
}

// CountUsers returns the number of accounts
func (m *Memory) CountUsers(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.users)), nil
}

// CreateUser stores a new account. A taken email yields user.ErrConflict.
func (m *Memory) CreateUser(ctx context.Context, u user.User) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Email == u.Email || existing.ID == u.ID {
			return nil, user.ErrConflict
		}
	}

	now := m.now()
	u.CreatedAt = now
	u.LastLoginAt = &now
	m.users[u.ID] = u
	return &u, nil
}

// UpdateLogin renames the account and rotates its token
func (m *Memory) UpdateLogin(ctx context.Context, id, name, token string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	now := m.now()
	u.Name = name
	u.AuthToken = token
	u.LastLoginAt = &now
	m.users[id] = u
	return &u, nil
}

// ClearToken signs the account out
func (m *Memory) ClearToken(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[id]; ok {
		u.AuthToken = ""
		m.users[id] = u
	}
	return nil
}
