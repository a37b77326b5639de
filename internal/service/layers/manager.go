package layers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"pinmap/internal/domain/layer"
	"pinmap/internal/domain/pin"
	"pinmap/internal/domain/user"
	"pinmap/internal/metrics"
	"pinmap/internal/service/auth"
)

// LayerStore defines the storage interface for layers
type LayerStore interface {
	ListLayers(ctx context.Context, enabledOnly bool) ([]layer.Layer, error)
	GetLayer(ctx context.Context, key string) (*layer.Layer, error)
}

// PointStore defines the storage interface for layer points
type PointStore interface {
	ListPoints(ctx context.Context, layerKey string) ([]pin.Record, error)
	InsertPoint(ctx context.Context, rec pin.Record) (*pin.Record, error)
}

// Manager implements the layer.Manager interface
type Manager struct {
	layers LayerStore
	points PointStore
	logger *slog.Logger
}

// NewManager creates a new layer manager
func NewManager(layers LayerStore, points PointStore, logger *slog.Logger) *Manager {
	return &Manager{
		layers: layers,
		points: points,
		logger: logger,
	}
}

// ListLayers returns enabled layers ordered by sort order, then key
func (m *Manager) ListLayers(ctx context.Context) ([]layer.Layer, error) {
	layers, err := m.layers.ListLayers(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("error listing layers: %w", err)
	}
	return layers, nil
}

// enabledLayer returns the layer if it exists and is enabled
func (m *Manager) enabledLayer(ctx context.Context, key string) (*layer.Layer, error) {
	l, err := m.layers.GetLayer(ctx, key)
	if err != nil {
		return nil, err
	}
	if !l.IsEnabled {
		return nil, layer.ErrNotFound
	}
	return l, nil
}

// ListPoints returns the points of an enabled layer, oldest first
func (m *Manager) ListPoints(ctx context.Context, viewer *user.User, key string) ([]layer.Point, error) {
	if _, err := m.enabledLayer(ctx, key); err != nil {
		return nil, err
	}

	records, err := m.points.ListPoints(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("error listing points: %w", err)
	}

	points := make([]layer.Point, 0, len(records))
	for _, rec := range records {
		points = append(points, layer.PointFromRecord(rec, viewer))
	}
	return points, nil
}

// CreatePoint adds a user point to a layer that accepts them
func (m *Manager) CreatePoint(ctx context.Context, viewer *user.User, key string, draft layer.PointDraft) (*layer.Point, error) {
	if draft.Lat == nil || draft.Lng == nil || !finite(*draft.Lat) || !finite(*draft.Lng) {
		return nil, layer.ErrInvalid
	}

	l, err := m.enabledLayer(ctx, key)
	if err != nil {
		return nil, err
	}
	if !l.AllowUserPoints {
		return nil, layer.ErrUserPointsClosed
	}
	if viewer == nil {
		return nil, user.ErrUnauthorized
	}

	draft = draft.Normalize()
	if draft.ID == "" {
		if draft.ID, err = auth.NewID("pt"); err != nil {
			return nil, err
		}
	}

	rec := pin.Record{
		ID:              draft.ID,
		LayerKey:        key,
		Lat:             *draft.Lat,
		Lng:             *draft.Lng,
		Title:           draft.Title,
		Description:     draft.Description,
		Data:            draft.Data,
		Type:            draft.Type,
		Comment:         draft.Comment,
		CreatedByUserID: viewer.ID,
		CreatedByName:   pin.Truncate(viewer.Name, user.MaxNameLength),
	}

	stored, err := m.points.InsertPoint(ctx, rec)
	if err != nil {
		if errors.Is(err, pin.ErrConflict) {
			return nil, layer.ErrConflict
		}
		return nil, fmt.Errorf("error creating point: %w", err)
	}

	metrics.PinMutationsTotal.WithLabelValues("create_point").Inc()
	m.logger.Info("Layer point created", "layer", key, "id", stored.ID)

	p := layer.PointFromRecord(*stored, viewer)
	return &p, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

var _ layer.Manager = (*Manager)(nil)
