package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"pinmap/internal/domain/layer"
)

// LayerStore implements storage for layers
type LayerStore struct {
	db *pgxpool.Pool
}

// NewLayerStore creates a new layer store
func NewLayerStore(db *pgxpool.Pool) *LayerStore {
	return &LayerStore{
		db: db,
	}
}

// ListLayers returns layers ordered by sort order, then key
func (s *LayerStore) ListLayers(ctx context.Context, enabledOnly bool) ([]layer.Layer, error) {
	query := `
		SELECT key, name, kind, allow_user_points, is_enabled, sort_order
		FROM layers
		WHERE is_enabled OR NOT $1
		ORDER BY sort_order ASC, key ASC`

	rows, err := s.db.Query(ctx, query, enabledOnly)
	if err != nil {
		return nil, fmt.Errorf("error querying layers: %w", err)
	}
	defer rows.Close()

	var layers []layer.Layer
	for rows.Next() {
		l, err := scanLayer(rows)
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating layers: %w", err)
	}

	return layers, nil
}

// GetLayer retrieves a layer by key
func (s *LayerStore) GetLayer(ctx context.Context, key string) (*layer.Layer, error) {
	query := `
		SELECT key, name, kind, allow_user_points, is_enabled, sort_order
		FROM layers
		WHERE key = $1`

	l, err := scanLayer(s.db.QueryRow(ctx, query, key))
	if err != nil {
		if isNoRows(err) {
			return nil, layer.ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

// UpsertLayer inserts a layer or overwrites the one with the same key
func (s *LayerStore) UpsertLayer(ctx context.Context, l layer.Layer) error {
	query := `
		INSERT INTO layers (key, name, kind, allow_user_points, is_enabled, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO UPDATE
		SET
			name = EXCLUDED.name,
			kind = EXCLUDED.kind,
			allow_user_points = EXCLUDED.allow_user_points,
			is_enabled = EXCLUDED.is_enabled,
			sort_order = EXCLUDED.sort_order,
			updated_at = now()`

	_, err := s.db.Exec(ctx, query, l.Key, l.Name, string(l.Kind), l.AllowUserPoints, l.IsEnabled, l.SortOrder)
	if err != nil {
		return fmt.Errorf("error upserting layer %s: %w", l.Key, err)
	}
	return nil
}

// EnsureDefaultLayers upserts the layers every deployment starts with
func (s *LayerStore) EnsureDefaultLayers(ctx context.Context) error {
	for _, l := range layer.ServerDefaults() {
		if err := s.UpsertLayer(ctx, l); err != nil {
			return err
		}
	}
	return nil
}

func scanLayer(row pgx.Row) (layer.Layer, error) {
	var l layer.Layer
	var kind string

	err := row.Scan(&l.Key, &l.Name, &kind, &l.AllowUserPoints, &l.IsEnabled, &l.SortOrder)
	if err != nil {
		if isNoRows(err) {
			return layer.Layer{}, err
		}
		return layer.Layer{}, fmt.Errorf("error scanning layer: %w", err)
	}

	l.Kind = layer.Kind(kind)
	return l, nil
}
