package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"pinmap/internal/domain/pin"
)

const pointColumns = `
	id, layer_key, lat, lng, title, description, data, type, comment,
	COALESCE(created_by_user_id, ''), created_by_name, created_from_ip,
	created_at, updated_at`

// PointStore implements storage for layer points, pins included
type PointStore struct {
	db *pgxpool.Pool
}

// NewPointStore creates a new point store
func NewPointStore(db *pgxpool.Pool) *PointStore {
	return &PointStore{
		db: db,
	}
}

// ListPoints returns the points of a layer, oldest first
func (s *PointStore) ListPoints(ctx context.Context, layerKey string) ([]pin.Record, error) {
	query := `SELECT ` + pointColumns + `
		FROM layer_points
		WHERE layer_key = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := s.db.Query(ctx, query, layerKey)
	if err != nil {
		return nil, fmt.Errorf("error querying points: %w", err)
	}
	defer rows.Close()

	var records []pin.Record
	for rows.Next() {
		rec, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating points: %w", err)
	}

	return records, nil
}

// GetPoint retrieves one point of a layer
func (s *PointStore) GetPoint(ctx context.Context, layerKey, id string) (*pin.Record, error) {
	query := `SELECT ` + pointColumns + `
		FROM layer_points
		WHERE id = $1 AND layer_key = $2`

	rec, err := scanPoint(s.db.QueryRow(ctx, query, id, layerKey))
	if err != nil {
		if isNoRows(err) {
			return nil, pin.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// InsertPoint stores a new point. A duplicate id yields pin.ErrConflict.
func (s *PointStore) InsertPoint(ctx context.Context, rec pin.Record) (*pin.Record, error) {
	data, err := encodeData(rec.Data)
	if err != nil {
		return nil, err
	}

	var owner *string
	if rec.CreatedByUserID != "" {
		owner = &rec.CreatedByUserID
	}

	query := `
		INSERT INTO layer_points (
			id, layer_key, lat, lng, title, description, data,
			type, comment, created_by_user_id, created_by_name, created_from_ip
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7::jsonb,
			$8, $9, $10, $11, $12
		)
		RETURNING ` + pointColumns

	stored, err := scanPoint(s.db.QueryRow(
		ctx,
		query,
		rec.ID,
		rec.LayerKey,
		rec.Lat,
		rec.Lng,
		rec.Title,
		rec.Description,
		data,
		rec.Type,
		rec.Comment,
		owner,
		rec.AuthorName(),
		rec.CreatedFromIP,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, pin.ErrConflict
		}
		return nil, err
	}

	return &stored, nil
}

// UpdateComment replaces the comment of a point
func (s *PointStore) UpdateComment(ctx context.Context, layerKey, id, comment string) (*pin.Record, error) {
	query := `
		UPDATE layer_points
		SET comment = $3, updated_at = now()
		WHERE id = $1 AND layer_key = $2
		RETURNING ` + pointColumns

	rec, err := scanPoint(s.db.QueryRow(ctx, query, id, layerKey, comment))
	if err != nil {
		if isNoRows(err) {
			return nil, pin.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// DeletePoint removes one point and reports whether it existed
func (s *PointStore) DeletePoint(ctx context.Context, layerKey, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM layer_points WHERE id = $1 AND layer_key = $2`, id, layerKey)
	if err != nil {
		return false, fmt.Errorf("error deleting point: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteLayerPoints removes every point of a layer
func (s *PointStore) DeleteLayerPoints(ctx context.Context, layerKey string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM layer_points WHERE layer_key = $1`, layerKey)
	if err != nil {
		return 0, fmt.Errorf("error deleting points: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountPoints counts the points of a layer
func (s *PointStore) CountPoints(ctx context.Context, layerKey string) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM layer_points WHERE layer_key = $1`, layerKey).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("error counting points: %w", err)
	}
	return n, nil
}

// scanPoint reads one row selected with pointColumns
func scanPoint(row pgx.Row) (pin.Record, error) {
	var rec pin.Record
	var data []byte

	err := row.Scan(
		&rec.ID,
		&rec.LayerKey,
		&rec.Lat,
		&rec.Lng,
		&rec.Title,
		&rec.Description,
		&data,
		&rec.Type,
		&rec.Comment,
		&rec.CreatedByUserID,
		&rec.CreatedByName,
		&rec.CreatedFromIP,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) || isUniqueViolation(err) {
			return pin.Record{}, err
		}
		return pin.Record{}, fmt.Errorf("error scanning point: %w", err)
	}

	rec.Data = decodeData(data)
	return rec, nil
}

// encodeData serializes the data object; nil becomes NULL
func encodeData(data map[string]interface{}) (*string, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("error marshaling point data: %w", err)
	}
	s := string(raw)
	return &s, nil
}

// decodeData parses a stored data object; anything but an object is dropped
func decodeData(raw []byte) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil
	}
	return data
}
