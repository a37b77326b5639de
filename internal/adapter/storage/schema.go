package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'moderator', 'user')),
		auth_token    TEXT UNIQUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_login_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS layers (
		key               TEXT PRIMARY KEY,
		name              TEXT NOT NULL,
		kind              TEXT NOT NULL DEFAULT 'static',
		allow_user_points BOOLEAN NOT NULL DEFAULT false,
		is_enabled        BOOLEAN NOT NULL DEFAULT true,
		sort_order        INTEGER NOT NULL DEFAULT 100,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS layer_points (
		id                 TEXT PRIMARY KEY,
		layer_key          TEXT NOT NULL REFERENCES layers(key),
		lat                DOUBLE PRECISION NOT NULL,
		lng                DOUBLE PRECISION NOT NULL,
		title              TEXT NOT NULL DEFAULT '',
		description        TEXT NOT NULL DEFAULT '',
		data               JSONB,
		type               TEXT NOT NULL DEFAULT '',
		comment            TEXT NOT NULL DEFAULT '',
		created_by_user_id TEXT REFERENCES users(id) ON DELETE SET NULL,
		created_by_name    TEXT NOT NULL DEFAULT 'Neznamy',
		created_from_ip    TEXT,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS layer_points_layer_created_idx
		ON layer_points (layer_key, created_at, id)`,
}

// Migrate creates the tables if they do not exist yet
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("error applying schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isNoRows reports whether a single-row query found nothing
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
