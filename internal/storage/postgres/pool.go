// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of *pgxpool.Pool the stores use.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Open connects a pool using cfg.
func Open(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// Schema creates the tables the stores need.
const Schema = `
CREATE TABLE IF NOT EXISTS animals (
	provider           TEXT NOT NULL,
	native_id          TEXT NOT NULL,
	name               TEXT NOT NULL DEFAULT '',
	breed_primary      TEXT NOT NULL DEFAULT '',
	breed_secondary    TEXT NOT NULL DEFAULT '',
	breed_mixed        BOOLEAN,
	age                TEXT NOT NULL DEFAULT 'Unknown',
	size               TEXT NOT NULL DEFAULT 'Unknown',
	gender             TEXT NOT NULL DEFAULT 'Unknown',
	photos             JSONB NOT NULL DEFAULT '[]',
	description        TEXT,
	city               TEXT NOT NULL DEFAULT '',
	state              TEXT NOT NULL DEFAULT '',
	postcode           TEXT NOT NULL DEFAULT '',
	latitude           DOUBLE PRECISION,
	longitude          DOUBLE PRECISION,
	organization_id    TEXT NOT NULL DEFAULT '',
	house_trained      BOOLEAN,
	special_needs      BOOLEAN,
	spayed_neutered    BOOLEAN,
	shots_current      BOOLEAN,
	good_with_children BOOLEAN,
	good_with_dogs     BOOLEAN,
	good_with_cats     BOOLEAN,
	energy_level       TEXT NOT NULL DEFAULT '',
	coat_color         TEXT NOT NULL DEFAULT '',
	external_url       TEXT NOT NULL DEFAULT '',
	visibility_score   DOUBLE PRECISION,
	published_at       TIMESTAMPTZ,
	last_updated       TIMESTAMPTZ NOT NULL,
	status             TEXT NOT NULL DEFAULT 'adoptable',
	PRIMARY KEY (provider, native_id)
);
CREATE INDEX IF NOT EXISTS animals_status_score_idx ON animals (status, visibility_score DESC);
CREATE INDEX IF NOT EXISTS animals_status_updated_idx ON animals (status, last_updated);

CREATE TABLE IF NOT EXISTS sync_runs (
	id              TEXT PRIMARY KEY,
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ,
	provider        TEXT NOT NULL,
	filters_applied TEXT[] NOT NULL DEFAULT '{}',
	pages_fetched   INTEGER NOT NULL DEFAULT 0,
	dogs_added      INTEGER NOT NULL DEFAULT 0,
	dogs_updated    INTEGER NOT NULL DEFAULT 0,
	dogs_removed    INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL,
	error_message   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS sync_runs_started_idx ON sync_runs (started_at DESC);
`

// Migrate applies Schema. It is idempotent.
func Migrate(ctx context.Context, pool Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
