package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the case/asset tables if needed. Having the migration
// in code keeps the service self-contained so docker-compose can bootstrap
// everything.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS shared_cases (
	id TEXT PRIMARY KEY,
	share_code TEXT NOT NULL UNIQUE,
	data JSONB NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS assets (
	id TEXT PRIMARY KEY,
	file_hash TEXT NOT NULL UNIQUE,
	storage_path TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	pages INT,
	last_accessed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS case_assets (
	case_id TEXT NOT NULL REFERENCES shared_cases(id),
	asset_id TEXT NOT NULL REFERENCES assets(id),
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (case_id, asset_id)
);
CREATE INDEX IF NOT EXISTS idx_shared_cases_expires ON shared_cases(expires_at);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
