package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Case represents a row in the shared_cases table. A case is written once
// and read until its expiry passes; expiry is checked lazily at read time
// and enforced by the purge task.
type Case struct {
	ID        string
	ShareCode string
	Data      []byte // raw JSON document
	ExpiresAt time.Time
	CreatedAt time.Time
}

// LinkedAsset is the slice of an asset a case import needs.
type LinkedAsset struct {
	FileHash    string
	StoragePath string
	MimeType    string
}

// CaseRepository wraps all SQL touching shared_cases and case_assets.
type CaseRepository struct {
	pool *pgxpool.Pool
}

// NewCaseRepository constructs a repository.
func NewCaseRepository(pool *pgxpool.Pool) *CaseRepository {
	return &CaseRepository{pool: pool}
}

// Create inserts a new case, assigning its id and creation time.
func (r *CaseRepository) Create(ctx context.Context, c *Case) error {
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO shared_cases (id, share_code, data, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, c.ID, c.ShareCode, c.Data, c.ExpiresAt, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

// GetByCode returns the case with the given share code, or ErrNotFound.
// Expiry is the caller's concern; expired rows are still returned so the
// caller can distinguish "expired" from "never existed".
func (r *CaseRepository) GetByCode(ctx context.Context, code string) (*Case, error) {
	var c Case
	row := r.pool.QueryRow(ctx, `
		SELECT id, share_code, data, expires_at, created_at
		FROM shared_cases WHERE share_code=$1
	`, code)
	if err := row.Scan(&c.ID, &c.ShareCode, &c.Data, &c.ExpiresAt, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select case: %w", err)
	}
	return &c, nil
}

// CodeExists reports whether a share code is already taken.
func (r *CaseRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	row := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM shared_cases WHERE share_code=$1)
	`, code)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check share code: %w", err)
	}
	return exists, nil
}

// LinkAsset associates an asset with a case. Linking the same pair twice is
// a no-op, which makes the operation idempotent.
func (r *CaseRepository) LinkAsset(ctx context.Context, caseID, assetID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO case_assets (case_id, asset_id, created_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (case_id, asset_id) DO NOTHING
	`, caseID, assetID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("link asset: %w", err)
	}
	return nil
}

// AssetsForCase returns the assets linked to a case in link-insertion
// order, which keeps import responses stable.
func (r *CaseRepository) AssetsForCase(ctx context.Context, caseID string) ([]LinkedAsset, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.file_hash, a.storage_path, a.mime_type
		FROM assets a
		JOIN case_assets ca ON a.id = ca.asset_id
		WHERE ca.case_id=$1
		ORDER BY ca.created_at, a.id
	`, caseID)
	if err != nil {
		return nil, fmt.Errorf("select case assets: %w", err)
	}
	defer rows.Close()
	var out []LinkedAsset
	for rows.Next() {
		var la LinkedAsset
		if err := rows.Scan(&la.FileHash, &la.StoragePath, &la.MimeType); err != nil {
			return nil, fmt.Errorf("scan case asset: %w", err)
		}
		out = append(out, la)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate case assets: %w", err)
	}
	return out, nil
}

// DeleteExpired removes cases whose expiry has passed, links first. Asset
// rows are left in place; identical content may be reused by later shares.
func (r *CaseRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `
		DELETE FROM case_assets
		WHERE case_id IN (SELECT id FROM shared_cases WHERE expires_at < $1)
	`, now); err != nil {
		return 0, fmt.Errorf("purge links: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM shared_cases WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge cases: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit purge: %w", err)
	}
	return tag.RowsAffected(), nil
}
