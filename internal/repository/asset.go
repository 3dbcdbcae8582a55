package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert lost to a unique constraint.
	ErrConflict = errors.New("conflict")
)

const uniqueViolation = "23505"

// Asset represents a row in the assets table. An asset is created at most
// once per distinct content hash and is never deleted here; cases merely
// link to it.
type Asset struct {
	ID             string
	FileHash       string
	StoragePath    string
	MimeType       string
	SizeBytes      int64
	Pages          *int
	LastAccessedAt *time.Time
	CreatedAt      time.Time
}

// AssetRepository wraps all SQL touching the assets table.
type AssetRepository struct {
	pool *pgxpool.Pool
}

// NewAssetRepository constructs a repository.
func NewAssetRepository(pool *pgxpool.Pool) *AssetRepository {
	return &AssetRepository{pool: pool}
}

// FindByHash returns the asset with the given content hash, or ErrNotFound.
func (r *AssetRepository) FindByHash(ctx context.Context, hash string) (*Asset, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, file_hash, storage_path, mime_type, size_bytes, pages, last_accessed_at, created_at
		FROM assets WHERE file_hash=$1
	`, hash)
	return scanAsset(row)
}

// Create inserts a new asset row, assigning its id and creation time. The
// unique constraint on file_hash arbitrates concurrent creations of the
// same content; the loser gets ErrConflict and should re-read.
func (r *AssetRepository) Create(ctx context.Context, a *Asset) error {
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO assets (id, file_hash, storage_path, mime_type, size_bytes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, a.ID, a.FileHash, a.StoragePath, a.MimeType, a.SizeBytes, a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("asset %s: %w", a.FileHash, ErrConflict)
		}
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

// TouchAccess bumps last_accessed_at. Best effort; callers log failures
// instead of propagating them.
func (r *AssetRepository) TouchAccess(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE assets SET last_accessed_at=$1 WHERE id=$2
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch asset: %w", err)
	}
	return nil
}

// SetPages stores the page count discovered by the inspection worker.
func (r *AssetRepository) SetPages(ctx context.Context, id string, pages int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE assets SET pages=$1 WHERE id=$2
	`, pages, id)
	if err != nil {
		return fmt.Errorf("set asset pages: %w", err)
	}
	return nil
}

func scanAsset(row pgx.Row) (*Asset, error) {
	var (
		a            Asset
		pages        sql.NullInt32
		lastAccessed sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.FileHash, &a.StoragePath, &a.MimeType, &a.SizeBytes, &pages, &lastAccessed, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select asset: %w", err)
	}
	if pages.Valid {
		p := int(pages.Int32)
		a.Pages = &p
	}
	if lastAccessed.Valid {
		t := lastAccessed.Time
		a.LastAccessedAt = &t
	}
	return &a, nil
}
