// Package asset implements content-addressed storage of uploaded
// attachments: identical bytes are stored and recorded exactly once no
// matter how many cases reference them.
package asset

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/detective-board/caseshare/internal/hashing"
	"github.com/detective-board/caseshare/internal/repository"
)

// ErrUnsupportedContent is returned for uploads whose sniffed type is not
// on the allow-list. Callers skip such files instead of failing a batch.
var ErrUnsupportedContent = errors.New("unsupported content type")

// Repository is the persistence surface the store needs.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*repository.Asset, error)
	Create(ctx context.Context, a *repository.Asset) error
	TouchAccess(ctx context.Context, id string) error
}

// ObjectStore uploads asset bytes to remote storage.
type ObjectStore interface {
	Upload(ctx context.Context, objectPath string, data []byte, contentType string) error
}

// Enqueuer schedules best-effort background inspection of new assets.
type Enqueuer interface {
	EnqueueInspect(ctx context.Context, assetID, storagePath string) error
}

// Store resolves uploaded bytes to asset records, creating them on first
// sight and deduplicating by content hash afterwards.
type Store struct {
	repo    Repository
	objects ObjectStore
	tasks   Enqueuer
	logger  *zap.Logger
}

// NewStore constructs a Store. tasks may be nil when no worker is wired in.
func NewStore(repo Repository, objects ObjectStore, tasks Enqueuer, logger *zap.Logger) *Store {
	return &Store{repo: repo, objects: objects, tasks: tasks, logger: logger}
}

// ResolveOrCreate returns the asset id for data, uploading and registering
// it first if this content has never been seen. The detected content type
// comes from the byte signature; the caller-supplied type is never trusted.
// created reports whether a new record was made.
func (s *Store) ResolveOrCreate(ctx context.Context, data []byte) (id string, created bool, err error) {
	mime, err := detectType(data)
	if err != nil {
		return "", false, err
	}
	hash := hashing.Sum(data)

	existing, err := s.repo.FindByHash(ctx, hash)
	if err == nil {
		if terr := s.repo.TouchAccess(ctx, existing.ID); terr != nil {
			s.logger.Warn("refresh asset access time", zap.String("assetId", existing.ID), zap.Error(terr))
		}
		return existing.ID, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return "", false, err
	}

	objectPath := hashing.ObjectPath(hash)
	if err := s.objects.Upload(ctx, objectPath, data, mime); err != nil {
		return "", false, fmt.Errorf("store asset %s: %w", hash, err)
	}
	rec := &repository.Asset{
		FileHash:    hash,
		StoragePath: objectPath,
		MimeType:    mime,
		SizeBytes:   int64(len(data)),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Lost a creation race; the winner's row is authoritative and the
			// uploaded object is identical content under the same path.
			winner, lerr := s.repo.FindByHash(ctx, hash)
			if lerr != nil {
				return "", false, lerr
			}
			return winner.ID, false, nil
		}
		return "", false, err
	}
	if s.tasks != nil && mime == "application/pdf" {
		if qerr := s.tasks.EnqueueInspect(ctx, rec.ID, objectPath); qerr != nil {
			s.logger.Warn("enqueue asset inspection", zap.String("assetId", rec.ID), zap.Error(qerr))
		}
	}
	return rec.ID, true, nil
}

// FindByHash resolves a content hash to an asset id without side effects.
func (s *Store) FindByHash(ctx context.Context, hash string) (string, error) {
	a, err := s.repo.FindByHash(ctx, hash)
	if err != nil {
		return "", err
	}
	return a.ID, nil
}

// detectType sniffs the byte signature and validates it against the
// allow-list: PDFs plus anything image/audio/video.
func detectType(data []byte) (string, error) {
	mt := mimetype.Detect(data)
	mime := mt.String()
	switch {
	case mt.Is("application/pdf"),
		strings.HasPrefix(mime, "image/"),
		strings.HasPrefix(mime, "audio/"),
		strings.HasPrefix(mime, "video/"):
		return mime, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContent, mime)
	}
}
