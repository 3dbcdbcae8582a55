// Package service orchestrates case sharing and importing on top of the
// asset store and repositories.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"time"

	"go.uber.org/zap"

	"github.com/detective-board/caseshare/internal/asset"
	"github.com/detective-board/caseshare/internal/assetref"
	"github.com/detective-board/caseshare/internal/repository"
	"github.com/detective-board/caseshare/internal/sharecode"
)

var (
	// ErrMissingCaseData is returned when a share request carried no
	// case_data part.
	ErrMissingCaseData = errors.New("missing case_data")
	// ErrInvalidCaseData is returned when the case_data part is not JSON.
	ErrInvalidCaseData = errors.New("case_data is not valid JSON")
	// ErrNotFound is returned when no case exists for a share code.
	ErrNotFound = errors.New("case not found")
	// ErrExpired is returned for a known share code whose case expired.
	ErrExpired = errors.New("case expired")
)

// CaseRepo is the case persistence surface the services need.
type CaseRepo interface {
	Create(ctx context.Context, c *repository.Case) error
	GetByCode(ctx context.Context, code string) (*repository.Case, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	LinkAsset(ctx context.Context, caseID, assetID string) error
	AssetsForCase(ctx context.Context, caseID string) ([]repository.LinkedAsset, error)
}

// AssetResolver is the slice of the asset store the share flow needs.
type AssetResolver interface {
	ResolveOrCreate(ctx context.Context, data []byte) (id string, created bool, err error)
	FindByHash(ctx context.Context, hash string) (string, error)
}

// ShareResult is handed back to the client after a successful share.
type ShareResult struct {
	ShareCode string
	ExpiresAt time.Time
}

// ShareService turns a multipart share request into a persisted case with
// linked assets.
type ShareService struct {
	cases  CaseRepo
	assets AssetResolver
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewShareService constructs a ShareService. ttl is how long a share stays
// importable.
func NewShareService(cases CaseRepo, assets AssetResolver, ttl time.Duration, logger *zap.Logger) *ShareService {
	return &ShareService{
		cases:  cases,
		assets: assets,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Share drains the multipart stream, registers every supported file part
// with the asset store, resolves asset references embedded in the case
// document, and persists the case plus its asset links.
//
// The whole stream is consumed before the case_data check so that upload
// work is preserved even when the request turns out to be incomplete;
// content addressing makes those early uploads harmless.
func (s *ShareService) Share(ctx context.Context, mr *multipart.Reader) (*ShareResult, error) {
	var caseData []byte
	var assetIDs []string

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read part: %w", err)
		}
		name := part.FormName()
		data, rerr := io.ReadAll(part)
		part.Close()
		if rerr != nil {
			return nil, fmt.Errorf("read part %q: %w", name, rerr)
		}
		switch name {
		case "case_data":
			if !json.Valid(data) {
				return nil, ErrInvalidCaseData
			}
			caseData = data
		case "files[]":
			id, _, aerr := s.assets.ResolveOrCreate(ctx, data)
			if aerr != nil {
				if errors.Is(aerr, asset.ErrUnsupportedContent) {
					s.logger.Info("skipping file part", zap.Error(aerr))
					continue
				}
				return nil, aerr
			}
			assetIDs = append(assetIDs, id)
		default:
			// other parts are drained and ignored
		}
	}

	if caseData == nil {
		return nil, ErrMissingCaseData
	}

	for _, hash := range assetref.ExtractHashes(caseData) {
		id, err := s.assets.FindByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				// Stale or invalid reference; the share still succeeds.
				s.logger.Info("ignoring unknown asset reference", zap.String("hash", hash))
				continue
			}
			return nil, err
		}
		assetIDs = append(assetIDs, id)
	}
	assetIDs = dedupIDs(assetIDs)

	code, err := sharecode.GenerateUnique(ctx, s.cases.CodeExists)
	if err != nil {
		return nil, err
	}

	c := &repository.Case{
		ShareCode: code,
		Data:      caseData,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.cases.Create(ctx, c); err != nil {
		return nil, err
	}

	for _, id := range assetIDs {
		if err := s.cases.LinkAsset(ctx, c.ID, id); err != nil {
			// A dropped link only makes one asset unreachable from this case;
			// the share itself stands.
			s.logger.Warn("link asset to case",
				zap.String("caseId", c.ID),
				zap.String("assetId", id),
				zap.Error(err))
		}
	}

	return &ShareResult{ShareCode: code, ExpiresAt: c.ExpiresAt}, nil
}

func dedupIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
