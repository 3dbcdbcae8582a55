package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/detective-board/caseshare/internal/repository"
)

// ImportedAsset describes one attachment of an imported case. URL points at
// the local storage proxy rather than the upstream store, so clients never
// need storage credentials.
type ImportedAsset struct {
	Hash string `json:"hash"`
	URL  string `json:"url"`
	Mime string `json:"mime"`
}

// ImportResult is the full payload returned for a share code.
type ImportResult struct {
	CaseData json.RawMessage `json:"case_data"`
	Assets   []ImportedAsset `json:"assets"`
}

// ImportService resolves share codes back into case documents.
type ImportService struct {
	cases CaseRepo
	now   func() time.Time
}

// NewImportService constructs an ImportService.
func NewImportService(cases CaseRepo) *ImportService {
	return &ImportService{cases: cases, now: time.Now}
}

// Import fetches the case for code along with its linked assets. Unknown
// codes yield ErrNotFound; known codes past their expiry yield ErrExpired,
// so clients can tell "try another code" apart from "this share is gone".
func (s *ImportService) Import(ctx context.Context, code string) (*ImportResult, error) {
	c, err := s.cases.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if c.ExpiresAt.Before(s.now()) {
		return nil, ErrExpired
	}

	linked, err := s.cases.AssetsForCase(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	assets := make([]ImportedAsset, 0, len(linked))
	for _, la := range linked {
		assets = append(assets, ImportedAsset{
			Hash: la.FileHash,
			URL:  "/storage/" + la.StoragePath,
			Mime: la.MimeType,
		})
	}
	return &ImportResult{CaseData: c.Data, Assets: assets}, nil
}
