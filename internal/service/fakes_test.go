package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/detective-board/caseshare/internal/asset"
	"github.com/detective-board/caseshare/internal/hashing"
	"github.com/detective-board/caseshare/internal/repository"
)

// memCaseRepo is an in-memory CaseRepo used across the service tests.
type memCaseRepo struct {
	mu       sync.Mutex
	cases    map[string]*repository.Case // by id
	byCode   map[string]string           // code -> id
	links    map[string][]string         // case id -> asset ids, insertion order
	assets   map[string]repository.LinkedAsset
	failLink bool
	nextID   int
}

func newMemCaseRepo() *memCaseRepo {
	return &memCaseRepo{
		cases:  map[string]*repository.Case{},
		byCode: map[string]string{},
		links:  map[string][]string{},
		assets: map[string]repository.LinkedAsset{},
	}
}

func (m *memCaseRepo) Create(ctx context.Context, c *repository.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ID = fmt.Sprintf("case-%d", m.nextID)
	stored := *c
	m.cases[c.ID] = &stored
	m.byCode[c.ShareCode] = c.ID
	return nil
}

func (m *memCaseRepo) GetByCode(ctx context.Context, code string) (*repository.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byCode[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *m.cases[id]
	return &c, nil
}

func (m *memCaseRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byCode[code]
	return ok, nil
}

func (m *memCaseRepo) LinkAsset(ctx context.Context, caseID, assetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLink {
		return errors.New("link refused")
	}
	for _, existing := range m.links[caseID] {
		if existing == assetID {
			return nil
		}
	}
	m.links[caseID] = append(m.links[caseID], assetID)
	return nil
}

func (m *memCaseRepo) AssetsForCase(ctx context.Context, caseID string) ([]repository.LinkedAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.LinkedAsset
	for _, assetID := range m.links[caseID] {
		out = append(out, m.assets[assetID])
	}
	return out, nil
}

// memAssets is an in-memory AssetResolver. Content starting with "%PDF" is
// accepted; everything else is reported unsupported, standing in for the
// real signature sniff.
type memAssets struct {
	mu      sync.Mutex
	byHash  map[string]string // hash -> id
	uploads int
	nextID  int
	repo    *memCaseRepo // when set, registered assets become importable
}

func newMemAssets(repo *memCaseRepo) *memAssets {
	return &memAssets{byHash: map[string]string{}, repo: repo}
}

func (m *memAssets) ResolveOrCreate(ctx context.Context, data []byte) (string, bool, error) {
	if len(data) < 4 || string(data[:4]) != "%PDF" {
		return "", false, fmt.Errorf("%w: text/plain", asset.ErrUnsupportedContent)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	hash := hashing.Sum(data)
	if id, ok := m.byHash[hash]; ok {
		return id, false, nil
	}
	m.uploads++
	m.nextID++
	id := fmt.Sprintf("asset-%d", m.nextID)
	m.byHash[hash] = id
	if m.repo != nil {
		m.repo.assets[id] = repository.LinkedAsset{
			FileHash:    hash,
			StoragePath: hashing.ObjectPath(hash),
			MimeType:    "application/pdf",
		}
	}
	return id, true, nil
}

func (m *memAssets) FindByHash(ctx context.Context, hash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byHash[hash]; ok {
		return id, nil
	}
	return "", repository.ErrNotFound
}

// register seeds an asset as if it had been uploaded earlier.
func (m *memAssets) register(data []byte) string {
	id, _, err := m.ResolveOrCreate(context.Background(), data)
	if err != nil {
		panic(err)
	}
	return id
}
