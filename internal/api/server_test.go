package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/detective-board/caseshare/internal/config"
	"github.com/detective-board/caseshare/internal/repository"
	"github.com/detective-board/caseshare/internal/s3storage"
	"github.com/detective-board/caseshare/internal/service"
)

// miniCaseRepo implements service.CaseRepo for handler-level tests.
type miniCaseRepo struct {
	cases map[string]*repository.Case // by share code
}

func (m *miniCaseRepo) Create(ctx context.Context, c *repository.Case) error {
	c.ID = fmt.Sprintf("case-%d", len(m.cases)+1)
	m.cases[c.ShareCode] = c
	return nil
}

func (m *miniCaseRepo) GetByCode(ctx context.Context, code string) (*repository.Case, error) {
	if c, ok := m.cases[code]; ok {
		return c, nil
	}
	return nil, repository.ErrNotFound
}

func (m *miniCaseRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	_, ok := m.cases[code]
	return ok, nil
}

func (m *miniCaseRepo) LinkAsset(ctx context.Context, caseID, assetID string) error {
	return nil
}

func (m *miniCaseRepo) AssetsForCase(ctx context.Context, caseID string) ([]repository.LinkedAsset, error) {
	return nil, nil
}

type stubObjects struct {
	objects map[string]string // path -> body
	signed  string
}

func (f *stubObjects) Download(ctx context.Context, objectPath string) ([]byte, string, error) {
	if body, ok := f.objects[objectPath]; ok {
		return []byte(body), "application/pdf", nil
	}
	return nil, "", s3storage.ErrObjectNotFound
}

func (f *stubObjects) Presign(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	return f.signed, nil
}

type stubAssets struct {
	byHash map[string]*repository.Asset
}

func (f *stubAssets) FindByHash(ctx context.Context, hash string) (*repository.Asset, error) {
	if a, ok := f.byHash[hash]; ok {
		return a, nil
	}
	return nil, repository.ErrNotFound
}

func newTestServer(repo *miniCaseRepo, objects *stubObjects, assets *stubAssets) *httptest.Server {
	cfg := &config.Config{
		ProxyTimeout:   5 * time.Second,
		MaxUploadBytes: 1 << 20,
		SignedURLTTL:   time.Minute,
	}
	logger := zap.NewNop()
	share := service.NewShareService(repo, nil, 7*24*time.Hour, logger)
	imports := service.NewImportService(repo)
	srv := New(cfg, share, imports, assets, objects, logger)
	return httptest.NewServer(srv.Routes())
}

func newFixture() (*miniCaseRepo, *stubObjects, *stubAssets) {
	return &miniCaseRepo{cases: map[string]*repository.Case{}},
		&stubObjects{objects: map[string]string{}},
		&stubAssets{byHash: map[string]*repository.Asset{}}
}

func TestImportEndpointStatusMapping(t *testing.T) {
	repo, objects, assets := newFixture()
	repo.cases["LIVE01"] = &repository.Case{
		ID:        "case-live",
		ShareCode: "LIVE01",
		Data:      []byte(`{"title":"ok"}`),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	repo.cases["GONE01"] = &repository.Case{
		ID:        "case-gone",
		ShareCode: "GONE01",
		Data:      []byte(`{}`),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	ts := newTestServer(repo, objects, assets)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/import/LIVE01")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		CaseData json.RawMessage `json:"case_data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.JSONEq(t, `{"title":"ok"}`, string(body.CaseData))

	resp, err = http.Get(ts.URL + "/import/GONE01")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/import/NOSUCH")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestShareEndpointMissingCaseData(t *testing.T) {
	repo, objects, assets := newFixture()
	ts := newTestServer(repo, objects, assets)
	defer ts.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.Close())

	resp, err := http.Post(ts.URL+"/share", w.FormDataContentType(), &buf)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestShareEndpointSuccess(t *testing.T) {
	repo, objects, assets := newFixture()
	ts := newTestServer(repo, objects, assets)
	defer ts.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	field, err := w.CreateFormField("case_data")
	require.NoError(t, err)
	_, err = field.Write([]byte(`{"title":"wired"}`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	resp, err := http.Post(ts.URL+"/share", w.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status    string `json:"status"`
		ShareCode string `json:"share_code"`
		ExpiresAt string `json:"expires_at"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "success", body.Status)
	assert.Len(t, body.ShareCode, 6)
	_, err = time.Parse(time.RFC3339, body.ExpiresAt)
	assert.NoError(t, err)
}

func TestStorageEndpoint(t *testing.T) {
	repo, objects, assets := newFixture()
	objects.objects["ab/cd/abcd"] = "stored bytes"
	ts := newTestServer(repo, objects, assets)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/storage/ab/cd/abcd")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))

	resp, err = http.Get(ts.URL + "/storage/no/pe/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSignedURLEndpoint(t *testing.T) {
	repo, objects, assets := newFixture()
	hash := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	assets.byHash[hash] = &repository.Asset{ID: "asset-1", StoragePath: "01/23/" + hash}
	objects.signed = "https://signed.example/object"
	ts := newTestServer(repo, objects, assets)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/assets/" + hash + "/signed-url")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "https://signed.example/object", body["url"])

	// Well-formed but unregistered hash, and a malformed one.
	other := "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	resp, err = http.Get(ts.URL + "/assets/" + other + "/signed-url")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/assets/unknownhash/signed-url")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
