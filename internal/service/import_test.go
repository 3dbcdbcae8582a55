package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/detective-board/caseshare/internal/hashing"
)

func TestImportRoundTrip(t *testing.T) {
	share, repo, _ := newShareFixture()
	imports := NewImportService(repo)
	pdfA := []byte("%PDF-1.4 exhibit a")
	pdfB := []byte("%PDF-1.4 exhibit b")

	res, err := share.Share(context.Background(),
		buildMultipart(t, `{"title":"round trip","pinned":[1,2]}`, pdfA, pdfB))
	require.NoError(t, err)

	got, err := imports.Import(context.Background(), res.ShareCode)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"round trip","pinned":[1,2]}`, string(got.CaseData))
	require.Len(t, got.Assets, 2)

	// Assets come back in link order with proxy URLs, never upstream ones.
	hashA := hashing.Sum(pdfA)
	assert.Equal(t, hashA, got.Assets[0].Hash)
	assert.Equal(t, "/storage/"+hashing.ObjectPath(hashA), got.Assets[0].URL)
	assert.Equal(t, "application/pdf", got.Assets[0].Mime)
	assert.Equal(t, hashing.Sum(pdfB), got.Assets[1].Hash)
}

func TestImportUnknownCode(t *testing.T) {
	_, repo, _ := newShareFixture()
	imports := NewImportService(repo)

	_, err := imports.Import(context.Background(), "NOPE42")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImportExpiredCode(t *testing.T) {
	share, repo, _ := newShareFixture()
	imports := NewImportService(repo)
	share.now = func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }

	res, err := share.Share(context.Background(), buildMultipart(t, `{}`))
	require.NoError(t, err)

	_, err = imports.Import(context.Background(), res.ShareCode)
	assert.ErrorIs(t, err, ErrExpired, "expired must be distinct from not found")
}
