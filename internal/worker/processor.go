package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	pdfutil "github.com/detective-board/caseshare/internal/pdf"
	"github.com/detective-board/caseshare/internal/queue"
	"github.com/detective-board/caseshare/internal/repository"
	"github.com/detective-board/caseshare/internal/s3storage"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	assets *repository.AssetRepository
	cases  *repository.CaseRepository
	store  *s3storage.Storage
	logger *zap.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(assets *repository.AssetRepository, cases *repository.CaseRepository, store *s3storage.Storage, logger *zap.Logger) *Processor {
	return &Processor{assets: assets, cases: cases, store: store, logger: logger}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.InspectAssetTask, p.handleInspect)
	mux.HandleFunc(queue.PurgeExpiredTask, p.handlePurge)
	return mux
}

// handleInspect downloads a stored PDF and records its page count. The
// result is advisory metadata; a failure here never affects the share that
// created the asset.
func (p *Processor) handleInspect(ctx context.Context, task *asynq.Task) error {
	var payload queue.InspectPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	data, _, err := p.store.Download(ctx, payload.StoragePath)
	if err != nil {
		return fmt.Errorf("download asset %s: %w", payload.AssetID, err)
	}
	pages, err := pdfutil.PageCount(data)
	if err != nil {
		// Not every upload that sniffs as PDF parses as one; give up quietly.
		p.logger.Warn("inspect asset", zap.String("assetId", payload.AssetID), zap.Error(err))
		return nil
	}
	if err := p.assets.SetPages(ctx, payload.AssetID, pages); err != nil {
		return err
	}
	p.logger.Info("asset inspected",
		zap.String("assetId", payload.AssetID),
		zap.Int("pages", pages))
	return nil
}

// handlePurge deletes cases whose expiry has passed. Assets are left alone;
// identical content may be shared again later.
func (p *Processor) handlePurge(ctx context.Context, task *asynq.Task) error {
	n, err := p.cases.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if n > 0 {
		p.logger.Info("purged expired cases", zap.Int64("count", n))
	}
	return nil
}
