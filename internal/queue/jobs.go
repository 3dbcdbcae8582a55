package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// InspectAssetTask is scheduled when a new PDF asset is registered.
	InspectAssetTask = "asset:inspect"
	// PurgeExpiredTask runs periodically to clear out expired cases.
	PurgeExpiredTask = "case:purge_expired"
)

// InspectPayload tells the worker which stored object to look at.
type InspectPayload struct {
	AssetID     string `json:"asset_id"`
	StoragePath string `json:"storage_path"`
}

// Client wraps an asynq client behind the enqueue surface the asset store
// expects.
type Client struct {
	inner *asynq.Client
}

// NewClient constructs a Client.
func NewClient(inner *asynq.Client) *Client {
	return &Client{inner: inner}
}

// EnqueueInspect schedules a best-effort inspection of a newly created
// asset.
func (c *Client) EnqueueInspect(ctx context.Context, assetID, storagePath string) error {
	data, err := json.Marshal(InspectPayload{AssetID: assetID, StoragePath: storagePath})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(InspectAssetTask, data)
	if _, err := c.inner.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("enqueue inspect task: %w", err)
	}
	return nil
}

// NewPurgeTask builds the periodic purge task for the scheduler.
func NewPurgeTask() *asynq.Task {
	return asynq.NewTask(PurgeExpiredTask, nil)
}
