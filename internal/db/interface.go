package db

import (
	"context"
	"time"

	"github.com/delegate-rewards/referral-payout/internal/db/model"
)

type DbInterface interface {
	Ping(ctx context.Context) error
	// SavePayoutBatch inserts a settled batch. A batch starting at an already
	// recorded block is rejected with DuplicateKeyError.
	SavePayoutBatch(ctx context.Context, batch *model.PayoutBatchDocument) error
	// GetLatestPayoutBatches returns up to limit batches, most recent first. limit <= 0 returns all.
	GetLatestPayoutBatches(ctx context.Context, limit int64) ([]model.PayoutBatchDocument, error)
	// AcquireRunLock takes the payout run lock for owner until ttl elapses.
	// A lock held by anyone else is reported as DuplicateKeyError.
	AcquireRunLock(ctx context.Context, owner string, ttl time.Duration) error
	// RenewRunLock pushes the lock expiry ttl into the future. A lock no longer
	// held by owner is reported as NotFoundError.
	RenewRunLock(ctx context.Context, owner string, ttl time.Duration) error
	// ReleaseRunLock drops the lock if owner still holds it
	ReleaseRunLock(ctx context.Context, owner string) error
	// SavePendingWindow upserts the marker of the window awaiting settlement
	SavePendingWindow(ctx context.Context, window *model.PendingWindowDocument) error
	// GetPendingWindow returns the marker or NotFoundError when there is none
	GetPendingWindow(ctx context.Context) (*model.PendingWindowDocument, error)
	// DeletePendingWindow removes the marker if present
	DeletePendingWindow(ctx context.Context) error
}
