package db

import (
	"context"
	"time"

	"github.com/delegate-rewards/referral-payout/internal/db/model"
	"github.com/delegate-rewards/referral-payout/internal/observability/metrics"
)

type DbWithMetrics struct {
	db DbInterface
}

func NewDbWithMetrics(db DbInterface) *DbWithMetrics {
	return &DbWithMetrics{db: db}
}

func (d *DbWithMetrics) Ping(ctx context.Context) error {
	return d.db.Ping(ctx)
}

func (d *DbWithMetrics) SavePayoutBatch(ctx context.Context, batch *model.PayoutBatchDocument) error {
	return d.run("SavePayoutBatch", func() error {
		return d.db.SavePayoutBatch(ctx, batch)
	})
}

func (d *DbWithMetrics) GetLatestPayoutBatches(ctx context.Context, limit int64) (result []model.PayoutBatchDocument, err error) {
	//nolint:errcheck
	d.run("GetLatestPayoutBatches", func() error {
		result, err = d.db.GetLatestPayoutBatches(ctx, limit)
		return err
	})

	return
}

func (d *DbWithMetrics) AcquireRunLock(ctx context.Context, owner string, ttl time.Duration) error {
	return d.run("AcquireRunLock", func() error {
		return d.db.AcquireRunLock(ctx, owner, ttl)
	})
}

func (d *DbWithMetrics) RenewRunLock(ctx context.Context, owner string, ttl time.Duration) error {
	return d.run("RenewRunLock", func() error {
		return d.db.RenewRunLock(ctx, owner, ttl)
	})
}

func (d *DbWithMetrics) ReleaseRunLock(ctx context.Context, owner string) error {
	return d.run("ReleaseRunLock", func() error {
		return d.db.ReleaseRunLock(ctx, owner)
	})
}

func (d *DbWithMetrics) SavePendingWindow(ctx context.Context, window *model.PendingWindowDocument) error {
	return d.run("SavePendingWindow", func() error {
		return d.db.SavePendingWindow(ctx, window)
	})
}

func (d *DbWithMetrics) GetPendingWindow(ctx context.Context) (result *model.PendingWindowDocument, err error) {
	//nolint:errcheck
	d.run("GetPendingWindow", func() error {
		result, err = d.db.GetPendingWindow(ctx)
		return err
	})

	return
}

func (d *DbWithMetrics) DeletePendingWindow(ctx context.Context) error {
	return d.run("DeletePendingWindow", func() error {
		return d.db.DeletePendingWindow(ctx)
	})
}

// run is private method that executes passed lambda function and send metrics data with spent time, method name
// and an error if any. It returns the error from the lambda function for convenience
func (d *DbWithMetrics) run(method string, f func() error) error {
	startTime := time.Now()
	err := f()
	duration := time.Since(startTime)

	metrics.RecordDbLatency(duration, method, err != nil)
	return err
}
