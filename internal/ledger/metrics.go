package ledger

import (
	"context"
	"time"

	"github.com/delegate-rewards/referral-payout/internal/observability/metrics"
	"github.com/delegate-rewards/referral-payout/internal/types"
)

type StoreWithMetrics struct {
	store Store
}

func NewStoreWithMetrics(store Store) *StoreWithMetrics {
	return &StoreWithMetrics{store: store}
}

func (s *StoreWithMetrics) Append(ctx context.Context, batch *Batch) error {
	return s.run("Append", func() error {
		return s.store.Append(ctx, batch)
	})
}

func (s *StoreWithMetrics) LastRecord(ctx context.Context) (result *types.PayoutRecord, err error) {
	//nolint:errcheck
	s.run("LastRecord", func() error {
		result, err = s.store.LastRecord(ctx)
		return err
	})
	return
}

func (s *StoreWithMetrics) Records(ctx context.Context, limit int) (result []types.PayoutRecord, err error) {
	//nolint:errcheck
	s.run("Records", func() error {
		result, err = s.store.Records(ctx, limit)
		return err
	})
	return
}

func (s *StoreWithMetrics) SavePending(ctx context.Context, window *types.PendingWindow) error {
	return s.run("SavePending", func() error {
		return s.store.SavePending(ctx, window)
	})
}

func (s *StoreWithMetrics) Pending(ctx context.Context) (result *types.PendingWindow, err error) {
	//nolint:errcheck
	s.run("Pending", func() error {
		result, err = s.store.Pending(ctx)
		return err
	})
	return
}

func (s *StoreWithMetrics) ClearPending(ctx context.Context) error {
	return s.run("ClearPending", func() error {
		return s.store.ClearPending(ctx)
	})
}

// run executes f and records its latency labelled with method and failure status
func (s *StoreWithMetrics) run(method string, f func() error) error {
	startTime := time.Now()
	err := f()
	duration := time.Since(startTime)

	metrics.RecordDbLatency(duration, method, err != nil)
	return err
}
