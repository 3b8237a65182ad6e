package transferclient

import (
	"context"
	"time"

	"github.com/delegate-rewards/referral-payout/internal/observability/metrics"
)

type transfererWithMetrics struct {
	transferer Transferer
	executor   string
}

func NewTransfererWithMetrics(transferer Transferer, executor string) Transferer {
	return &transfererWithMetrics{transferer: transferer, executor: executor}
}

func (t *transfererWithMetrics) AttemptTransfer(ctx context.Context, transfer Transfer) (Outcome, error) {
	startTime := time.Now()
	outcome, err := t.transferer.AttemptTransfer(ctx, transfer)
	duration := time.Since(startTime)

	metrics.RecordTransferLatency(duration, t.executor, err != nil || outcome != Success)
	return outcome, err
}
