package services

import (
	"context"
	"fmt"

	"github.com/delegate-rewards/referral-payout/internal/observability/metrics"
	"github.com/delegate-rewards/referral-payout/internal/utils/poller"
	"github.com/rs/zerolog/log"
)

// LedgerStatus is what the read-only api reports about pending work
type LedgerStatus struct {
	ResumePoint *uint64 `json:"resume_point"`
	LatestBlock *uint64 `json:"latest_block"`
	// PendingBlocks is the number of blocks between the resume point and the latest snapshot
	PendingBlocks uint64 `json:"pending_blocks"`
}

// StartStatsPoller keeps the snapshot and ledger gauges fresh
func (s *Service) StartStatsPoller(ctx context.Context) *poller.Poller {
	statsPoller := poller.NewPoller(
		"stats",
		s.cfg.Server.PollInterval,
		s.clock,
		metrics.RecordPollerDuration("stats", s.updateStats),
	)
	go statsPoller.Start(ctx)
	return statsPoller
}

func (s *Service) Status(ctx context.Context) (*LedgerStatus, error) {
	resume, err := s.ledger.ResumePoint(ctx)
	if err != nil {
		return nil, err
	}

	latest, ok, err := s.reader.LatestBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest snapshot block: %w", err)
	}

	status := &LedgerStatus{ResumePoint: resume}
	if !ok {
		return status, nil
	}
	status.LatestBlock = &latest

	switch {
	case resume == nil:
		first, _, err := s.firstBlock(ctx)
		if err != nil {
			return nil, err
		}
		status.PendingBlocks = latest - first + 1
	case latest >= *resume:
		status.PendingBlocks = latest - *resume + 1
	}
	return status, nil
}

func (s *Service) firstBlock(ctx context.Context) (uint64, bool, error) {
	seq, err := s.reader.Read(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read snapshots: %w", err)
	}
	first, ok := seq.First()
	return first.BlockNumber, ok, nil
}

func (s *Service) updateStats(ctx context.Context) error {
	status, err := s.Status(ctx)
	if err != nil {
		return err
	}

	if status.LatestBlock != nil {
		metrics.RecordLatestSnapshotBlock(*status.LatestBlock)
	}
	if status.ResumePoint != nil {
		metrics.RecordResumePoint(*status.ResumePoint)
	}
	metrics.RecordPendingBlocks(status.PendingBlocks)

	log.Ctx(ctx).Debug().
		Uint64("pending_blocks", status.PendingBlocks).
		Msg("Updated ledger stats")
	return nil
}
