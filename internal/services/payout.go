package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/delegate-rewards/referral-payout/internal/clients/transferclient"
	"github.com/delegate-rewards/referral-payout/internal/ledger"
	"github.com/delegate-rewards/referral-payout/internal/observability/metrics"
	"github.com/delegate-rewards/referral-payout/internal/observability/tracing"
	"github.com/delegate-rewards/referral-payout/internal/shares"
	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/delegate-rewards/referral-payout/internal/waterfall"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type RunOptions struct {
	// EndBlock caps the window, the latest snapshot block is used when nil
	EndBlock *uint64
	// DryRun computes and transfers through the executor but never touches the ledger
	DryRun bool
}

// Plan is everything a run computes before any transfer is attempted
type Plan struct {
	RunID      string
	StartBlock uint64
	EndBlock   uint64
	// Snapshots is the number of snapshots inside the window
	Snapshots int
	Baseline  shares.Shares
	Adjusted  shares.Shares
	Batch     *ledger.Batch
	// ZeroWindow is set when no snapshot fell in the window, every share is then zero
	ZeroWindow bool
	// Pending is set when the run retries the window an aborted run left unsettled
	Pending *types.PendingWindow
}

type Result struct {
	Plan  *Plan
	State types.RunState
}

// Preview computes the payouts of the next run without transferring or recording anything
func (s *Service) Preview(ctx context.Context, poolTotal decimal.Decimal, opts RunOptions) (*Plan, error) {
	id := uuid.New().String()
	tracker := newRunTracker(id, false)
	ctx = tracing.InjectRunID(ctx, id)

	plan, err := s.plan(ctx, tracker, poolTotal, opts)
	if err != nil {
		tracker.abort(ctx)
		return nil, err
	}
	return plan, nil
}

// Payout runs one full batch: aggregate the window after the resume point,
// redistribute, transfer and record. The ledger is written only when every
// transfer of the batch was confirmed.
func (s *Service) Payout(ctx context.Context, poolTotal decimal.Decimal, opts RunOptions) (*Result, error) {
	id := uuid.New().String()
	tracker := newRunTracker(id, !opts.DryRun)
	ctx = tracing.InjectRunID(ctx, id)
	log := log.Ctx(ctx)

	plan, err := s.plan(ctx, tracker, poolTotal, opts)
	if err != nil {
		tracker.abort(ctx)
		return nil, err
	}

	if err := tracker.transition(ctx, types.StateAwaitingTransferResult); err != nil {
		return nil, err
	}

	// pinned before the first transfer so a retry reuses the same idempotency keys
	if !opts.DryRun && plan.Pending == nil && !plan.Batch.IsEmpty() {
		err := s.ledger.MarkPending(ctx, &types.PendingWindow{
			StartBlock: plan.StartBlock,
			EndBlock:   plan.EndBlock,
			PoolTotal:  poolTotal,
			RunID:      plan.RunID,
			CreatedAt:  s.clock.Now(),
		})
		if err != nil {
			tracker.abort(ctx)
			return &Result{Plan: plan, State: tracker.state}, err
		}
	}

	if err := s.transferBatch(ctx, plan); err != nil {
		tracker.abort(ctx)
		return &Result{Plan: plan, State: tracker.state}, err
	}

	if opts.DryRun {
		log.Info().Msg("Dry run, ledger untouched")
	} else if err := s.ledger.Commit(ctx, plan.Batch); err != nil {
		// the pending marker stays, so the next run replays the same transfers
		log.Error().Err(err).
			Uint64("start_block", plan.StartBlock).
			Uint64("end_block", plan.EndBlock).
			Msg("Transfers confirmed but ledger write failed, rerun to record the window")
		tracker.abort(ctx)
		return &Result{Plan: plan, State: tracker.state}, err
	}

	if !opts.DryRun {
		if err := s.ledger.ClearPending(ctx); err != nil {
			log.Error().Err(err).Msg("Batch recorded but pending window marker was not cleared")
		}
	}

	if err := tracker.transition(ctx, types.StateSettled); err != nil {
		return nil, err
	}

	total := plan.Batch.Total()
	if !opts.DryRun {
		metrics.RecordSettledBatch(len(plan.Batch.Records), total.InexactFloat64())
		metrics.RecordPayoutsSkipped(len(plan.Batch.Skipped))
		if !plan.Batch.IsEmpty() {
			metrics.RecordResumePoint(plan.EndBlock + 1)
		}
	}

	log.Info().
		Uint64("start_block", plan.StartBlock).
		Uint64("end_block", plan.EndBlock).
		Int("records", len(plan.Batch.Records)).
		Int("skipped", len(plan.Batch.Skipped)).
		Stringer("total", total).
		Msg("Payout run settled")

	return &Result{Plan: plan, State: tracker.state}, nil
}

func (s *Service) plan(
	ctx context.Context, tracker *runTracker, poolTotal decimal.Decimal, opts RunOptions,
) (*Plan, error) {
	log := log.Ctx(ctx)

	if poolTotal.IsNegative() {
		return nil, fmt.Errorf("pool total must not be negative, got %s", poolTotal)
	}

	if err := tracker.transition(ctx, types.StateAggregating); err != nil {
		return nil, err
	}

	resume, err := s.ledger.ResumePoint(ctx)
	if err != nil {
		return nil, err
	}

	pending, err := s.ledger.Pending(ctx)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		if opts.EndBlock != nil && *opts.EndBlock != pending.EndBlock {
			return nil, fmt.Errorf("%w: window [%d, %d] is unsettled, end block %d requested",
				types.ErrPendingWindowMismatch, pending.StartBlock, pending.EndBlock, *opts.EndBlock)
		}
		if !poolTotal.Equal(pending.PoolTotal) {
			return nil, fmt.Errorf("%w: window [%d, %d] is unsettled with pool %s, pool %s requested",
				types.ErrPendingWindowMismatch, pending.StartBlock, pending.EndBlock, pending.PoolTotal, poolTotal)
		}
	}

	var afterBlock *uint64
	if resume != nil && *resume > 0 {
		last := *resume - 1
		afterBlock = &last
	}

	seq, err := s.reader.Read(ctx, afterBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}

	plan := &Plan{RunID: tracker.id, Pending: pending}
	if pending != nil {
		plan.StartBlock = pending.StartBlock
		plan.EndBlock = pending.EndBlock
		log.Warn().
			Uint64("start_block", pending.StartBlock).
			Uint64("end_block", pending.EndBlock).
			Str("first_run_id", pending.RunID).
			Msg("Retrying unsettled window of an aborted run")
	} else {
		switch {
		case resume != nil:
			plan.StartBlock = *resume
		default:
			if first, ok := seq.First(); ok {
				plan.StartBlock = first.BlockNumber
			}
		}
		switch {
		case opts.EndBlock != nil:
			plan.EndBlock = *opts.EndBlock
		default:
			if last, ok := seq.Last(); ok {
				plan.EndBlock = last.BlockNumber
			} else {
				plan.EndBlock = plan.StartBlock
			}
		}
	}
	if plan.EndBlock < plan.StartBlock {
		return nil, fmt.Errorf("%w: end block %d is before start block %d",
			types.ErrInvalidWindow, plan.EndBlock, plan.StartBlock)
	}

	accounts := s.registry.Accounts()
	plan.Baseline, plan.Snapshots = shares.Aggregate(accounts, seq.All(), plan.StartBlock, plan.EndBlock)
	if plan.Snapshots == 0 {
		plan.ZeroWindow = true
		log.Warn().
			Err(types.ErrZeroWindowAggregate).
			Uint64("start_block", plan.StartBlock).
			Uint64("end_block", plan.EndBlock).
			Msg("No snapshots in window, every share is zero")
	}

	if err := tracker.transition(ctx, types.StateCalculating); err != nil {
		return nil, err
	}

	plan.Adjusted = waterfall.Redistribute(plan.Baseline, s.graph)
	plan.Batch = ledger.Settle(
		plan.Adjusted,
		accounts,
		poolTotal,
		s.cfg.Payout.FeeDecimal(),
		s.cfg.Payout.Precision,
		plan.StartBlock,
		plan.EndBlock,
	)

	for _, skipped := range plan.Batch.Skipped {
		log.Info().
			Str("user", skipped.User).
			Stringer("amount", skipped.Amount).
			Msg("Skipping payout, amount after fee is not positive")
	}

	log.Info().
		Uint64("start_block", plan.StartBlock).
		Uint64("end_block", plan.EndBlock).
		Int("snapshots", plan.Snapshots).
		Int("payouts", len(plan.Batch.Records)).
		Stringer("pool_total", poolTotal).
		Msg("Payout plan computed")

	return plan, nil
}

// transferBatch attempts every transfer of the plan, even after a failure, so
// the operator sees the full set of failures in one run
func (s *Service) transferBatch(ctx context.Context, plan *Plan) error {
	log := log.Ctx(ctx)

	var failures []types.TransferFailure
	for _, record := range plan.Batch.Records {
		if err := ctx.Err(); err != nil {
			failures = append(failures, types.TransferFailure{
				User: record.User, Address: record.Address, Amount: record.Amount, Err: err,
			})
			continue
		}

		outcome, err := s.transferer.AttemptTransfer(ctx, transferclient.Transfer{
			RunID:      plan.RunID,
			StartBlock: record.StartBlock,
			EndBlock:   record.EndBlock,
			User:       record.User,
			Address:    record.Address,
			Amount:     record.Amount,
		})
		if err == nil && outcome != transferclient.Success {
			err = fmt.Errorf("transfer outcome %s", outcome)
		}
		if err != nil {
			log.Error().Err(err).
				Str("user", record.User).
				Str("address", record.Address).
				Stringer("amount", record.Amount).
				Msg("Transfer failed")
			failures = append(failures, types.TransferFailure{
				User: record.User, Address: record.Address, Amount: record.Amount, Err: err,
			})
		}
	}

	if len(failures) > 0 {
		return &types.TransferBatchIncompleteError{
			Attempted: len(plan.Batch.Records),
			Failures:  failures,
		}
	}
	return nil
}

// IsRetriable reports whether a failed run can simply be run again for the same window
func IsRetriable(err error) bool {
	return errors.Is(err, types.ErrTransferBatchIncomplete) || errors.Is(err, types.ErrRunInProgress)
}
