package ledger

import (
	"context"
	"fmt"

	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/rs/zerolog/log"
)

// Store is the durable, append-only payout ledger
type Store interface {
	// Append writes every record of batch or none of them
	Append(ctx context.Context, batch *Batch) error
	// LastRecord returns the most recently appended record, nil when the ledger is empty
	LastRecord(ctx context.Context) (*types.PayoutRecord, error)
	// Records returns up to limit of the latest records, oldest first. limit <= 0 returns all.
	Records(ctx context.Context, limit int) ([]types.PayoutRecord, error)
	// SavePending durably records the window whose transfers are about to start,
	// replacing any previous marker
	SavePending(ctx context.Context, window *types.PendingWindow) error
	// Pending returns the unsettled window, nil when there is none
	Pending(ctx context.Context) (*types.PendingWindow, error)
	// ClearPending drops the marker. Clearing an absent marker is not an error.
	ClearPending(ctx context.Context) error
}

type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// ResumePoint returns the first block the next run should cover: the end block of
// the last record plus one, or nil if nothing was ever settled.
func (l *Ledger) ResumePoint(ctx context.Context) (*uint64, error) {
	last, err := l.store.LastRecord(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read last ledger record: %w", err)
	}
	if last == nil {
		return nil, nil
	}

	next := last.EndBlock + 1
	return &next, nil
}

// Commit appends a settled batch. It must only be called once every transfer of
// the batch succeeded. Empty batches leave the ledger untouched.
func (l *Ledger) Commit(ctx context.Context, batch *Batch) error {
	if batch.IsEmpty() {
		log.Ctx(ctx).Info().
			Uint64("start_block", batch.StartBlock).
			Uint64("end_block", batch.EndBlock).
			Msg("Nothing to record, ledger untouched")
		return nil
	}

	if err := l.store.Append(ctx, batch); err != nil {
		return fmt.Errorf("failed to append batch [%d, %d]: %w", batch.StartBlock, batch.EndBlock, err)
	}

	return nil
}

// Pending returns the window an aborted run left unsettled, nil when the ledger
// has moved past it or there is none
func (l *Ledger) Pending(ctx context.Context) (*types.PendingWindow, error) {
	pending, err := l.store.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending window: %w", err)
	}
	if pending == nil {
		return nil, nil
	}

	resume, err := l.ResumePoint(ctx)
	if err != nil {
		return nil, err
	}
	// the batch was recorded but the marker outlived it
	if resume != nil && *resume > pending.StartBlock {
		log.Ctx(ctx).Warn().
			Uint64("start_block", pending.StartBlock).
			Uint64("end_block", pending.EndBlock).
			Uint64("resume_point", *resume).
			Msg("Ignoring pending window already covered by the ledger")
		return nil, nil
	}

	return pending, nil
}

// MarkPending pins window so a failed run is retried with the same bounds and pool
func (l *Ledger) MarkPending(ctx context.Context, window *types.PendingWindow) error {
	if err := l.store.SavePending(ctx, window); err != nil {
		return fmt.Errorf("failed to save pending window [%d, %d]: %w", window.StartBlock, window.EndBlock, err)
	}
	return nil
}

func (l *Ledger) ClearPending(ctx context.Context) error {
	if err := l.store.ClearPending(ctx); err != nil {
		return fmt.Errorf("failed to clear pending window: %w", err)
	}
	return nil
}

func (l *Ledger) Records(ctx context.Context, limit int) ([]types.PayoutRecord, error) {
	return l.store.Records(ctx, limit)
}
