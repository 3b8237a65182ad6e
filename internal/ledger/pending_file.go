package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/shopspring/decimal"
)

type pendingFile struct {
	StartBlock uint64          `json:"start_block"`
	EndBlock   uint64          `json:"end_block"`
	PoolTotal  decimal.Decimal `json:"pool_total"`
	RunID      string          `json:"run_id"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PendingPath is the marker file kept next to the csv ledger
func (s *CSVStore) PendingPath() string {
	return s.path + ".pending"
}

func (s *CSVStore) SavePending(ctx context.Context, window *types.PendingWindow) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(pendingFile{
		StartBlock: window.StartBlock,
		EndBlock:   window.EndBlock,
		PoolTotal:  window.PoolTotal,
		RunID:      window.RunID,
		CreatedAt:  window.CreatedAt.UTC(),
	}, "", "  ")
	if err != nil {
		return err
	}

	// written aside and renamed so a crash never leaves a torn marker
	tmp, err := os.CreateTemp(filepath.Dir(s.PendingPath()), filepath.Base(s.PendingPath())+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.PendingPath())
}

func (s *CSVStore) Pending(ctx context.Context) (*types.PendingWindow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.PendingPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var f pendingFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid pending marker %s: %w", s.PendingPath(), err)
	}
	return &types.PendingWindow{
		StartBlock: f.StartBlock,
		EndBlock:   f.EndBlock,
		PoolTotal:  f.PoolTotal,
		RunID:      f.RunID,
		CreatedAt:  f.CreatedAt,
	}, nil
}

func (s *CSVStore) ClearPending(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(s.PendingPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
