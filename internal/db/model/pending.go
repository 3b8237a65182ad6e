package model

import (
	"fmt"
	"time"

	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/shopspring/decimal"
)

// PayoutPendingWindowID is the single marker of the window awaiting settlement
const PayoutPendingWindowID = "payout"

type PendingWindowDocument struct {
	ID         string    `bson:"_id"`
	StartBlock uint64    `bson:"start_block"`
	EndBlock   uint64    `bson:"end_block"`
	PoolTotal  string    `bson:"pool_total"`
	RunID      string    `bson:"run_id"`
	CreatedAt  time.Time `bson:"created_at"`
}

func NewPendingWindowDocument(window *types.PendingWindow) *PendingWindowDocument {
	return &PendingWindowDocument{
		ID:         PayoutPendingWindowID,
		StartBlock: window.StartBlock,
		EndBlock:   window.EndBlock,
		PoolTotal:  window.PoolTotal.String(),
		RunID:      window.RunID,
		CreatedAt:  window.CreatedAt.UTC(),
	}
}

func (d *PendingWindowDocument) ToPendingWindow() (*types.PendingWindow, error) {
	pool, err := decimal.NewFromString(d.PoolTotal)
	if err != nil {
		return nil, fmt.Errorf("pending window %d-%d: invalid pool total: %w", d.StartBlock, d.EndBlock, err)
	}
	return &types.PendingWindow{
		StartBlock: d.StartBlock,
		EndBlock:   d.EndBlock,
		PoolTotal:  pool,
		RunID:      d.RunID,
		CreatedAt:  d.CreatedAt,
	}, nil
}
