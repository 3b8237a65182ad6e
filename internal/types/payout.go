package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutRecord is one settled payment. Records are append-only and the
// EndBlock of the last one is the resume marker for the next run.
type PayoutRecord struct {
	User       string
	Address    string
	Amount     decimal.Decimal
	StartBlock uint64
	EndBlock   uint64
	PoolTotal  decimal.Decimal
}

// SkippedPayout is a user that received no record because the amount after the fee was not positive
type SkippedPayout struct {
	User   string
	Amount decimal.Decimal
}

// PendingWindow marks a window whose transfers were started but never settled.
// Until it settles every run must retry exactly this window and pool.
type PendingWindow struct {
	StartBlock uint64
	EndBlock   uint64
	PoolTotal  decimal.Decimal
	// RunID is the run that first attempted the window
	RunID     string
	CreatedAt time.Time
}
