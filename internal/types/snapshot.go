package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

// NominatorStake is the raw stake of one nominator address
type NominatorStake struct {
	Address string
	Stake   decimal.Decimal
}

// NominatorShare is the fraction of the non-owner stake held by one address
type NominatorShare struct {
	Address string
	Percent sdkmath.LegacyDec
}

// StakeSnapshot is one observation of the delegate at a block. It is never mutated after parsing.
type StakeSnapshot struct {
	Timestamp        time.Time
	BlockNumber      uint64
	Hotkey           string
	TotalStake       decimal.Decimal
	TotalDailyReturn decimal.Decimal
	Take             decimal.Decimal
	Nominators       []NominatorStake
	NominatorShares  []NominatorShare
}

// InWindow reports whether the snapshot block lies in [start, end]
func (s StakeSnapshot) InWindow(start, end uint64) bool {
	return start <= s.BlockNumber && s.BlockNumber <= end
}
