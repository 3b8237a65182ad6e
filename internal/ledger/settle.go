package ledger

import (
	"github.com/delegate-rewards/referral-payout/internal/shares"
	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/delegate-rewards/referral-payout/internal/utils"
	"github.com/shopspring/decimal"
)

// DefaultPrecision is the number of fractional digits payout amounts are rounded to
const DefaultPrecision int32 = 9

// Batch is the set of records a single run settles for [StartBlock, EndBlock]
type Batch struct {
	StartBlock uint64
	EndBlock   uint64
	PoolTotal  decimal.Decimal
	Records    []types.PayoutRecord
	Skipped    []types.SkippedPayout
}

// Total is the sum of every record amount
func (b *Batch) Total() decimal.Decimal {
	total := decimal.Zero
	for _, r := range b.Records {
		total = total.Add(r.Amount)
	}
	return total
}

func (b *Batch) IsEmpty() bool {
	return len(b.Records) == 0
}

// Settle converts adjusted shares into payout amounts:
// round(share * poolTotal - fee, precision) with round half to even.
// Users whose amount is not positive are skipped. Records follow the order of users.
func Settle(
	adjusted shares.Shares,
	users []types.UserAccount,
	poolTotal, fee decimal.Decimal,
	precision int32,
	start, end uint64,
) *Batch {
	batch := &Batch{
		StartBlock: start,
		EndBlock:   end,
		PoolTotal:  poolTotal,
	}

	for _, u := range users {
		share, ok := adjusted[u.Name]
		if !ok {
			continue
		}

		amount := utils.DecimalFromLegacyDec(share).
			Mul(poolTotal).
			Sub(fee).
			RoundBank(precision)

		if !amount.IsPositive() || u.PayoutAddress() == "" {
			batch.Skipped = append(batch.Skipped, types.SkippedPayout{User: u.Name, Amount: amount})
			continue
		}

		batch.Records = append(batch.Records, types.PayoutRecord{
			User:       u.Name,
			Address:    u.PayoutAddress(),
			Amount:     amount,
			StartBlock: start,
			EndBlock:   end,
			PoolTotal:  poolTotal,
		})
	}

	return batch
}
