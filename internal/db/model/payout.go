package model

import (
	"fmt"
	"time"

	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/shopspring/decimal"
)

// PayoutBatchDocument holds every record settled by one run. Amounts are kept
// as decimal strings so no precision is lost to float64.
type PayoutBatchDocument struct {
	ID         string                 `bson:"_id"`
	StartBlock uint64                 `bson:"start_block"`
	EndBlock   uint64                 `bson:"end_block"`
	PoolTotal  string                 `bson:"pool_total"`
	Records    []PayoutRecordDocument `bson:"records"`
	CreatedAt  time.Time              `bson:"created_at"`
}

type PayoutRecordDocument struct {
	User    string `bson:"user"`
	Address string `bson:"address"`
	Amount  string `bson:"amount"`
}

func BatchID(startBlock, endBlock uint64) string {
	return fmt.Sprintf("%d-%d", startBlock, endBlock)
}

func NewPayoutBatchDocument(records []types.PayoutRecord, createdAt time.Time) *PayoutBatchDocument {
	if len(records) == 0 {
		return nil
	}

	first := records[0]
	doc := &PayoutBatchDocument{
		ID:         BatchID(first.StartBlock, first.EndBlock),
		StartBlock: first.StartBlock,
		EndBlock:   first.EndBlock,
		PoolTotal:  first.PoolTotal.String(),
		Records:    make([]PayoutRecordDocument, 0, len(records)),
		CreatedAt:  createdAt.UTC(),
	}
	for _, r := range records {
		doc.Records = append(doc.Records, PayoutRecordDocument{
			User:    r.User,
			Address: r.Address,
			Amount:  r.Amount.String(),
		})
	}
	return doc
}

// ToPayoutRecords expands the batch back into ledger records
func (d *PayoutBatchDocument) ToPayoutRecords() ([]types.PayoutRecord, error) {
	pool, err := decimal.NewFromString(d.PoolTotal)
	if err != nil {
		return nil, fmt.Errorf("batch %s: invalid pool total: %w", d.ID, err)
	}

	records := make([]types.PayoutRecord, 0, len(d.Records))
	for _, r := range d.Records {
		amount, err := decimal.NewFromString(r.Amount)
		if err != nil {
			return nil, fmt.Errorf("batch %s: invalid amount for %s: %w", d.ID, r.User, err)
		}
		records = append(records, types.PayoutRecord{
			User:       r.User,
			Address:    r.Address,
			Amount:     amount,
			StartBlock: d.StartBlock,
			EndBlock:   d.EndBlock,
			PoolTotal:  pool,
		})
	}
	return records, nil
}
