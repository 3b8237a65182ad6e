package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/delegate-rewards/referral-payout/internal/db"
	"github.com/delegate-rewards/referral-payout/internal/db/model"
	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/jonboulle/clockwork"
)

// ErrBatchAlreadyRecorded is returned when a batch for the same start block exists
var ErrBatchAlreadyRecorded = errors.New("payout batch already recorded")

// MongoStore keeps one document per settled batch
type MongoStore struct {
	db    db.DbInterface
	clock clockwork.Clock
}

func NewMongoStore(database db.DbInterface, clock clockwork.Clock) *MongoStore {
	return &MongoStore{db: database, clock: clock}
}

func (s *MongoStore) Append(ctx context.Context, batch *Batch) error {
	doc := model.NewPayoutBatchDocument(batch.Records, s.clock.Now())
	if doc == nil {
		return nil
	}

	err := s.db.SavePayoutBatch(ctx, doc)
	if db.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", ErrBatchAlreadyRecorded, doc.ID)
	}
	return err
}

func (s *MongoStore) LastRecord(ctx context.Context) (*types.PayoutRecord, error) {
	records, err := s.Records(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (s *MongoStore) Records(ctx context.Context, limit int) ([]types.PayoutRecord, error) {
	// every batch holds at least one record, so limit batches always cover limit records
	batches, err := s.db.GetLatestPayoutBatches(ctx, int64(max(limit, 0)))
	if err != nil {
		return nil, err
	}

	var records []types.PayoutRecord
	for i := len(batches) - 1; i >= 0; i-- {
		batchRecords, err := batches[i].ToPayoutRecords()
		if err != nil {
			return nil, err
		}
		records = append(records, batchRecords...)
	}

	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

func (s *MongoStore) SavePending(ctx context.Context, window *types.PendingWindow) error {
	return s.db.SavePendingWindow(ctx, model.NewPendingWindowDocument(window))
}

func (s *MongoStore) Pending(ctx context.Context) (*types.PendingWindow, error) {
	doc, err := s.db.GetPendingWindow(ctx)
	if db.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.ToPendingWindow()
}

func (s *MongoStore) ClearPending(ctx context.Context) error {
	return s.db.DeletePendingWindow(ctx)
}
