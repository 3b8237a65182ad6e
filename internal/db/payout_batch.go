package db

import (
	"context"

	"github.com/delegate-rewards/referral-payout/internal/db/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (db *Database) SavePayoutBatch(ctx context.Context, batch *model.PayoutBatchDocument) error {
	_, err := db.collection(model.PayoutBatchCollection).
		InsertOne(ctx, batch)
	if err != nil {
		if isDuplicateKey(err) {
			return &DuplicateKeyError{
				Key:     batch.ID,
				Message: "payout batch already exists",
			}
		}
		return err
	}

	return nil
}

func (db *Database) GetLatestPayoutBatches(ctx context.Context, limit int64) ([]model.PayoutBatchDocument, error) {
	opts := options.Find().SetSort(bson.D{{Key: "end_block", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := db.collection(model.PayoutBatchCollection).
		Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var batches []model.PayoutBatchDocument
	if err := cursor.All(ctx, &batches); err != nil {
		return nil, err
	}
	return batches, nil
}
