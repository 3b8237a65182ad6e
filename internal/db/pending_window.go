package db

import (
	"context"
	"errors"

	"github.com/delegate-rewards/referral-payout/internal/db/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (db *Database) SavePendingWindow(ctx context.Context, window *model.PendingWindowDocument) error {
	_, err := db.collection(model.PendingWindowCollection).ReplaceOne(
		ctx,
		bson.M{"_id": window.ID},
		window,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (db *Database) GetPendingWindow(ctx context.Context) (*model.PendingWindowDocument, error) {
	var window model.PendingWindowDocument
	err := db.collection(model.PendingWindowCollection).
		FindOne(ctx, bson.M{"_id": model.PayoutPendingWindowID}).
		Decode(&window)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &NotFoundError{
				Key:     model.PayoutPendingWindowID,
				Message: "no pending payout window",
			}
		}
		return nil, err
	}
	return &window, nil
}

func (db *Database) DeletePendingWindow(ctx context.Context) error {
	_, err := db.collection(model.PendingWindowCollection).
		DeleteOne(ctx, bson.M{"_id": model.PayoutPendingWindowID})
	return err
}
