package db

import (
	"context"
	"time"

	"github.com/delegate-rewards/referral-payout/internal/db/model"
	"go.mongodb.org/mongo-driver/bson"
)

func (db *Database) AcquireRunLock(ctx context.Context, owner string, ttl time.Duration) error {
	now := time.Now().UTC()
	doc := &model.RunLockDocument{
		ID:         model.PayoutRunLockID,
		Owner:      owner,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}

	// the ttl monitor runs about once a minute so expired locks may still be present
	_, err := db.collection(model.RunLockCollection).DeleteOne(ctx, bson.M{
		"_id":        model.PayoutRunLockID,
		"expires_at": bson.M{"$lte": now},
	})
	if err != nil {
		return err
	}

	_, err = db.collection(model.RunLockCollection).InsertOne(ctx, doc)
	if err != nil {
		if isDuplicateKey(err) {
			return &DuplicateKeyError{
				Key:     model.PayoutRunLockID,
				Message: "payout run lock is held",
			}
		}
		return err
	}
	return nil
}

func (db *Database) RenewRunLock(ctx context.Context, owner string, ttl time.Duration) error {
	res, err := db.collection(model.RunLockCollection).UpdateOne(ctx,
		bson.M{
			"_id":   model.PayoutRunLockID,
			"owner": owner,
		},
		bson.M{"$set": bson.M{"expires_at": time.Now().UTC().Add(ttl)}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return &NotFoundError{
			Key:     owner,
			Message: "payout run lock is not held by owner",
		}
	}
	return nil
}

func (db *Database) ReleaseRunLock(ctx context.Context, owner string) error {
	res, err := db.collection(model.RunLockCollection).DeleteOne(ctx, bson.M{
		"_id":   model.PayoutRunLockID,
		"owner": owner,
	})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return &NotFoundError{
			Key:     owner,
			Message: "payout run lock is not held by owner",
		}
	}
	return nil
}
