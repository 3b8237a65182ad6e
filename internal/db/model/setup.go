package model

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/delegate-rewards/referral-payout/internal/config"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	PayoutBatchCollection   = "payout_batches"
	RunLockCollection       = "run_locks"
	PendingWindowCollection = "pending_windows"
)

type index struct {
	Indexes map[string]int
	Unique  bool
	// ExpireAfterSeconds turns the index into a TTL index when not nil
	ExpireAfterSeconds *int32
}

func ttl(seconds int32) *int32 {
	return &seconds
}

var collections = map[string][]index{
	PayoutBatchCollection: {
		{Indexes: map[string]int{"start_block": 1}, Unique: true},
		{Indexes: map[string]int{"end_block": -1}, Unique: false},
	},
	RunLockCollection: {
		{Indexes: map[string]int{"expires_at": 1}, Unique: false, ExpireAfterSeconds: ttl(0)},
	},
	// keyed by _id only
	PendingWindowCollection: nil,
}

// Setup creates every collection together with its indexes
func Setup(ctx context.Context, cfg *config.DbConfig) error {
	credential := options.Credential{
		Username: cfg.Username,
		Password: cfg.Password,
	}
	clientOps := options.Client().ApplyURI(cfg.Address).SetAuth(credential)
	client, err := mongo.Connect(ctx, clientOps)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	defer func() {
		if err := client.Disconnect(ctx); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Failed to disconnect from MongoDB")
		}
	}()

	database := client.Database(cfg.DbName)
	for name, idxs := range collections {
		if err := createCollection(ctx, database, name); err != nil {
			return err
		}
		for _, idx := range idxs {
			if err := createIndex(ctx, database, name, idx); err != nil {
				return err
			}
		}
	}

	log.Ctx(ctx).Info().Msg("Collections and indexes created successfully")
	return nil
}

func createCollection(ctx context.Context, database *mongo.Database, name string) error {
	existing, err := database.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	if err := database.CreateCollection(ctx, name); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	log.Ctx(ctx).Debug().Str("collection", name).Msg("Collection created")
	return nil
}

func createIndex(ctx context.Context, database *mongo.Database, collectionName string, idx index) error {
	// sorted so the resulting compound key does not depend on map iteration
	keys := bson.D{}
	for _, field := range sortedKeys(idx.Indexes) {
		keys = append(keys, bson.E{Key: field, Value: idx.Indexes[field]})
	}

	opts := options.Index().SetUnique(idx.Unique)
	if idx.ExpireAfterSeconds != nil {
		opts.SetExpireAfterSeconds(*idx.ExpireAfterSeconds)
	}

	_, err := database.Collection(collectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keys,
		Options: opts,
	})
	if err != nil {
		return fmt.Errorf("failed to create index on %s: %w", collectionName, err)
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
