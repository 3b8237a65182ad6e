package model

import "time"

// PayoutRunLockID is the single lock document guarding payout runs
const PayoutRunLockID = "payout"

type RunLockDocument struct {
	ID         string    `bson:"_id"`
	Owner      string    `bson:"owner"`
	AcquiredAt time.Time `bson:"acquired_at"`
	// expired locks are removed by the ttl index
	ExpiresAt time.Time `bson:"expires_at"`
}
