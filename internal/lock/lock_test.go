package lock

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/delegate-rewards/referral-payout/internal/db"
	"github.com/delegate-rewards/referral-payout/internal/db/model"
	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLock(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "payouts.csv.lock")

	first := NewFileLock(path)
	second := NewFileLock(path)

	require.NoError(t, first.Lock(ctx))

	err := second.Lock(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRunInProgress)

	require.NoError(t, first.Renew(ctx))
	assert.ErrorIs(t, second.Renew(ctx), ErrLockLost)

	require.NoError(t, first.Unlock(ctx))
	assert.ErrorIs(t, first.Renew(ctx), ErrLockLost)
	require.NoError(t, second.Lock(ctx))
	require.NoError(t, second.Unlock(ctx))
}

type lockDb struct {
	db.DbInterface
	mu       sync.Mutex
	owner    string
	ttl      time.Duration
	renewals int
	renewErr error
}

func (l *lockDb) AcquireRunLock(_ context.Context, owner string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner != "" {
		return &db.DuplicateKeyError{Key: model.PayoutRunLockID, Message: "payout run lock is held"}
	}
	l.owner = owner
	l.ttl = ttl
	return nil
}

func (l *lockDb) RenewRunLock(_ context.Context, owner string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.renewals++
	if l.renewErr != nil {
		return l.renewErr
	}
	if l.owner != owner {
		return &db.NotFoundError{Key: owner, Message: "payout run lock is not held by owner"}
	}
	l.ttl = ttl
	return nil
}

func (l *lockDb) renewCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.renewals
}

// takeOver simulates the lock expiring and another run acquiring it
func (l *lockDb) takeOver(owner string, renewErr error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.owner = owner
	l.renewErr = renewErr
}

func (l *lockDb) ReleaseRunLock(_ context.Context, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner != owner {
		return &db.NotFoundError{Key: owner, Message: "payout run lock is not held by owner"}
	}
	l.owner = ""
	return nil
}

func TestMongoLock(t *testing.T) {
	ctx := context.Background()
	store := &lockDb{}

	first := NewMongoLock(store, "run-1", 0)
	second := NewMongoLock(store, "run-2", time.Minute)

	require.NoError(t, first.Lock(ctx))
	assert.Equal(t, DefaultMongoLockTTL, store.ttl)
	require.NoError(t, first.Renew(ctx))
	assert.ErrorIs(t, second.Renew(ctx), ErrLockLost)

	err := second.Lock(ctx)
	assert.ErrorIs(t, err, types.ErrRunInProgress)
	assert.Error(t, second.Unlock(ctx))

	require.NoError(t, first.Unlock(ctx))
	require.NoError(t, second.Lock(ctx))
	assert.Equal(t, time.Minute, store.ttl)
}

func TestHold(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store := &lockDb{}
	l := NewMongoLock(store, "run-1", time.Minute)
	require.NoError(t, l.Lock(ctx))

	runCtx, release := Hold(ctx, l, 20*time.Second, clock)
	defer release()

	// renewed once right away and again on every tick
	require.Eventually(t, func() bool { return store.renewCount() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(20 * time.Second)
	require.Eventually(t, func() bool { return store.renewCount() == 2 }, time.Second, time.Millisecond)

	// a transient failure keeps the run going
	store.takeOver("run-1", errors.New("connection reset"))
	clock.Advance(20 * time.Second)
	require.Eventually(t, func() bool { return store.renewCount() == 3 }, time.Second, time.Millisecond)
	assert.NoError(t, runCtx.Err())

	// once someone else holds the lock the run is stopped
	store.takeOver("run-2", nil)
	clock.Advance(20 * time.Second)
	select {
	case <-runCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("run context not canceled after the lock was lost")
	}
	assert.ErrorIs(t, context.Cause(runCtx), ErrLockLost)
}

func TestHold_Release(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "payouts.csv.lock")
	l := NewFileLock(path)
	require.NoError(t, l.Lock(ctx))
	defer l.Unlock(ctx) //nolint:errcheck

	runCtx, release := Hold(ctx, l, time.Minute, clockwork.NewFakeClock())
	assert.NoError(t, runCtx.Err())

	release()
	assert.ErrorIs(t, runCtx.Err(), context.Canceled)
	assert.NoError(t, context.Cause(runCtx), "release is not a lost lock")
}
