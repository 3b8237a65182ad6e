package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/delegate-rewards/referral-payout/internal/db"
	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/delegate-rewards/referral-payout/internal/utils/poller"
	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ErrLockLost is returned by Renew once another run may have taken the lock over
var ErrLockLost = errors.New("run lock lost")

// Locker serializes payout runs. Lock fails fast with types.ErrRunInProgress
// when another run holds the lock.
type Locker interface {
	Lock(ctx context.Context) error
	// Renew extends a held lock, failing with ErrLockLost when it is no longer held
	Renew(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Hold renews l every interval until the returned release func is called. The
// returned context is canceled with ErrLockLost as cause when a renewal finds
// the lock gone, so the run stops before a second one overlaps it. Other
// renewal errors are logged and retried on the next tick.
func Hold(
	ctx context.Context, l Locker, interval time.Duration, clock clockwork.Clock,
) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)

	renewal := poller.NewPoller("run-lock-renewal", interval, clock, func(ctx context.Context) error {
		err := l.Renew(ctx)
		if errors.Is(err, ErrLockLost) {
			log.Ctx(ctx).Error().Err(err).Msg("Run lock lost, stopping run")
			cancel(err)
		}
		return err
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		renewal.Start(ctx)
	}()

	return ctx, func() {
		renewal.Stop()
		<-done
		cancel(nil)
	}
}

// FileLock is an advisory lock on a file next to the csv ledger
type FileLock struct {
	flock *flock.Flock
}

func NewFileLock(path string) *FileLock {
	return &FileLock{flock: flock.New(path)}
}

func (l *FileLock) Lock(ctx context.Context) error {
	if dir := filepath.Dir(l.flock.Path()); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create lock directory: %w", err)
		}
	}

	locked, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", l.flock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("%w: %s is locked", types.ErrRunInProgress, l.flock.Path())
	}

	log.Ctx(ctx).Debug().Str("path", l.flock.Path()).Msg("Run lock acquired")
	return nil
}

// Renew checks the lock is still held. An flock lives as long as the process
// keeps it, so there is no expiry to push back.
func (l *FileLock) Renew(context.Context) error {
	if !l.flock.Locked() {
		return fmt.Errorf("%w: %s is not locked", ErrLockLost, l.flock.Path())
	}
	return nil
}

func (l *FileLock) Unlock(ctx context.Context) error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.flock.Path(), err)
	}
	log.Ctx(ctx).Debug().Str("path", l.flock.Path()).Msg("Run lock released")
	return nil
}

// DefaultMongoLockTTL bounds how long a crashed run can block later ones. A live
// run keeps the lock through Hold.
const DefaultMongoLockTTL = 5 * time.Minute

// MongoLock keeps the lock as a document so runs on different hosts exclude each other
type MongoLock struct {
	db    db.DbInterface
	owner string
	ttl   time.Duration
}

func NewMongoLock(database db.DbInterface, owner string, ttl time.Duration) *MongoLock {
	if ttl <= 0 {
		ttl = DefaultMongoLockTTL
	}
	return &MongoLock{db: database, owner: owner, ttl: ttl}
}

func (l *MongoLock) Lock(ctx context.Context) error {
	err := l.db.AcquireRunLock(ctx, l.owner, l.ttl)
	if db.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w", types.ErrRunInProgress, err)
	}
	if err != nil {
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}

	log.Ctx(ctx).Debug().Str("owner", l.owner).Msg("Run lock acquired")
	return nil
}

func (l *MongoLock) Renew(ctx context.Context) error {
	err := l.db.RenewRunLock(ctx, l.owner, l.ttl)
	if db.IsNotFoundError(err) {
		return fmt.Errorf("%w: %w", ErrLockLost, err)
	}
	if err != nil {
		return fmt.Errorf("failed to renew run lock: %w", err)
	}
	return nil
}

func (l *MongoLock) Unlock(ctx context.Context) error {
	if err := l.db.ReleaseRunLock(ctx, l.owner); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	log.Ctx(ctx).Debug().Str("owner", l.owner).Msg("Run lock released")
	return nil
}
