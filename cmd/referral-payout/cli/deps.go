package cli

import (
	"context"
	"fmt"

	"github.com/delegate-rewards/referral-payout/internal/clients/transferclient"
	"github.com/delegate-rewards/referral-payout/internal/config"
	"github.com/delegate-rewards/referral-payout/internal/db"
	dbmodel "github.com/delegate-rewards/referral-payout/internal/db/model"
	"github.com/delegate-rewards/referral-payout/internal/ledger"
	"github.com/delegate-rewards/referral-payout/internal/lock"
	"github.com/delegate-rewards/referral-payout/internal/referral"
	"github.com/delegate-rewards/referral-payout/internal/services"
	"github.com/delegate-rewards/referral-payout/internal/snapshot"
	"github.com/delegate-rewards/referral-payout/internal/users"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// deps holds everything built from the config for a single command
type deps struct {
	cfg     *config.Config
	ledger  *ledger.Ledger
	service *services.Service
	// mongo is set only for the mongo ledger
	mongo db.DbInterface
	close func()
}

type depsOptions struct {
	dryRun bool
	// ledgerOnly skips loading snapshots, users and referrals
	ledgerOnly bool
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.New(GetConfigPath())
	if err != nil {
		return nil, fmt.Errorf("error while loading config file %s: %w", GetConfigPath(), err)
	}
	return cfg, nil
}

func newDeps(ctx context.Context, opts depsOptions) (*deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	clock := clockwork.NewRealClock()
	d := &deps{cfg: cfg, close: func() {}}

	var store ledger.Store
	switch cfg.Ledger.Type {
	case config.LedgerTypeMongo:
		if err := dbmodel.Setup(ctx, cfg.Db); err != nil {
			return nil, fmt.Errorf("error while setting up ledger db model: %w", err)
		}
		database, err := db.New(ctx, *cfg.Db)
		if err != nil {
			return nil, fmt.Errorf("error while creating db client: %w", err)
		}
		d.close = func() {
			if err := database.Close(context.WithoutCancel(ctx)); err != nil {
				log.Ctx(ctx).Error().Err(err).Msg("Failed to close db client")
			}
		}
		d.mongo = db.NewDbWithMetrics(database)
		store = ledger.NewMongoStore(d.mongo, clock)
	default:
		store = ledger.NewStoreWithMetrics(ledger.NewCSVStore(cfg.Ledger.Path))
	}
	d.ledger = ledger.New(store)

	if opts.ledgerOnly {
		return d, nil
	}

	registry, err := users.Load(cfg.Users.Path)
	if err != nil {
		d.close()
		return nil, err
	}
	graph, err := referral.Load(cfg.Referrals.Path)
	if err != nil {
		d.close()
		return nil, err
	}
	if missing := unregisteredNames(registry, graph); len(missing) > 0 {
		log.Ctx(ctx).Warn().Strs("users", missing).Msg("Referral table names users missing from the registry")
	}
	transferer, err := transferclient.New(&cfg.Transfer, opts.dryRun)
	if err != nil {
		d.close()
		return nil, err
	}

	reader := snapshot.NewReader(snapshot.NewFileSource(cfg.Snapshots.Path), cfg.Snapshots.Workers)
	d.service = services.NewService(cfg, reader, registry, graph, d.ledger, transferer, clock)
	return d, nil
}

// locker returns the lock guarding the configured ledger
func (d *deps) locker(runOwner string) lock.Locker {
	if d.mongo != nil {
		return lock.NewMongoLock(d.mongo, runOwner, d.cfg.Ledger.LockTTL)
	}
	return lock.NewFileLock(d.cfg.Ledger.LockPath)
}
