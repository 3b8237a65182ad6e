package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/delegate-rewards/referral-payout/internal/lock"
	"github.com/delegate-rewards/referral-payout/internal/observability/metrics"
	"github.com/delegate-rewards/referral-payout/internal/observability/tracing"
	"github.com/delegate-rewards/referral-payout/internal/services"
	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type runFlags struct {
	pool     string
	endBlock uint64
	dryRun   bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.pool, "pool", "", "total payout pool to distribute")
	cmd.Flags().Uint64Var(&f.endBlock, "end-block", 0, "last block of the window (default latest snapshot)")
	_ = cmd.MarkFlagRequired("pool")
}

func (f *runFlags) options(cmd *cobra.Command) (decimal.Decimal, services.RunOptions, error) {
	pool, err := decimal.NewFromString(f.pool)
	if err != nil {
		return decimal.Decimal{}, services.RunOptions{}, fmt.Errorf("invalid --pool %q: %w", f.pool, err)
	}

	opts := services.RunOptions{DryRun: f.dryRun}
	if cmd.Flags().Changed("end-block") {
		end := f.endBlock
		opts.EndBlock = &end
	}
	return pool, opts, nil
}

func PayoutCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "payout",
		Short: "Settle the next block window: compute, transfer and record payouts",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return payout(cmd, flags)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "use the mock transfer executor and leave the ledger untouched")

	return cmd
}

func payout(cmd *cobra.Command, flags *runFlags) error {
	ctx := tracing.InjectTraceID(cmd.Context())
	log := log.Ctx(ctx)

	pool, opts, err := flags.options(cmd)
	if err != nil {
		return err
	}

	d, err := newDeps(ctx, depsOptions{dryRun: opts.DryRun})
	if err != nil {
		return err
	}
	defer d.close()

	if url := d.cfg.Metrics.PushgatewayURL; url != "" && !opts.DryRun {
		defer func() {
			if pushErr := metrics.Push(context.WithoutCancel(ctx), url); pushErr != nil {
				log.Warn().Err(pushErr).Msg("Failed to push metrics")
			}
		}()
	}

	runCtx := ctx
	if !opts.DryRun {
		locker := d.locker(uuid.New().String())
		if err := locker.Lock(ctx); err != nil {
			return err
		}
		defer func() {
			if unlockErr := locker.Unlock(context.WithoutCancel(ctx)); unlockErr != nil {
				log.Error().Err(unlockErr).Msg("Failed to release run lock")
			}
		}()

		var release func()
		runCtx, release = lock.Hold(ctx, locker, d.cfg.Ledger.LockTTL/3, clockwork.NewRealClock())
		defer release()
	}

	result, err := d.service.Payout(runCtx, pool, opts)
	if result != nil {
		printPlan(cmd.OutOrStdout(), result.Plan)
		fmt.Fprintf(cmd.OutOrStdout(), "\nRun %s finished in state %s\n", result.Plan.RunID, result.State)
	}
	if err != nil {
		var incomplete *types.TransferBatchIncompleteError
		if errors.As(err, &incomplete) {
			for _, f := range incomplete.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "transfer to %s (%s) of %s failed: %v\n", f.User, f.Address, f.Amount, f.Err)
			}
		}
		if errors.Is(context.Cause(runCtx), lock.ErrLockLost) {
			fmt.Fprintln(cmd.ErrOrStderr(), "run lock lost mid-run, check the ledger before rerunning")
		}
		if services.IsRetriable(err) {
			fmt.Fprintln(cmd.ErrOrStderr(), "ledger untouched, rerun to retry the same window")
		}
		return err
	}

	if result.Plan.ZeroWindow {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: no snapshots in window, nothing was paid")
	}
	return nil
}
