package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/delegate-rewards/referral-payout/internal/api"
	"github.com/delegate-rewards/referral-payout/internal/observability/metrics"
	"github.com/delegate-rewards/referral-payout/internal/observability/tracing"
	"github.com/spf13/cobra"
)

func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only ledger api and keep the snapshot gauges fresh",
		Args:  cobra.ExactArgs(0),
		RunE:  serve,
	}

	return cmd
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = tracing.InjectTraceID(ctx)

	d, err := newDeps(ctx, depsOptions{dryRun: true})
	if err != nil {
		return err
	}
	defer d.close()

	// initialize metrics with the metrics port from config
	metrics.Init(d.cfg.Metrics.GetMetricsPort())

	statsPoller := d.service.StartStatsPoller(ctx)
	defer statsPoller.Stop()

	return api.NewServer(d.cfg.Server.Addr(), d.service).Start(ctx)
}
