package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/delegate-rewards/referral-payout/internal/observability/tracing"
	"github.com/delegate-rewards/referral-payout/internal/services"
	"github.com/delegate-rewards/referral-payout/internal/utils"
	"github.com/spf13/cobra"
)

func PreviewCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the payouts of the next window without transferring or recording",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := tracing.InjectTraceID(cmd.Context())

			pool, opts, err := flags.options(cmd)
			if err != nil {
				return err
			}

			d, err := newDeps(ctx, depsOptions{dryRun: true})
			if err != nil {
				return err
			}
			defer d.close()

			plan, err := d.service.Preview(ctx, pool, opts)
			if err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), plan)
			return nil
		},
	}
	flags.register(cmd)

	return cmd
}

func printPlan(out io.Writer, plan *services.Plan) {
	fmt.Fprintf(out, "Window [%d, %d], %d snapshots, pool %s\n",
		plan.StartBlock, plan.EndBlock, plan.Snapshots, plan.Batch.PoolTotal)
	if plan.Pending != nil {
		fmt.Fprintf(out, "Retrying window left unsettled by run %s at %s\n",
			plan.Pending.RunID, plan.Pending.CreatedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(out)

	amounts := make(map[string]string, len(plan.Batch.Records))
	for _, r := range plan.Batch.Records {
		amounts[r.User] = r.Amount.String()
	}
	for _, s := range plan.Batch.Skipped {
		amounts[s.User] = "skipped"
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tBASELINE\tADJUSTED\tAMOUNT")
	for _, user := range plan.Adjusted.Names() {
		amount, ok := amounts[user]
		if !ok {
			amount = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			user,
			utils.DecimalFromLegacyDec(plan.Baseline.Get(user)).String(),
			utils.DecimalFromLegacyDec(plan.Adjusted.Get(user)).String(),
			amount,
		)
	}
	_ = w.Flush()

	fmt.Fprintf(out, "\nTotal %s to %d users, %d skipped\n",
		plan.Batch.Total(), len(plan.Batch.Records), len(plan.Batch.Skipped))
}
