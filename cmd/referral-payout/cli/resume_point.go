package cli

import (
	"fmt"

	"github.com/delegate-rewards/referral-payout/internal/observability/tracing"
	"github.com/spf13/cobra"
)

func ResumePointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume-point",
		Short: "Print the first block the next payout run will cover",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := tracing.InjectTraceID(cmd.Context())

			d, err := newDeps(ctx, depsOptions{ledgerOnly: true})
			if err != nil {
				return err
			}
			defer d.close()

			point, err := d.ledger.ResumePoint(ctx)
			if err != nil {
				return err
			}
			if point == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "none (ledger empty, next run starts at the earliest snapshot)")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), *point)
			return nil
		},
	}

	return cmd
}
