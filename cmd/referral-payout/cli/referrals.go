package cli

import (
	"errors"
	"fmt"
	"os"
	"slices"

	sdkmath "cosmossdk.io/math"
	"github.com/delegate-rewards/referral-payout/internal/referral"
	"github.com/delegate-rewards/referral-payout/internal/users"
	"github.com/spf13/cobra"
)

func ReferralsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "referrals",
		Short: "Manage the referral table",
	}
	cmd.AddCommand(referralsAddCmd())
	cmd.AddCommand(referralsSetTaxCmd())
	cmd.AddCommand(referralsRemoveCmd())
	cmd.AddCommand(referralsListCmd())

	return cmd
}

func referralsAddCmd() *cobra.Command {
	var referrer, referee, tax string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record that referrer referred referee",
		Long: "Record that referrer referred referee. A referrer without a row gets one, one layer " +
			"below its own referrer, and needs --tax. An existing row keeps its tax rate.",
		Args: cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			var taxRate *sdkmath.LegacyDec
			if cmd.Flags().Changed("tax") {
				rate, err := parseTax(tax)
				if err != nil {
					return err
				}
				taxRate = &rate
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			registry, err := users.Load(cfg.Users.Path)
			if err != nil {
				return err
			}
			graph, err := loadReferralsForEdit(cfg.Referrals.Path)
			if err != nil {
				return err
			}

			updated, err := addReferral(registry, graph, referrer, referee, taxRate)
			if err != nil {
				return err
			}
			if err := referral.Save(cfg.Referrals.Path, updated); err != nil {
				return err
			}

			_, rate, _ := updated.ReferrerOf(referee)
			if taxRate != nil && !taxRate.Equal(rate) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s already has a row, keeping its tax rate %s\n", referrer, rate)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now refers %s at tax %s\n", referrer, referee, rate)
			return nil
		},
	}
	cmd.Flags().StringVar(&referrer, "referrer", "", "referring user")
	cmd.Flags().StringVar(&referee, "referee", "", "referred user")
	cmd.Flags().StringVar(&tax, "tax", "", "tax rate in [0, 1] for a referrer without a row")
	_ = cmd.MarkFlagRequired("referrer")
	_ = cmd.MarkFlagRequired("referee")

	return cmd
}

func referralsSetTaxCmd() *cobra.Command {
	var referrer, tax string
	cmd := &cobra.Command{
		Use:   "set-tax",
		Short: "Change the tax rate a referrer takes from its referees",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := parseTax(tax)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			graph, err := referral.Load(cfg.Referrals.Path)
			if err != nil {
				return err
			}

			updated, err := graph.SetTax(referrer, rate)
			if err != nil {
				return err
			}
			if err := referral.Save(cfg.Referrals.Path, updated); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now taxes its referees at %s\n", referrer, rate)
			return nil
		},
	}
	cmd.Flags().StringVar(&referrer, "referrer", "", "referring user")
	cmd.Flags().StringVar(&tax, "tax", "", "new tax rate in [0, 1]")
	_ = cmd.MarkFlagRequired("referrer")
	_ = cmd.MarkFlagRequired("tax")

	return cmd
}

func referralsRemoveCmd() *cobra.Command {
	var referrer, referee string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a referee from a referrer, dropping the row with its last referee",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			graph, err := referral.Load(cfg.Referrals.Path)
			if err != nil {
				return err
			}

			updated, rowDropped, err := graph.RemoveReferee(referrer, referee)
			if err != nil {
				return err
			}
			if err := referral.Save(cfg.Referrals.Path, updated); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s no longer refers %s\n", referrer, referee)
			if rowDropped {
				fmt.Fprintf(cmd.OutOrStdout(), "%s had no referee left, row removed\n", referrer)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&referrer, "referrer", "", "referring user")
	cmd.Flags().StringVar(&referee, "referee", "", "referee to remove")
	_ = cmd.MarkFlagRequired("referrer")
	_ = cmd.MarkFlagRequired("referee")

	return cmd
}

func referralsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the referral table",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			registry, err := users.Load(cfg.Users.Path)
			if err != nil {
				return err
			}
			graph, err := referral.Load(cfg.Referrals.Path)
			if err != nil {
				return err
			}

			if err := referral.Write(cmd.OutOrStdout(), graph); err != nil {
				return err
			}
			if missing := unregisteredNames(registry, graph); len(missing) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "not in the user registry: %v\n", missing)
			}
			return nil
		},
	}

	return cmd
}

func parseTax(s string) (sdkmath.LegacyDec, error) {
	rate, err := sdkmath.LegacyNewDecFromStr(s)
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("invalid --tax %q: %w", s, err)
	}
	return rate, nil
}

// loadReferralsForEdit starts from an empty table when none exists yet
func loadReferralsForEdit(path string) (*referral.Graph, error) {
	graph, err := referral.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return referral.New(nil)
	}
	return graph, err
}

// addReferral only links users present in the registry
func addReferral(
	registry *users.Registry, graph *referral.Graph, referrer, referee string, tax *sdkmath.LegacyDec,
) (*referral.Graph, error) {
	for _, name := range []string{referrer, referee} {
		if _, ok := registry.Lookup(name); !ok {
			return nil, fmt.Errorf("%w: %q is not registered", users.ErrUnknownUser, name)
		}
	}
	return graph.AddReferee(referrer, referee, tax)
}

// unregisteredNames lists the referrers and referees the registry does not know, sorted
func unregisteredNames(registry *users.Registry, graph *referral.Graph) []string {
	var missing []string
	for _, e := range graph.Edges() {
		for _, name := range append([]string{e.Referrer}, e.Referees...) {
			if _, ok := registry.Lookup(name); !ok && !slices.Contains(missing, name) {
				missing = append(missing, name)
			}
		}
	}
	slices.Sort(missing)
	return missing
}
