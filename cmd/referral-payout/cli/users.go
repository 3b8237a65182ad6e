package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/delegate-rewards/referral-payout/internal/users"
	"github.com/spf13/cobra"
)

func UsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the user registry",
	}
	cmd.AddCommand(usersImportCmd())
	cmd.AddCommand(usersAddCmd())
	cmd.AddCommand(usersRemoveCmd())
	cmd.AddCommand(usersListCmd())

	return cmd
}

func usersImportCmd() *cobra.Command {
	var (
		csvPath string
		mode    string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import users and addresses from a csv of username,address1,address2,...",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			importMode := users.ImportMode(mode)
			if importMode != users.ImportAppend && importMode != users.ImportReplace {
				return fmt.Errorf("unknown import mode %q", mode)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			existing, err := users.Load(cfg.Users.Path)
			if err != nil {
				return err
			}

			fd, err := os.Open(csvPath)
			if err != nil {
				return err
			}
			defer fd.Close()

			updated, err := users.ImportCSV(fd, existing, importMode)
			if err != nil {
				var invalid *users.InvalidAddressesError
				if errors.As(err, &invalid) {
					logger(cmd).Error().Interface("invalid", invalid.Invalid).Msg("Import rejected")
				}
				return err
			}

			if err := updated.Save(cfg.Users.Path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registry now holds %d users\n", updated.Len())
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "csv file to import")
	cmd.Flags().StringVar(&mode, "mode", string(users.ImportAppend), "append or replace")
	_ = cmd.MarkFlagRequired("csv")

	return cmd
}

func usersAddCmd() *cobra.Command {
	var (
		name      string
		addresses []string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a user or give an existing one more addresses",
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
			_, existed := registry.Lookup(name)

			updated, err := registry.AddAddresses(name, addresses...)
			if err != nil {
				return err
			}
			if err := updated.Save(cfg.Users.Path); err != nil {
				return err
			}

			acc, _ := updated.Lookup(name)
			if existed {
				fmt.Fprintf(cmd.OutOrStdout(), "Added %d addresses to %s, payouts go to %s\n", len(addresses), name, acc.PayoutAddress())
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %s, payouts go to %s\n", name, acc.PayoutAddress())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "user name")
	cmd.Flags().StringSliceVar(&addresses, "address", nil, "address to add, repeatable; the first address of a new user receives payouts")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}

func usersRemoveCmd() *cobra.Command {
	var name, address string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove an address from a user, removing the user with its last address",
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

			updated, userRemoved, err := registry.RemoveAddress(name, address)
			if err != nil {
				return err
			}
			if err := updated.Save(cfg.Users.Path); err != nil {
				return err
			}

			if userRemoved {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s with its last address\n", name)
				logger(cmd).Warn().Str("user", name).Msg("User removed, no further payouts are made to them")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", address, name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "user name")
	cmd.Flags().StringVar(&address, "address", "", "address to remove")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("address")

	return cmd
}

func usersListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered users and their addresses",
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
			for _, u := range registry.Accounts() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", u.Name, strings.Join(u.Addresses, ", "))
			}
			return nil
		},
	}

	return cmd
}
