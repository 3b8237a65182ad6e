package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	defaultConfigFileName = "config.yml"
)

var (
	cfgPath  string
	logLevel string
	rootCmd  = &cobra.Command{
		Use:           "referral-payout",
		Short:         "Settles delegate rewards across the referral tax waterfall",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			zerolog.SetGlobalLevel(level)
			return nil
		},
	}
)

func Setup() error {
	homePath, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	defaultConfigPath := getDefaultConfigFile(homePath, defaultConfigFileName)

	rootCmd.AddCommand(PayoutCmd())
	rootCmd.AddCommand(PreviewCmd())
	rootCmd.AddCommand(ResumePointCmd())
	rootCmd.AddCommand(UsersCmd())
	rootCmd.AddCommand(ReferralsCmd())
	rootCmd.AddCommand(ServeCmd())
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath, fmt.Sprintf("config file (default %s)", defaultConfigPath))
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	if err := rootCmd.Execute(); err != nil {
		return err
	}

	return nil
}

func getDefaultConfigFile(homePath, filename string) string {
	return filepath.Join(homePath, filename)
}

func GetConfigPath() string {
	return cfgPath
}

// logger returns the context logger, the global one until a trace id is injected
func logger(cmd *cobra.Command) *zerolog.Logger {
	return log.Ctx(cmd.Context())
}
