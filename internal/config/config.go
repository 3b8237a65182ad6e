package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "PAYOUT"

type Config struct {
	Snapshots SnapshotConfig `mapstructure:"snapshots"`
	Users     UsersConfig    `mapstructure:"users"`
	Referrals ReferralConfig `mapstructure:"referrals"`
	Ledger    LedgerConfig   `mapstructure:"ledger"`
	Db        *DbConfig      `mapstructure:"db"`
	Payout    PayoutConfig   `mapstructure:"payout"`
	Transfer  TransferConfig `mapstructure:"transfer"`
	Metrics   MetricsConfig  `mapstructure:"metrics"`
	Server    ServerConfig   `mapstructure:"server"`
}

func (cfg *Config) Validate() error {
	if err := cfg.Snapshots.Validate(); err != nil {
		return fmt.Errorf("snapshots: %w", err)
	}
	if err := cfg.Users.Validate(); err != nil {
		return fmt.Errorf("users: %w", err)
	}
	if err := cfg.Referrals.Validate(); err != nil {
		return fmt.Errorf("referrals: %w", err)
	}
	if err := cfg.Ledger.Validate(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}

	// db section is only required by the mongo ledger
	if cfg.Ledger.Type == LedgerTypeMongo {
		if cfg.Db == nil {
			return fmt.Errorf("db config is required for %q ledger", LedgerTypeMongo)
		}
		if err := cfg.Db.Validate(); err != nil {
			return fmt.Errorf("db: %w", err)
		}
	}

	if err := cfg.Payout.Validate(); err != nil {
		return fmt.Errorf("payout: %w", err)
	}
	if err := cfg.Transfer.Validate(); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	if err := cfg.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := cfg.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	return nil
}

// New loads the yaml config at cfgFile, applies PAYOUT_* environment
// overrides and defaults, and validates the result
func New(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(cfgFile)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("snapshots.workers", defaultSnapshotWorkers)
	v.SetDefault("ledger.type", LedgerTypeCSV)
	v.SetDefault("ledger.lock-ttl", defaultLockTTL)
	v.SetDefault("payout.fee", defaultFeePerPayout)
	v.SetDefault("payout.precision", defaultAmountPrecision)
	v.SetDefault("transfer.type", TransferTypeMock)
	v.SetDefault("transfer.timeout", defaultTransferTimeout)
	v.SetDefault("transfer.max-retry-times", defaultTransferMaxRetryTimes)
	v.SetDefault("transfer.retry-interval", defaultTransferRetryInterval)
	v.SetDefault("metrics.host", defaultMetricsHost)
	v.SetDefault("metrics.port", defaultMetricsPort)
	v.SetDefault("server.host", defaultServerHost)
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.poll-interval", defaultPollInterval)
}
