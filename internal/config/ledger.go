package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	LedgerTypeCSV   = "csv"
	LedgerTypeMongo = "mongo"

	defaultLockTTL = 5 * time.Minute
)

type LedgerConfig struct {
	Type string `mapstructure:"type"`
	// Path of the csv ledger, unused by the mongo ledger
	Path string `mapstructure:"path"`
	// LockPath defaults to Path + ".lock"
	LockPath string `mapstructure:"lock-path"`
	// LockTTL is how long a mongo run lock outlives its last renewal.
	// A running payout renews it every LockTTL/3.
	LockTTL time.Duration `mapstructure:"lock-ttl"`
}

func (cfg *LedgerConfig) Validate() error {
	if cfg.LockTTL < 0 {
		return fmt.Errorf("lock ttl must not be negative, got %s", cfg.LockTTL)
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = defaultLockTTL
	}

	switch cfg.Type {
	case LedgerTypeCSV:
		if cfg.Path == "" {
			return errors.New("ledger path is required for csv ledger")
		}
		if cfg.LockPath == "" {
			cfg.LockPath = cfg.Path + ".lock"
		}
	case LedgerTypeMongo:
	default:
		return fmt.Errorf("unknown ledger type %q", cfg.Type)
	}

	return nil
}

type DbConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DbName   string `mapstructure:"db-name"`
	Address  string `mapstructure:"address"`
}

func (cfg *DbConfig) Validate() error {
	if cfg.Address == "" {
		return errors.New("db address is required")
	}
	if cfg.DbName == "" {
		return errors.New("db name is required")
	}

	return nil
}
