package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultFeePerPayout          = "0.000000144"
	defaultAmountPrecision       = 9
	defaultTransferTimeout       = 30 * time.Second
	defaultTransferMaxRetryTimes = 3
	defaultTransferRetryInterval = 2 * time.Second
)

const (
	TransferTypeHTTP = "http"
	TransferTypeMock = "mock"
)

type PayoutConfig struct {
	// Fee is subtracted from every payout before rounding
	Fee string `mapstructure:"fee"`
	// Precision is the number of fractional digits amounts are rounded to
	Precision int32 `mapstructure:"precision"`
}

func (cfg *PayoutConfig) Validate() error {
	fee, err := decimal.NewFromString(cfg.Fee)
	if err != nil {
		return fmt.Errorf("invalid fee %q: %w", cfg.Fee, err)
	}
	if fee.IsNegative() {
		return errors.New("fee must not be negative")
	}
	if cfg.Precision < 0 || cfg.Precision > 18 {
		return errors.New("precision must be between 0 and 18")
	}

	return nil
}

// FeeDecimal returns the validated fee
func (cfg *PayoutConfig) FeeDecimal() decimal.Decimal {
	return decimal.RequireFromString(cfg.Fee)
}

type TransferConfig struct {
	Type          string        `mapstructure:"type"`
	URL           string        `mapstructure:"url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetryTimes uint          `mapstructure:"max-retry-times"`
	RetryInterval time.Duration `mapstructure:"retry-interval"`
}

func (cfg *TransferConfig) Validate() error {
	switch cfg.Type {
	case TransferTypeMock:
		return nil
	case TransferTypeHTTP:
	default:
		return fmt.Errorf("unknown transfer type %q", cfg.Type)
	}

	if cfg.URL == "" {
		return errors.New("transfer service url is required")
	}
	if cfg.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if cfg.MaxRetryTimes == 0 {
		return errors.New("max-retry-times must be positive")
	}
	if cfg.RetryInterval <= 0 {
		return errors.New("retry-interval must be positive")
	}

	return nil
}
