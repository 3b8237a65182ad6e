package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	defaultMetricsHost  = "0.0.0.0"
	defaultMetricsPort  = 2112
	defaultServerHost   = "127.0.0.1"
	defaultServerPort   = 8090
	defaultPollInterval = 1 * time.Minute
)

type MetricsConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// PushgatewayURL, when set, receives the metrics of every payout run
	PushgatewayURL string `mapstructure:"pushgateway-url"`
}

func (cfg *MetricsConfig) Validate() error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return errors.New("metrics port must be between 0 and 65535")
	}

	return nil
}

func (cfg *MetricsConfig) GetMetricsPort() int {
	return cfg.Port
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	PollInterval time.Duration `mapstructure:"poll-interval"`
}

func (cfg *ServerConfig) Validate() error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return errors.New("server port must be between 1 and 65535")
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	return nil
}

func (cfg *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}
