package config

import (
	"errors"
	"runtime"
)

var defaultSnapshotWorkers = runtime.GOMAXPROCS(0)

type SnapshotConfig struct {
	// Path of the delegate info log written by the snapshot logger
	Path string `mapstructure:"path"`
	// Workers bounds the number of goroutines parsing snapshot records
	Workers int `mapstructure:"workers"`
}

func (cfg *SnapshotConfig) Validate() error {
	if cfg.Path == "" {
		return errors.New("snapshot log path is required")
	}
	if cfg.Workers <= 0 {
		return errors.New("workers must be positive")
	}

	return nil
}

type UsersConfig struct {
	Path string `mapstructure:"path"`
}

func (cfg *UsersConfig) Validate() error {
	if cfg.Path == "" {
		return errors.New("user registry path is required")
	}

	return nil
}

type ReferralConfig struct {
	Path string `mapstructure:"path"`
}

func (cfg *ReferralConfig) Validate() error {
	if cfg.Path == "" {
		return errors.New("referral table path is required")
	}

	return nil
}
