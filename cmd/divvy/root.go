package main

import (
	"fmt"
	"log"
	"os"

	"Divvy/internal/config"
	"Divvy/internal/ledger"
	"Divvy/internal/model"
	"Divvy/internal/recorder"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "divvy",
	Short: "Divvy runs a pooled-contribution ledger with alternating contribution and withdrawal windows.",
	Long: `Divvy runs a pooled-contribution ledger. Participants contribute once per ` +
		`contribution window, and when the withdrawal window opens the pool is split ` +
		`equally among them.`,
	SilenceUsage: true,
}

func init() {
	defaultPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultPath = v
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultPath, "path to the YAML config file")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func ledgerOptions(cfg *config.Config, pub ledger.Publisher) ledger.Options {
	return ledger.Options{
		DefaultMax:         model.Amount(cfg.Ledger.DefaultMaxContribution),
		ContributionPeriod: cfg.Ledger.ContributionPeriod,
		WithdrawalPeriod:   cfg.Ledger.WithdrawalPeriod,
		Publisher:          pub,
	}
}

func openRecorder(cfg *config.Config) recorder.Recorder {
	if cfg.Database.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
	if err != nil {
		log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
		return recorder.NewNoopRecorder()
	}
	return sr
}
