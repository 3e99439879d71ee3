package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Ledger struct {
		Owner                  string        `yaml:"owner" env:"DIVVY_OWNER"`
		DefaultMaxContribution uint64        `yaml:"default_max_contribution" env:"DIVVY_DEFAULT_MAX"`
		ContributionPeriod     time.Duration `yaml:"contribution_period" env:"DIVVY_CONTRIBUTION_PERIOD"`
		WithdrawalPeriod       time.Duration `yaml:"withdrawal_period" env:"DIVVY_WITHDRAWAL_PERIOD"`
		StateFile              string        `yaml:"state_file" env:"DIVVY_STATE_FILE"`
	} `yaml:"ledger"`
	Display struct {
		Decimals int32  `yaml:"decimals" env:"DIVVY_DECIMALS"`
		Symbol   string `yaml:"symbol" env:"DIVVY_SYMBOL"`
	} `yaml:"display"`
	Telegram struct {
		BotToken string `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
		ChatID   string `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
	} `yaml:"telegram"`
	Schedule struct {
		RotateCron string `yaml:"rotate_cron" env:"CRON_ROTATE"`
		ReportCron string `yaml:"report_cron" env:"CRON_REPORT"`
		Autopilot  bool   `yaml:"autopilot" env:"DIVVY_AUTOPILOT"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	} `yaml:"database"`
	HTTP struct {
		Addr string `yaml:"addr" env:"HTTP_ADDR"`
	} `yaml:"http"`
	Proxy string `yaml:"proxy" env:"HTTPS_PROXY"`
}

// Load reads config from a YAML file, then applies .env and environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env is optional; real environment variables take precedence over it.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Ledger.DefaultMaxContribution == 0 {
		c.Ledger.DefaultMaxContribution = 10
	}
	if c.Ledger.ContributionPeriod == 0 {
		c.Ledger.ContributionPeriod = 14 * 24 * time.Hour
	}
	if c.Ledger.WithdrawalPeriod == 0 {
		c.Ledger.WithdrawalPeriod = 3 * 24 * time.Hour
	}
	if c.Ledger.StateFile == "" {
		c.Ledger.StateFile = "data/ledger_state.json"
	}
	if c.Schedule.RotateCron == "" {
		c.Schedule.RotateCron = "0 */15 * * * *"
	}
	if c.Schedule.ReportCron == "" {
		c.Schedule.ReportCron = "0 0 9 * * *"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/divvy.db"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Ledger.Owner == "" {
		return fmt.Errorf("ledger.owner is required")
	}
	if c.Ledger.DefaultMaxContribution == 0 {
		return fmt.Errorf("ledger.default_max_contribution must be positive")
	}
	if c.Ledger.ContributionPeriod < 0 || c.Ledger.WithdrawalPeriod < 0 {
		return fmt.Errorf("ledger periods must not be negative")
	}
	if c.Display.Decimals < 0 || c.Display.Decimals > 36 {
		return fmt.Errorf("display.decimals must be between 0 and 36")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}
