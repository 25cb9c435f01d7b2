package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	QuoteProvider struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"quote_provider"`
	Schedule struct {
		RefreshCron       string `yaml:"refresh_cron"`
		RunTimeoutSeconds int    `yaml:"run_timeout_seconds"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
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

	// Environment variable overrides
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		cfg.QuoteProvider.APIKey = v
	}
	if v := os.Getenv("FINNHUB_BASE_URL"); v != "" {
		cfg.QuoteProvider.BaseURL = v
	}
	if v := os.Getenv("CRON_REFRESH"); v != "" {
		cfg.Schedule.RefreshCron = v
	}
	if v := os.Getenv("RUN_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Schedule.RunTimeoutSeconds = n
		}
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}

	// Defaults
	if cfg.QuoteProvider.BaseURL == "" {
		cfg.QuoteProvider.BaseURL = "https://finnhub.io/api/v1"
	}
	if cfg.Schedule.RefreshCron == "" {
		// Four runs per hour, on the quarter hour.
		cfg.Schedule.RefreshCron = "0 0,15,30,45 * * * *"
	}
	if cfg.Schedule.RunTimeoutSeconds == 0 {
		cfg.Schedule.RunTimeoutSeconds = 300
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/portfoliopulse.db"
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.QuoteProvider.APIKey == "" {
		return fmt.Errorf("quote_provider.api_key is required")
	}
	if c.QuoteProvider.BaseURL == "" {
		return fmt.Errorf("quote_provider.base_url is required")
	}
	if c.Schedule.RunTimeoutSeconds <= 0 {
		return fmt.Errorf("schedule.run_timeout_seconds must be positive")
	}
	return nil
}
