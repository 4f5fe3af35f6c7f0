// Package config loads server configuration from an optional YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration.
type Config struct {
	Listen  string `yaml:"listen"`
	DBPath  string `yaml:"db_path"`
	BaseURL string `yaml:"base_url"`

	Engine struct {
		APIKey     string `yaml:"api_key"`
		TimeoutSec int    `yaml:"timeout_sec"`
	} `yaml:"engine"`

	Alerts struct {
		SendGridKey string `yaml:"sendgrid_key"`
		FromEmail   string `yaml:"from_email"`
		FromName    string `yaml:"from_name"`
		Recipient   string `yaml:"recipient"`
		Sandbox     bool   `yaml:"sandbox"`
	} `yaml:"alerts"`

	OAuth struct {
		GoogleClientID string `yaml:"google_client_id"`
		GoogleSecret   string `yaml:"google_secret"`
	} `yaml:"oauth"`

	Compat struct {
		// IgnoreMissingCase restores the legacy silent no-op when a status
		// update targets an unknown case id.
		IgnoreMissingCase bool `yaml:"ignore_missing_case"`
	} `yaml:"compat"`
}

// Load reads the YAML file at path (skipped when path is empty), applies
// defaults, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Listen:  ":8080",
		DBPath:  "./civicguard.db",
		BaseURL: "http://localhost:8080",
	}
	cfg.Engine.TimeoutSec = 60
	cfg.Alerts.FromEmail = "alerts@disasterlens.gov"
	cfg.Alerts.FromName = "DisasterLens X CivicGuard"
	cfg.Alerts.Recipient = "ops@civicguard.org"

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.Listen = envOr("CIVICGUARD_LISTEN", cfg.Listen)
	cfg.DBPath = envOr("CIVICGUARD_DB_PATH", cfg.DBPath)
	cfg.BaseURL = envOr("CIVICGUARD_BASE_URL", cfg.BaseURL)
	cfg.Engine.APIKey = envOr("CIVICGUARD_ENGINE_API_KEY", cfg.Engine.APIKey)
	cfg.Alerts.SendGridKey = envOr("CIVICGUARD_SENDGRID_KEY", cfg.Alerts.SendGridKey)
	cfg.Alerts.FromEmail = envOr("CIVICGUARD_ALERT_FROM", cfg.Alerts.FromEmail)
	cfg.Alerts.Recipient = envOr("CIVICGUARD_ALERT_RECIPIENT", cfg.Alerts.Recipient)
	cfg.OAuth.GoogleClientID = envOr("CIVICGUARD_GOOGLE_CLIENT_ID", cfg.OAuth.GoogleClientID)
	cfg.OAuth.GoogleSecret = envOr("CIVICGUARD_GOOGLE_SECRET", cfg.OAuth.GoogleSecret)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.Engine.TimeoutSec <= 0 {
		return fmt.Errorf("engine.timeout_sec must be positive, got %d", c.Engine.TimeoutSec)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
