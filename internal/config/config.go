package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level cardlink.yaml configuration.
type Config struct {
	Listen   string         `yaml:"listen"`
	Database DatabaseConfig `yaml:"database"`
	Import   ImportConfig   `yaml:"import"`
	LogLevel string         `yaml:"log_level"`
}

// DatabaseConfig selects the ledger store. A postgres:// DSN selects
// Postgres; anything else is a SQLite path.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// ImportConfig bounds and localizes statement imports.
type ImportConfig struct {
	MaxRows                int      `yaml:"max_rows"`
	PaymentReceivedPhrases []string `yaml:"payment_received_phrases,omitempty"`
	RefundPhrases          []string `yaml:"refund_phrases,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:   ":8080",
		Database: DatabaseConfig{DSN: "cardlink.db"},
		Import:   ImportConfig{MaxRows: 5000},
		LogLevel: "info",
	}
}

// Load reads cardlink.yaml, applies defaults for missing fields, then
// applies environment overrides (a .env file is honored when present).
// A missing config file is not an error: defaults plus environment win.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "cardlink.db"
	}
	if cfg.Import.MaxRows == 0 {
		cfg.Import.MaxRows = 5000
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.applyEnv()
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("CARDLINK_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("CARDLINK_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("CARDLINK_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CARDLINK_IMPORT_MAX_ROWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Import.MaxRows = n
		}
	}
}
