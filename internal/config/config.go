// Package config loads server settings from the environment, reading a
// local .env file first when not running in production.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all configuration for the server.
type Config struct {
	Environment     string        `env:"GO_ENV" envDefault:"development"`
	Port            string        `env:"PORT" envDefault:"8080"`
	StorageDriver   string        `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	StoragePath     string        `env:"STORAGE_PATH" envDefault:"prizedraw.db"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	StateKey        string        `env:"STATE_KEY" envDefault:"lottery-storage"`
	Verbose         bool          `env:"VERBOSE" envDefault:"false"`
	LogFile         string        `env:"LOG_FILE"`
	RollInterval    time.Duration `env:"ROLL_INTERVAL" envDefault:"100ms"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Warnings collects problems that did not stop loading. Load runs before
	// logging is set up, so the caller logs them.
	Warnings []string
}

// Load reads the environment into a Config. Outside production a .env file
// in the working directory is loaded first; a missing file is not an error
// because production relies on the real environment.
func Load() (*Config, error) {
	var warnings []string
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			warnings = append(warnings, fmt.Sprintf(".env could not be loaded: %v", err))
		}
	}

	cfg := &Config{Warnings: warnings}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("config: PORT is empty")
	}
	if c.StateKey == "" {
		return errors.New("config: STATE_KEY is empty")
	}
	switch c.StorageDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.StoragePath == "" {
			return errors.New("config: STORAGE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.RollInterval <= 0 {
		return fmt.Errorf("config: ROLL_INTERVAL must be positive, got %s", c.RollInterval)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("config: SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}

// IsProduction reports whether GO_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
