// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the realm server configuration.
type Config struct {
	TickInterval   time.Duration `env:"REALM_TICK_INTERVAL" envDefault:"1s"`
	MapRadius      int           `env:"REALM_MAP_RADIUS" envDefault:"8"`
	Seed           int64         `env:"REALM_SEED" envDefault:"42"` // 0 = random
	DBPath         string        `env:"REALM_DB_PATH" envDefault:"data/realm.db"`
	SnapshotDir    string        `env:"REALM_SNAPSHOT_DIR" envDefault:"data/snapshots"`
	SaveEvery      uint64        `env:"REALM_SAVE_EVERY" envDefault:"10"`
	APIPort        int           `env:"REALM_API_PORT" envDefault:"8080"`
	AdminKey       string        `env:"REALM_ADMIN_KEY"`
	MiracleCatalog string        `env:"REALM_MIRACLE_CATALOG"`
	CastRate       float64       `env:"REALM_CAST_RATE" envDefault:"2"`
	CastBurst      int           `env:"REALM_CAST_BURST" envDefault:"5"`
	LogLevel       string        `env:"REALM_LOG_LEVEL" envDefault:"info"`
	SummaryEvery   uint64        `env:"REALM_SUMMARY_EVERY" envDefault:"60"`
	HookTimeout    time.Duration `env:"REALM_HOOK_TIMEOUT" envDefault:"2s"`
	OverrunPolicy  string        `env:"REALM_OVERRUN_POLICY" envDefault:"skip"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("REALM_TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	if c.MapRadius < 0 {
		return fmt.Errorf("REALM_MAP_RADIUS must not be negative, got %d", c.MapRadius)
	}
	if c.APIPort < 0 || c.APIPort > 65535 {
		return fmt.Errorf("REALM_API_PORT out of range: %d", c.APIPort)
	}
	if c.CastRate <= 0 || c.CastBurst <= 0 {
		return fmt.Errorf("REALM_CAST_RATE and REALM_CAST_BURST must be positive")
	}
	switch c.OverrunPolicy {
	case "skip", "queue":
	default:
		return fmt.Errorf("REALM_OVERRUN_POLICY must be skip or queue, got %q", c.OverrunPolicy)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SlogLevel returns the configured log level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	lvl, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("REALM_LOG_LEVEL: unknown level %q", s)
}
