// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for the tillrun runtime.
//
// Configuration comes from, in order of precedence: environment
// variables, ~/.tillrun/config.toml, built-in defaults. Every field has
// a working default; a missing config file is not an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete runtime configuration.
type Config struct {
	// StateDir is the shared state directory. All runtime instances of
	// one terminal profile point at the same directory.
	StateDir string `toml:"state_dir"`

	Session  SessionConfig  `toml:"session"`
	Activity ActivityConfig `toml:"activity"`
	Audit    AuditConfig    `toml:"audit"`
	Security SecurityConfig `toml:"security"`
}

// SessionConfig controls the session monitor.
type SessionConfig struct {
	// TickSeconds is the monitor interval.
	TickSeconds int `toml:"tick_seconds"`

	// IdleTimeoutMinutes is the idle window before forced logout.
	IdleTimeoutMinutes int `toml:"idle_timeout_minutes"`
}

// TickInterval returns the monitor interval as a duration.
func (c SessionConfig) TickInterval() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

// IdleTimeout returns the idle window as a duration.
func (c SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMinutes) * time.Minute
}

// ActivityConfig controls the activity tracker.
type ActivityConfig struct {
	// ThrottleSeconds is the minimum gap between persisted stamps.
	ThrottleSeconds int `toml:"throttle_seconds"`
}

// Throttle returns the stamp throttle as a duration.
func (c ActivityConfig) Throttle() time.Duration {
	return time.Duration(c.ThrottleSeconds) * time.Second
}

// AuditConfig controls the outbox syncer.
type AuditConfig struct {
	// SinkURL is the base URL of the remote audit collector. Empty
	// disables background delivery; entries still commit locally.
	SinkURL string `toml:"sink_url"`

	// SyncIntervalSeconds is the gap between drain passes.
	SyncIntervalSeconds int `toml:"sync_interval_seconds"`

	// DeliveryPerSecond bounds delivery throughput.
	DeliveryPerSecond float64 `toml:"delivery_per_second"`

	// MaxRetries is the delivery budget per entry.
	MaxRetries int `toml:"max_retries"`
}

// SyncInterval returns the drain interval as a duration.
func (c AuditConfig) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

// SecurityConfig controls at-rest protection of the session.
type SecurityConfig struct {
	// SealSession encrypts tokens before they reach disk.
	SealSession bool `toml:"seal_session"`

	// PassphraseEnv names an environment variable holding a sealing
	// passphrase. Empty means a random keyfile in the state dir.
	PassphraseEnv string `toml:"passphrase_env"`
}

// =============================================================================
// DEFAULTS AND LOADING
// =============================================================================

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StateDir: defaultStateDir(),
		Session: SessionConfig{
			TickSeconds:        30,
			IdleTimeoutMinutes: 60,
		},
		Activity: ActivityConfig{
			ThrottleSeconds: 10,
		},
		Audit: AuditConfig{
			SyncIntervalSeconds: 30,
			DeliveryPerSecond:   10,
			MaxRetries:          5,
		},
		Security: SecurityConfig{
			SealSession: true,
		},
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tillrun"
	}
	return filepath.Join(home, ".tillrun")
}

// Load reads the default config file location plus environment
// overrides.
func Load() (Config, error) {
	return LoadFrom(filepath.Join(defaultStateDir(), "config.toml"))
}

// LoadFrom reads the config file at path, if present, over the
// defaults, then applies environment overrides and validates.
func LoadFrom(path string) (Config, error) {
	cfg := Default()

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv maps TILLRUN_* environment variables over the config.
func applyEnv(cfg *Config) {
	if v := os.Getenv("TILLRUN_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("TILLRUN_SINK_URL"); v != "" {
		cfg.Audit.SinkURL = v
	}
	if v, ok := envInt("TILLRUN_TICK_SECONDS"); ok {
		cfg.Session.TickSeconds = v
	}
	if v, ok := envInt("TILLRUN_IDLE_TIMEOUT_MINUTES"); ok {
		cfg.Session.IdleTimeoutMinutes = v
	}
	if v, ok := envInt("TILLRUN_ACTIVITY_THROTTLE_SECONDS"); ok {
		cfg.Activity.ThrottleSeconds = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate rejects configurations the runtime cannot operate with.
func (c Config) Validate() error {
	if c.StateDir == "" {
		return errors.New("state_dir must not be empty")
	}
	if c.Session.TickSeconds <= 0 {
		return errors.New("session.tick_seconds must be positive")
	}
	if c.Session.IdleTimeoutMinutes <= 0 {
		return errors.New("session.idle_timeout_minutes must be positive")
	}
	if c.Activity.ThrottleSeconds < 0 {
		return errors.New("activity.throttle_seconds must not be negative")
	}
	if c.Audit.SyncIntervalSeconds <= 0 {
		return errors.New("audit.sync_interval_seconds must be positive")
	}
	if c.Audit.DeliveryPerSecond <= 0 {
		return errors.New("audit.delivery_per_second must be positive")
	}
	if c.Audit.MaxRetries < 0 {
		return errors.New("audit.max_retries must not be negative")
	}
	return nil
}

// AuditDBPath returns the audit database location under the state dir.
func (c Config) AuditDBPath() string {
	return filepath.Join(c.StateDir, "audit.db")
}
