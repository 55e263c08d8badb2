// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

// Package config provides layered configuration management for Castellan.
//
// Configuration is loaded via Koanf v2 from three sources, highest priority
// last: built-in defaults, an optional YAML config file, and environment
// variables. The resulting Config is validated with go-playground/validator
// plus hand-written cross-field checks before the application starts.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the Castellan server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Sync     SyncConfig     `koanf:"sync"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host" validate:"required"`
	Port    int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	// Path is the database file path, or ":memory:" for tests.
	Path string `koanf:"path" validate:"required"`

	// MaxMemory is the DuckDB memory limit, e.g. "2GB".
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 means runtime.NumCPU().
	Threads int `koanf:"threads" validate:"gte=0"`
}

// SyncConfig holds synchronization engine settings.
type SyncConfig struct {
	// SchedulerInterval is how often the scheduler checks for due servers.
	SchedulerInterval time.Duration `koanf:"scheduler_interval" validate:"gt=0"`

	// DaysBack is the default lookback window for a sync run.
	DaysBack int `koanf:"days_back" validate:"gt=0"`

	// MaxEvents is the default page cap for a sync run.
	MaxEvents int `koanf:"max_events" validate:"gt=0"`

	// RetryAttempts and RetryDelay control HTTP 429 retries on remote
	// fetches. Zero values select the feed client's built-in defaults.
	RetryAttempts int           `koanf:"retry_attempts" validate:"gte=0"`
	RetryDelay    time.Duration `koanf:"retry_delay" validate:"gte=0"`

	// FetchTimeout bounds a single remote fetch call.
	FetchTimeout time.Duration `koanf:"fetch_timeout" validate:"gt=0"`

	// RequestsPerSecond rate-limits outbound feed requests per server.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gt=0"`
}

// SecurityConfig holds secrets and API protection settings.
type SecurityConfig struct {
	// EncryptionSecret derives the AES key protecting stored feed API keys.
	// Must be at least 32 characters in production.
	EncryptionSecret string `koanf:"encryption_secret"`

	// RateLimitReqs requests per RateLimitWindow per client IP on the API.
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// minEncryptionSecretLen is the minimum length for the encryption secret.
const minEncryptionSecretLen = 32

// Validate checks the configuration for structural and cross-field errors.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Security.EncryptionSecret != "" && len(c.Security.EncryptionSecret) < minEncryptionSecretLen {
		return fmt.Errorf("security.encryption_secret must be at least %d characters", minEncryptionSecretLen)
	}

	return nil
}
