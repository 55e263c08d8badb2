// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8480, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Sync.SchedulerInterval)
	assert.Equal(t, 7, cfg.Sync.DaysBack)
	assert.Equal(t, 1000, cfg.Sync.MaxEvents)
	assert.Equal(t, 3, cfg.Sync.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.Sync.RetryDelay)
	assert.Equal(t, 2*time.Minute, cfg.Sync.FetchTimeout)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CASTELLAN_SYNC_MAX_EVENTS", "250")
	t.Setenv("CASTELLAN_SERVER_PORT", "9000")
	t.Setenv("CASTELLAN_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Sync.MaxEvents)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	base := func() *Config { return defaultConfig() }

	t.Run("defaults are valid", func(t *testing.T) {
		require.NoError(t, base().Validate())
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := base()
		cfg.Server.Port = 0
		require.Error(t, cfg.Validate())
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := base()
		cfg.Logging.Level = "verbose"
		require.Error(t, cfg.Validate())
	})

	t.Run("short encryption secret", func(t *testing.T) {
		cfg := base()
		cfg.Security.EncryptionSecret = "too-short"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "encryption_secret")
	})

	t.Run("long encryption secret", func(t *testing.T) {
		cfg := base()
		cfg.Security.EncryptionSecret = "0123456789abcdef0123456789abcdef"
		require.NoError(t, cfg.Validate())
	})
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CASTELLAN_SYNC_MAX_EVENTS", "sync.max_events"},
		{"CASTELLAN_SERVER_PORT", "server.port"},
		{"CASTELLAN_SECURITY_RATE_LIMIT_REQS", "security.rate_limit_reqs"},
		{"CASTELLAN_LOGGING", "logging"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, envTransformFunc(tt.in), "input %q", tt.in)
	}
}
