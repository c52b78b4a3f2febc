// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 15*time.Second, cfg.Lifecycle.GateTimeoutFast)
	assert.Equal(t, 45*time.Second, cfg.Lifecycle.GateTimeoutRender)
	assert.Equal(t, 15*time.Minute, cfg.Lifecycle.QuarantineTTL)
	assert.Equal(t, 70.0, cfg.Scoring.HotThreshold)
	assert.Equal(t, 12, cfg.Organizer.NearDupHamming)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 0 }},
		{"missing db path", func(c *Config) { c.Database.Path = "" }},
		{"missing user agent", func(c *Config) { c.Profiles.UserAgent = "" }},
		{"zero pool concurrency", func(c *Config) { c.Fetch.Fast.Concurrency = 0 }},
		{"negative pool timeout", func(c *Config) { c.Fetch.Deep.Timeout = -time.Second }},
		{"breaker failures", func(c *Config) { c.Fetch.BreakerFailures = 0 }},
		{"hamming out of range", func(c *Config) { c.Organizer.NearDupHamming = 65 }},
		{"jaccard out of range", func(c *Config) { c.Organizer.SameEventJaccard = 1.5 }},
		{"hot threshold", func(c *Config) { c.Scoring.HotThreshold = 0 }},
		{"gate timeout", func(c *Config) { c.Lifecycle.GateTimeoutFast = 0 }},
		{"quarantine ttl", func(c *Config) { c.Lifecycle.QuarantineTTL = 0 }},
		{"nats url without embedded", func(c *Config) { c.NATS.URL = ""; c.NATS.EmbeddedServer = false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadLayersFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9001\nscoring:\n  hot_threshold: 55\n"), 0o600))

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("RADAR_SERVER_HOST", "127.0.0.1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port, "file overrides default")
	assert.Equal(t, 55.0, cfg.Scoring.HotThreshold)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "env overrides file layer")
	assert.Equal(t, "/data/radar.duckdb", cfg.Database.Path, "untouched default survives")
}

func TestLoadCORSOriginsFromEnv(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("RADAR_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}
