// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/radar/config.yaml",
	"/etc/radar/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "RADAR_CONFIG_PATH"

// envPrefix namespaces all environment overrides: RADAR_SERVER_PORT etc.
const envPrefix = "RADAR_"

// defaultConfig returns a Config with all defaults applied. Defaults come
// first; config file and env vars layer on top.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8040,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
		},
		Database: DatabaseConfig{
			Path:         "/data/radar.duckdb",
			MaxMemory:    "2GB",
			Threads:      0, // 0 = runtime.NumCPU()
			MaxOpenConns: 8,
			MaxIdleConns: 2,
		},
		KV: KVConfig{
			Path:       "/data/radar-kv",
			InMemory:   false,
			GCInterval: 10 * time.Minute,
		},
		NATS: NATSConfig{
			URL:                  "nats://127.0.0.1:4222",
			EmbeddedServer:       true,
			StoreDir:             "/data/nats/jetstream",
			StreamName:           "RADAR",
			DurableName:          "radar-pipeline",
			QueueGroup:           "radar",
			MaxReconnects:        60,
			ReconnectWait:        2 * time.Second,
			AckWaitTimeout:       30 * time.Second,
			CloseTimeout:         30 * time.Second,
			RetryCount:           3,
			RetryInitialInterval: 100 * time.Millisecond,
			PoisonQueueTopic:     "radar.poison",
		},
		Profiles: ProfilesConfig{
			Dir:       "/etc/radar/sources",
			UserAgent: "VigiaDados/1.0 (institutional; newsroom monitoring)",
		},
		Scheduler: SchedulerConfig{
			TickInterval:  5 * time.Second,
			HighWaterMark: 500,
		},
		Fetch: FetchConfig{
			Fast:                PoolConfig{Concurrency: 16, Timeout: 5 * time.Second},
			Render:              PoolConfig{Concurrency: 4, Timeout: 30 * time.Second},
			Deep:                PoolConfig{Concurrency: 2, Timeout: 5 * time.Minute},
			BreakerFailures:     5,
			BreakerCooldown:     2 * time.Minute,
			SnapshotDir:         "/data/snapshots",
			AllowPrivateTargets: false,
		},
		Organizer: OrganizerConfig{
			NearDupHamming:       12,
			SameEventJaccard:     0.42,
			AnchorWindow:         24 * time.Hour,
			SameEventWindow:      6 * time.Hour,
			CanonicalizeInterval: time.Minute,
			MinCleanTextLen:      80,
			SummaryMaxLen:        280,
			BroadcastAnchorsTopK: 8,
		},
		Scoring: ScoringConfig{
			HotThreshold:      70.0,
			DecayHalfLife:     2 * time.Hour,
			VelocityWindow:    30 * time.Minute,
			ViralVelocity:     50.0,
			ViralMinDiversity: 3,
		},
		Lifecycle: LifecycleConfig{
			GateTimeoutFast:   15 * time.Second,
			GateTimeoutRender: 45 * time.Second,
			QuarantineTTL:     15 * time.Minute,
			InactivityHorizon: 12 * time.Hour,
			MaintenanceTick:   5 * time.Second,
		},
		Alerts: AlertsConfig{
			Cooldown: 5 * time.Minute,
		},
		Yield: YieldConfig{
			TickInterval: 5 * time.Minute,
			BucketSize:   time.Hour,
			MinExpected:  1.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds configuration from defaults, an optional YAML file, and
// RADAR_-prefixed environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// RADAR_SERVER_PORT -> server.port. Env names are matched against the
	// known config paths with separators squashed, so multi-word keys like
	// server.cors_origins resolve from RADAR_SERVER_CORS_ORIGINS without an
	// ambiguous underscore-to-dot rewrite.
	pathBySquash := make(map[string]string)
	for _, p := range k.Keys() {
		pathBySquash[squashKey(p)] = p
	}
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		squashed := squashKey(strings.TrimPrefix(s, envPrefix))
		if path, ok := pathBySquash[squashed]; ok {
			return path
		}
		return "" // unknown env var, ignored
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// squashKey lowercases a key and drops separators for env-name matching.
func squashKey(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "")
	return strings.ReplaceAll(s, ".", "")
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when set via env.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated env strings into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		str, ok := val.(string)
		if !ok {
			continue // already a slice from YAML or defaults
		}
		parts := strings.Split(str, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("set slice field %s: %w", path, err)
		}
	}
	return nil
}
