// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

// Package config holds all application configuration, loaded with Koanf v2
// in three layers: built-in defaults, optional YAML config file, environment
// variables (highest priority, RADAR_ prefix).
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the radar.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	KV        KVConfig        `koanf:"kv"`
	NATS      NATSConfig      `koanf:"nats"`
	Profiles  ProfilesConfig  `koanf:"profiles"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Fetch     FetchConfig     `koanf:"fetch"`
	Organizer OrganizerConfig `koanf:"organizer"`
	Scoring   ScoringConfig   `koanf:"scoring"`
	Lifecycle LifecycleConfig `koanf:"lifecycle"`
	Alerts    AlertsConfig    `koanf:"alerts"`
	Yield     YieldConfig     `koanf:"yield"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	CORSOrigins []string      `koanf:"cors_origins"`
	// RateLimitReqs requests per RateLimitWindow per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads 0 means runtime.NumCPU().
	Threads      int `koanf:"threads"`
	MaxOpenConns int `koanf:"max_open_conns"`
	MaxIdleConns int `koanf:"max_idle_conns"`
}

// KVConfig holds the badger key-value store settings. The KV store keeps
// rate-limit counters, circuit-breaker state, and short-lived locks; it is
// never a source of truth.
type KVConfig struct {
	Path       string        `koanf:"path"`
	InMemory   bool          `koanf:"in_memory"`
	GCInterval time.Duration `koanf:"gc_interval"`
}

// NATSConfig holds Watermill/NATS JetStream settings.
type NATSConfig struct {
	URL            string        `koanf:"url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	StoreDir       string        `koanf:"store_dir"`
	StreamName     string        `koanf:"stream_name"`
	DurableName    string        `koanf:"durable_name"`
	QueueGroup     string        `koanf:"queue_group"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
	AckWaitTimeout time.Duration `koanf:"ack_wait_timeout"`
	CloseTimeout   time.Duration `koanf:"close_timeout"`
	// Router middleware
	RetryCount           int           `koanf:"retry_count"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`
	PoisonQueueTopic     string        `koanf:"poison_queue_topic"`
}

// ProfilesConfig locates the source-profile contracts.
type ProfilesConfig struct {
	// Dir is scanned for *.yaml profile files at startup.
	Dir string `koanf:"dir"`
	// UserAgent is the institutional User-Agent; never rotated.
	UserAgent string `koanf:"user_agent"`
}

// SchedulerConfig drives fetch-job dispatching.
type SchedulerConfig struct {
	TickInterval time.Duration `koanf:"tick_interval"`
	// HighWaterMark is the per-pool queue depth above which dispatches are
	// throttled proportionally. Tier-1 sources are the last to be throttled.
	HighWaterMark int `koanf:"high_water_mark"`
}

// PoolConfig is the per-pool concurrency budget and transport timeout.
type PoolConfig struct {
	Concurrency int           `koanf:"concurrency"`
	Timeout     time.Duration `koanf:"timeout"`
}

// FetchConfig holds cross-pool fetcher settings.
type FetchConfig struct {
	Fast   PoolConfig `koanf:"fast"`
	Render PoolConfig `koanf:"render"`
	Deep   PoolConfig `koanf:"deep"`
	// Circuit breaker: open after BreakerFailures consecutive failures for
	// BreakerCooldown.
	BreakerFailures int           `koanf:"breaker_failures"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown"`
	SnapshotDir     string        `koanf:"snapshot_dir"`
	// AllowPrivateTargets disables the public-address guard. Local
	// development only; never set in production.
	AllowPrivateTargets bool `koanf:"allow_private_targets"`
}

// OrganizerConfig holds clustering thresholds.
type OrganizerConfig struct {
	// NearDupHamming is the max SimHash64 hamming distance for near-duplicate
	// attachment.
	NearDupHamming int `koanf:"near_dup_hamming"`
	// SameEventJaccard is the min title+lede token similarity for
	// probabilistic attachment.
	SameEventJaccard float64 `koanf:"same_event_jaccard"`
	// AnchorWindow bounds rule 1 and deferred canonicalisation.
	AnchorWindow time.Duration `koanf:"anchor_window"`
	// SameEventWindow bounds rule 3.
	SameEventWindow      time.Duration `koanf:"same_event_window"`
	CanonicalizeInterval time.Duration `koanf:"canonicalize_interval"`
	MinCleanTextLen      int           `koanf:"min_clean_text_len"`
	SummaryMaxLen        int           `koanf:"summary_max_len"`
	BroadcastAnchorsTopK int           `koanf:"broadcast_anchors_top_k"`
}

// ScoringConfig holds the dual-score tunables. The HOT threshold is
// deliberately configuration, not a constant.
type ScoringConfig struct {
	HotThreshold      float64       `koanf:"hot_threshold"`
	DecayHalfLife     time.Duration `koanf:"decay_half_life"`
	VelocityWindow    time.Duration `koanf:"velocity_window"`
	ViralVelocity     float64       `koanf:"viral_velocity"`
	ViralMinDiversity int           `koanf:"viral_min_diversity"`
}

// LifecycleConfig holds state-machine timers. Gating clocks start at event
// creation and are independent of transport timeouts.
type LifecycleConfig struct {
	GateTimeoutFast   time.Duration `koanf:"gate_timeout_fast"`
	GateTimeoutRender time.Duration `koanf:"gate_timeout_render"`
	QuarantineTTL     time.Duration `koanf:"quarantine_ttl"`
	InactivityHorizon time.Duration `koanf:"inactivity_horizon"`
	MaintenanceTick   time.Duration `koanf:"maintenance_tick"`
}

// AlertsConfig holds the anti-spam dispatcher settings.
type AlertsConfig struct {
	Cooldown time.Duration `koanf:"cooldown"`
}

// YieldConfig holds the data-starvation monitor settings.
type YieldConfig struct {
	TickInterval time.Duration `koanf:"tick_interval"`
	// BucketSize groups useful yield per source for the rolling baseline.
	BucketSize time.Duration `koanf:"bucket_size"`
	// MinExpected is the baseline floor below which no incident is opened.
	MinExpected float64 `koanf:"min_expected"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks invariants the koanf layers cannot express.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.NATS.URL == "" && !c.NATS.EmbeddedServer {
		return fmt.Errorf("nats.url is required when the embedded server is disabled")
	}
	if c.Profiles.UserAgent == "" {
		return fmt.Errorf("profiles.user_agent is required")
	}
	for name, p := range map[string]PoolConfig{"fast": c.Fetch.Fast, "render": c.Fetch.Render, "deep": c.Fetch.Deep} {
		if p.Concurrency < 1 {
			return fmt.Errorf("fetch.%s.concurrency must be >= 1", name)
		}
		if p.Timeout <= 0 {
			return fmt.Errorf("fetch.%s.timeout must be positive", name)
		}
	}
	if c.Fetch.BreakerFailures < 1 {
		return fmt.Errorf("fetch.breaker_failures must be >= 1")
	}
	if c.Organizer.NearDupHamming < 0 || c.Organizer.NearDupHamming > 64 {
		return fmt.Errorf("organizer.near_dup_hamming must be within [0,64]")
	}
	if c.Organizer.SameEventJaccard <= 0 || c.Organizer.SameEventJaccard > 1 {
		return fmt.Errorf("organizer.same_event_jaccard must be within (0,1]")
	}
	if c.Scoring.HotThreshold <= 0 {
		return fmt.Errorf("scoring.hot_threshold must be positive")
	}
	if c.Lifecycle.GateTimeoutFast <= 0 || c.Lifecycle.GateTimeoutRender <= 0 {
		return fmt.Errorf("lifecycle gate timeouts must be positive")
	}
	if c.Lifecycle.QuarantineTTL <= 0 {
		return fmt.Errorf("lifecycle.quarantine_ttl must be positive")
	}
	return nil
}
