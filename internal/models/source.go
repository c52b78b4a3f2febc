// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package models

import "time"

// Pool identifies the worker pool a fetch job runs on. Each pool has its own
// concurrency budget and internal SLA.
type Pool string

const (
	FastPool        Pool = "FAST_POOL"
	HeavyRenderPool Pool = "HEAVY_RENDER_POOL"
	DeepExtractPool Pool = "DEEP_EXTRACT_POOL"
)

// Valid reports whether p is a known pool.
func (p Pool) Valid() bool {
	switch p {
	case FastPool, HeavyRenderPool, DeepExtractPool:
		return true
	}
	return false
}

// Strategy selects how a source's payload is fetched and extracted.
type Strategy string

const (
	StrategyRSS         Strategy = "RSS"
	StrategyHTML        Strategy = "HTML"
	StrategyAPI         Strategy = "API"
	StrategySPAAPI      Strategy = "SPA_API"
	StrategySPAHeadless Strategy = "SPA_HEADLESS"
	StrategyPDF         Strategy = "PDF"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyRSS, StrategyHTML, StrategyAPI, StrategySPAAPI, StrategySPAHeadless, StrategyPDF:
		return true
	}
	return false
}

// Source is the canonical database record for an ingestion source.
// Mutated only by administrative profile loads.
type Source struct {
	ID         string    `json:"id"`
	Domain     string    `json:"domain"`
	Tier       int       `json:"tier"`
	IsOfficial bool      `json:"is_official"`
	Lang       string    `json:"lang"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
}

// FetchAttempt records one network attempt against a source. Immutable once
// written; 304 responses are recorded with zero bytes and no snapshot.
type FetchAttempt struct {
	ID           string    `json:"id"`
	SourceID     string    `json:"source_id"`
	URL          string    `json:"url"`
	StatusCode   int       `json:"status_code"`
	ErrorClass   string    `json:"error_class,omitempty"`
	LatencyMS    int64     `json:"latency_ms"`
	Bytes        int64     `json:"bytes"`
	Pool         Pool      `json:"pool"`
	SnapshotHash string    `json:"snapshot_hash,omitempty"`
	AttemptedAt  time.Time `json:"attempted_at"`
}

// Snapshot is a byte-accurate capture of a fetched payload, addressed by the
// sha256 of its body. The body itself lives in an external blob reference.
type Snapshot struct {
	Hash      string            `json:"hash"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers,omitempty"`
	BodyRef   string            `json:"body_ref,omitempty"`
	Bytes     int64             `json:"bytes"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// StarvationIncident is opened by the yield monitor when a source keeps
// returning 2xx while its useful yield collapses to ~0.
type StarvationIncident struct {
	ID            string    `json:"id"`
	SourceID      string    `json:"source_id"`
	ObservedYield float64   `json:"observed_yield"`
	ExpectedYield float64   `json:"expected_yield"`
	WindowHours   int       `json:"window_hours"`
	OpenedAt      time.Time `json:"opened_at"`
}
