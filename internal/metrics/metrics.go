// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

// Package metrics provides Prometheus instrumentation for the ingestion
// pipeline: fetch attempts and latency per pool, extraction yield, anchor
// counts, event lifecycle transitions, merges, broadcast throughput, alert
// decisions, and starvation incidents.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Fetcher
	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_fetch_attempts_total",
			Help: "Total fetch attempts by pool, status class and error class",
		},
		[]string{"pool", "status_class", "error_class"},
	)

	FetchLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "radar_fetch_latency_seconds",
			Help:    "End-to-end fetch latency per pool and strategy",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30, 60, 120},
		},
		[]string{"pool", "strategy"},
	)

	FetchBytesRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_fetch_bytes_read_total",
			Help: "Total body bytes read per pool",
		},
		[]string{"pool"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "radar_circuit_breaker_state",
			Help: "Circuit breaker state per source (0=closed, 1=half-open, 2=open)",
		},
		[]string{"source_id"},
	)

	// Extractor
	DocumentsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_documents_extracted_total",
			Help: "Documents produced per strategy and outcome (new_version, unchanged, discarded)",
		},
		[]string{"strategy", "outcome"},
	)

	// Anchor engine
	AnchorsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_anchors_extracted_total",
			Help: "Anchors extracted per anchor type",
		},
		[]string{"anchor_type"},
	)

	EvidenceScoreObserved = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "radar_evidence_score",
			Help:    "Distribution of per-document evidence scores",
			Buckets: []float64{0, 0.5, 1, 2, 3, 5, 8, 12, 15},
		},
	)

	// Organizer
	EventLinkageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_event_linkage_total",
			Help: "Organizer linkage decisions (hard_anchor, near_dup, same_event, new_event)",
		},
		[]string{"rule"},
	)

	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_event_merges_total",
			Help: "Canonical merges by reason code",
		},
		[]string{"reason_code"},
	)

	// Scoring
	EventScoresObserved = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "radar_event_scores",
			Help:    "Distribution of computed event scores",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"score_type"},
	)

	UnverifiedViralTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radar_unverified_viral_total",
			Help: "Events flagged UNVERIFIED_VIRAL",
		},
	)

	// State machine
	StateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_event_state_transitions_total",
			Help: "Event state transitions by from/to status and reason",
		},
		[]string{"from_status", "to_status", "reason"},
	)

	// Alerts
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_alerts_total",
			Help: "Alert dispatcher decisions (sent, cooldown, dedup)",
		},
		[]string{"decision"},
	)

	// Broadcaster
	BroadcastMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_broadcast_messages_total",
			Help: "Messages pushed to the live stream by kind",
		},
		[]string{"kind"},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "radar_websocket_clients",
			Help: "Currently connected websocket clients",
		},
	)

	// Yield monitor
	StarvationIncidentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_starvation_incidents_total",
			Help: "DATA_STARVATION incidents opened per source",
		},
		[]string{"source_id"},
	)

	// Scheduler
	SchedulerDispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_scheduler_dispatches_total",
			Help: "Fetch jobs dispatched per pool and outcome (enqueued, skipped_inflight, throttled)",
		},
		[]string{"pool", "outcome"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "radar_queue_depth",
			Help: "Approximate in-flight jobs per pool",
		},
		[]string{"pool"},
	)

	// Database
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "radar_db_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_db_query_errors_total",
			Help: "Total DuckDB query errors",
		},
		[]string{"operation", "table"},
	)
)
