// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables. All columns are defined in
// the initial CREATE TABLE statement; there are no in-place migrations yet.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("execute schema statement: %s: %w", query, err)
		}
	}
	return nil
}

func tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			domain TEXT NOT NULL,
			tier INTEGER NOT NULL,
			is_official BOOLEAN NOT NULL DEFAULT FALSE,
			lang TEXT NOT NULL DEFAULT 'pt-BR',
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Immutable. 304 responses carry zero bytes and no snapshot hash.
		`CREATE TABLE IF NOT EXISTS fetch_attempts (
			id UUID PRIMARY KEY,
			source_id TEXT NOT NULL,
			url TEXT NOT NULL,
			status_code INTEGER NOT NULL DEFAULT 0,
			error_class TEXT,
			latency_ms BIGINT NOT NULL DEFAULT 0,
			bytes BIGINT NOT NULL DEFAULT 0,
			pool TEXT NOT NULL,
			snapshot_hash TEXT,
			attempted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Content-addressed by sha256 of the raw body. Bodies live outside
		// the database; body_ref points at the blob.
		`CREATE TABLE IF NOT EXISTS snapshots (
			hash TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			headers JSON,
			body_ref TEXT,
			bytes BIGINT NOT NULL DEFAULT 0,
			fetched_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Versioned per URL: a row exists for (url, version) only when the
		// content hash changed against the latest stored version.
		`CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			source_id TEXT NOT NULL,
			url TEXT NOT NULL,
			version INTEGER NOT NULL,
			content_hash TEXT NOT NULL,
			title TEXT,
			clean_text TEXT NOT NULL,
			lang TEXT,
			canonical_url TEXT,
			published_at TIMESTAMP,
			modified_at TIMESTAMP,
			snapshot_hash TEXT,
			simhash UBIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (url, version)
		)`,

		`CREATE TABLE IF NOT EXISTS anchors (
			id UUID PRIMARY KEY,
			doc_id UUID NOT NULL,
			type TEXT NOT NULL,
			value TEXT NOT NULL,
			span TEXT,
			confidence DOUBLE NOT NULL DEFAULT 1.0
		)`,

		`CREATE TABLE IF NOT EXISTS evidence_features (
			doc_id UUID PRIMARY KEY,
			evidence_score DOUBLE NOT NULL DEFAULT 0,
			has_pdf BOOLEAN NOT NULL DEFAULT FALSE,
			has_official_domain BOOLEAN NOT NULL DEFAULT FALSE,
			anchor_count INTEGER NOT NULL DEFAULT 0,
			money_count INTEGER NOT NULL DEFAULT 0,
			has_table_like BOOLEAN NOT NULL DEFAULT FALSE
		)`,

		`CREATE TABLE IF NOT EXISTS entity_mentions (
			doc_id UUID NOT NULL,
			key TEXT NOT NULL,
			label TEXT NOT NULL,
			span TEXT
		)`,

		// canonical_event_id is the one-step tombstone pointer; NULL marks a
		// canonical event.
		`CREATE TABLE IF NOT EXISTS events (
			id UUID PRIMARY KEY,
			status TEXT NOT NULL,
			flags JSON,
			canonical_event_id UUID,
			summary TEXT,
			lane TEXT,
			origin_pool TEXT NOT NULL,
			score_plantao DOUBLE NOT NULL DEFAULT 0,
			first_seen_at TIMESTAMP NOT NULL,
			last_seen_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS event_docs (
			event_id UUID NOT NULL,
			doc_id UUID NOT NULL,
			source_id TEXT NOT NULL,
			seen_at TIMESTAMP NOT NULL,
			is_primary BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (event_id, doc_id)
		)`,

		`CREATE TABLE IF NOT EXISTS event_scores (
			event_id UUID PRIMARY KEY,
			score_plantao DOUBLE NOT NULL DEFAULT 0,
			score_oceano_azul DOUBLE NOT NULL DEFAULT 0,
			reasons JSON,
			computed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Append-only transition history.
		`CREATE SEQUENCE IF NOT EXISTS event_states_seq START 1`,
		`CREATE TABLE IF NOT EXISTS event_states (
			id BIGINT PRIMARY KEY DEFAULT nextval('event_states_seq'),
			event_id UUID NOT NULL,
			status TEXT NOT NULL,
			reason TEXT,
			"at" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE SEQUENCE IF NOT EXISTS merge_audit_seq START 1`,
		`CREATE TABLE IF NOT EXISTS merge_audit (
			id BIGINT PRIMARY KEY DEFAULT nextval('merge_audit_seq'),
			from_event_id UUID NOT NULL,
			to_event_id UUID NOT NULL,
			reason_code TEXT NOT NULL,
			evidence JSON,
			merged_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS alert_states (
			event_id UUID PRIMARY KEY,
			last_hash TEXT,
			last_alert_at TIMESTAMP,
			cooldown_until TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS feedback_events (
			id UUID PRIMARY KEY,
			event_id UUID NOT NULL,
			action TEXT NOT NULL,
			payload JSON,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// One row per (source, hour bucket). new_documents counts new
		// versions only; unchanged fetches do not contribute.
		`CREATE TABLE IF NOT EXISTS yield_buckets (
			source_id TEXT NOT NULL,
			bucket_start TIMESTAMP NOT NULL,
			fetches INTEGER NOT NULL DEFAULT 0,
			new_documents INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (source_id, bucket_start)
		)`,

		`CREATE TABLE IF NOT EXISTS starvation_incidents (
			id UUID PRIMARY KEY,
			source_id TEXT NOT NULL,
			observed_yield DOUBLE NOT NULL,
			expected_yield DOUBLE NOT NULL,
			window_hours INTEGER NOT NULL,
			opened_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
}

// createIndexes creates secondary indexes for the hot query paths.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_fetch_attempts_source_time ON fetch_attempts (source_id, attempted_at)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_url ON documents (url)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_created ON documents (created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_anchors_doc ON anchors (doc_id)`,
		`CREATE INDEX IF NOT EXISTS idx_anchors_type_value ON anchors (type, value)`,
		`CREATE INDEX IF NOT EXISTS idx_events_status ON events (status)`,
		`CREATE INDEX IF NOT EXISTS idx_events_last_seen ON events (last_seen_at)`,
		`CREATE INDEX IF NOT EXISTS idx_event_scores_plantao ON event_scores (score_plantao)`,
		`CREATE INDEX IF NOT EXISTS idx_event_scores_oceano ON event_scores (score_oceano_azul)`,
		`CREATE INDEX IF NOT EXISTS idx_event_docs_doc ON event_docs (doc_id)`,
		`CREATE INDEX IF NOT EXISTS idx_event_states_event ON event_states (event_id, "at")`,
		`CREATE INDEX IF NOT EXISTS idx_merge_audit_pair ON merge_audit (from_event_id, to_event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_event ON feedback_events (event_id, created_at)`,
	}

	for _, query := range indexes {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create index: %s: %w", query, err)
		}
	}
	return nil
}
