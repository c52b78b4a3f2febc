// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/vigiadados/radar/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("database: not found")

// UpsertSource inserts or updates a source record. Called on profile loads.
func (db *DB) UpsertSource(ctx context.Context, s *models.Source) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (id, domain, tier, is_official, lang, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			domain = excluded.domain,
			tier = excluded.tier,
			is_official = excluded.is_official,
			lang = excluded.lang,
			enabled = excluded.enabled`,
		s.ID, s.Domain, s.Tier, s.IsOfficial, s.Lang, s.Enabled, s.CreatedAt)
	observe("upsert", "sources", start, err)
	if err != nil {
		return fmt.Errorf("upsert source %s: %w", s.ID, err)
	}
	return nil
}

// GetSource returns one source by id.
func (db *DB) GetSource(ctx context.Context, id string) (*models.Source, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, domain, tier, is_official, lang, enabled, created_at
		FROM sources WHERE id = ?`, id)

	var s models.Source
	err := row.Scan(&s.ID, &s.Domain, &s.Tier, &s.IsOfficial, &s.Lang, &s.Enabled, &s.CreatedAt)
	observe("get", "sources", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source %s: %w", id, err)
	}
	return &s, nil
}

// ListEnabledSources returns all enabled sources ordered by tier.
func (db *DB) ListEnabledSources(ctx context.Context) ([]models.Source, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, domain, tier, is_official, lang, enabled, created_at
		FROM sources WHERE enabled ORDER BY tier, id`)
	observe("list", "sources", start, err)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []models.Source
	for rows.Next() {
		var s models.Source
		if err := rows.Scan(&s.ID, &s.Domain, &s.Tier, &s.IsOfficial, &s.Lang, &s.Enabled, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertFetchAttempt appends one immutable fetch record.
func (db *DB) InsertFetchAttempt(ctx context.Context, a *models.FetchAttempt) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO fetch_attempts
			(id, source_id, url, status_code, error_class, latency_ms, bytes, pool, snapshot_hash, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SourceID, a.URL, a.StatusCode, nullString(a.ErrorClass),
		a.LatencyMS, a.Bytes, string(a.Pool), nullString(a.SnapshotHash), a.AttemptedAt)
	observe("insert", "fetch_attempts", start, err)
	if err != nil {
		return fmt.Errorf("insert fetch attempt: %w", err)
	}
	return nil
}

// InsertSnapshot stores a content-addressed snapshot. Duplicate hashes are
// ignored: the same body fetched twice is one snapshot.
func (db *DB) InsertSnapshot(ctx context.Context, s *models.Snapshot) error {
	start := time.Now()
	headers, err := json.Marshal(s.Headers)
	if err != nil {
		return fmt.Errorf("marshal snapshot headers: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO snapshots (hash, url, headers, body_ref, bytes, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (hash) DO NOTHING`,
		s.Hash, s.URL, string(headers), nullString(s.BodyRef), s.Bytes, s.FetchedAt)
	observe("insert", "snapshots", start, err)
	if err != nil {
		return fmt.Errorf("insert snapshot %s: %w", s.Hash, err)
	}
	return nil
}

// GetSnapshot returns one snapshot by body hash.
func (db *DB) GetSnapshot(ctx context.Context, hash string) (*models.Snapshot, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `
		SELECT hash, url, CAST(headers AS VARCHAR), body_ref, bytes, fetched_at
		FROM snapshots WHERE hash = ?`, hash)

	var s models.Snapshot
	var headers sql.NullString
	var bodyRef sql.NullString
	err := row.Scan(&s.Hash, &s.URL, &headers, &bodyRef, &s.Bytes, &s.FetchedAt)
	observe("get", "snapshots", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", hash, err)
	}
	s.BodyRef = bodyRef.String
	if headers.Valid && headers.String != "" {
		if err := json.Unmarshal([]byte(headers.String), &s.Headers); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot headers: %w", err)
		}
	}
	return &s, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
