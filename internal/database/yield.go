// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/vigiadados/radar/internal/models"
)

// YieldBucket is one hourly yield observation for a source.
type YieldBucket struct {
	SourceID     string
	BucketStart  time.Time
	Fetches      int
	NewDocuments int
}

// BumpYield increments the bucket containing at. newDocs is 1 when the
// fetch produced a new document version, 0 otherwise.
func (db *DB) BumpYield(ctx context.Context, sourceID string, at time.Time, newDocs int) error {
	start := time.Now()
	bucket := at.UTC().Truncate(time.Hour)
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO yield_buckets (source_id, bucket_start, fetches, new_documents)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (source_id, bucket_start) DO UPDATE SET
			fetches = yield_buckets.fetches + 1,
			new_documents = yield_buckets.new_documents + excluded.new_documents`,
		sourceID, bucket, newDocs)
	observe("upsert", "yield_buckets", start, err)
	if err != nil {
		return fmt.Errorf("bump yield %s: %w", sourceID, err)
	}
	return nil
}

// YieldBuckets returns the buckets for a source since the cutoff, oldest
// first. The yield monitor builds its rolling baseline from these.
func (db *DB) YieldBuckets(ctx context.Context, sourceID string, since time.Time) ([]YieldBucket, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT source_id, bucket_start, fetches, new_documents
		FROM yield_buckets
		WHERE source_id = ? AND bucket_start >= ?
		ORDER BY bucket_start`, sourceID, since)
	observe("list", "yield_buckets", start, err)
	if err != nil {
		return nil, fmt.Errorf("yield buckets %s: %w", sourceID, err)
	}
	defer rows.Close()

	var out []YieldBucket
	for rows.Next() {
		var b YieldBucket
		if err := rows.Scan(&b.SourceID, &b.BucketStart, &b.Fetches, &b.NewDocuments); err != nil {
			return nil, fmt.Errorf("scan yield bucket: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// InsertStarvationIncident records one DATA_STARVATION observation.
func (db *DB) InsertStarvationIncident(ctx context.Context, inc *models.StarvationIncident) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO starvation_incidents
			(id, source_id, observed_yield, expected_yield, window_hours, opened_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.SourceID, inc.ObservedYield, inc.ExpectedYield, inc.WindowHours, inc.OpenedAt)
	observe("insert", "starvation_incidents", start, err)
	if err != nil {
		return fmt.Errorf("insert starvation incident %s: %w", inc.SourceID, err)
	}
	return nil
}

// LastStarvationIncident returns the most recent incident open time for a
// source, or the zero time when none exists. Used to avoid re-opening the
// same incident on every monitor tick.
func (db *DB) LastStarvationIncident(ctx context.Context, sourceID string) (time.Time, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(opened_at), TIMESTAMP '1970-01-01')
		FROM starvation_incidents WHERE source_id = ?`, sourceID)
	var t time.Time
	err := row.Scan(&t)
	observe("get", "starvation_incidents", start, err)
	if err != nil {
		return time.Time{}, fmt.Errorf("last starvation incident %s: %w", sourceID, err)
	}
	if t.Year() <= 1970 {
		return time.Time{}, nil
	}
	return t, nil
}
