// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/vigiadados/radar/internal/models"
)

// InsertFeedback appends one immutable editorial action.
func (db *DB) InsertFeedback(ctx context.Context, f *models.FeedbackEvent) error {
	start := time.Now()
	payload, err := json.Marshal(f.Payload)
	if err != nil {
		return fmt.Errorf("marshal feedback payload: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO feedback_events (id, event_id, action, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.EventID, string(f.Action), string(payload), f.CreatedAt)
	observe("insert", "feedback_events", start, err)
	if err != nil {
		return fmt.Errorf("insert feedback %s: %w", f.ID, err)
	}
	return nil
}

// FeedbackForEvent returns the editorial actions on one event, oldest first.
func (db *DB) FeedbackForEvent(ctx context.Context, eventID string) ([]models.FeedbackEvent, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT CAST(id AS VARCHAR), CAST(event_id AS VARCHAR), action, CAST(payload AS VARCHAR), created_at
		FROM feedback_events WHERE event_id = ? ORDER BY created_at`, eventID)
	observe("list", "feedback_events", start, err)
	if err != nil {
		return nil, fmt.Errorf("feedback for event %s: %w", eventID, err)
	}
	defer rows.Close()

	var out []models.FeedbackEvent
	for rows.Next() {
		var f models.FeedbackEvent
		var action string
		var payload sql.NullString
		if err := rows.Scan(&f.ID, &f.EventID, &action, &payload, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		f.Action = models.FeedbackAction(action)
		if payload.Valid && payload.String != "" && payload.String != "null" {
			if err := json.Unmarshal([]byte(payload.String), &f.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal feedback payload: %w", err)
			}
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
