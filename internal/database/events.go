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
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/vigiadados/radar/internal/models"
)

// ErrSelfMerge is returned when a merge names the same event on both sides.
var ErrSelfMerge = errors.New("database: cannot merge event into itself")

// InsertEvent stores a new event and appends its first state record.
func (db *DB) InsertEvent(ctx context.Context, e *models.Event) error {
	start := time.Now()
	flags, err := json.Marshal(e.Flags)
	if err != nil {
		return fmt.Errorf("marshal event flags: %w", err)
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events
			(id, status, flags, canonical_event_id, summary, lane, origin_pool,
			 score_plantao, first_seen_at, last_seen_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Status), string(flags), nullString(e.CanonicalEventID),
		nullString(e.Summary), nullString(e.Lane), string(e.OriginPool),
		e.ScorePlantao, e.FirstSeenAt, e.LastSeenAt, e.UpdatedAt)
	if err != nil {
		observe("insert", "events", start, err)
		return fmt.Errorf("insert event %s: %w", e.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO event_states (event_id, status, reason, "at") VALUES (?, ?, ?, ?)`,
		e.ID, string(e.Status), "created", e.UpdatedAt)
	if err != nil {
		observe("insert", "event_states", start, err)
		return fmt.Errorf("insert initial state %s: %w", e.ID, err)
	}

	err = tx.Commit()
	observe("insert", "events", start, err)
	if err != nil {
		return fmt.Errorf("commit event %s: %w", e.ID, err)
	}
	return nil
}

// GetEvent returns one event by id without canonical resolution.
func (db *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `
		SELECT CAST(id AS VARCHAR), status, CAST(flags AS VARCHAR),
		       CAST(canonical_event_id AS VARCHAR), summary, lane, origin_pool,
		       score_plantao, first_seen_at, last_seen_at, updated_at
		FROM events WHERE id = ?`, id)

	e, err := scanEvent(row)
	observe("get", "events", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

// ResolveCanonical returns the canonical event for id, following at most one
// tombstone pointer. Merge folding keeps pointers one step deep, so a single
// hop always lands on a canonical event.
func (db *DB) ResolveCanonical(ctx context.Context, id string) (*models.Event, error) {
	e, err := db.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.CanonicalEventID == "" {
		return e, nil
	}
	return db.GetEvent(ctx, e.CanonicalEventID)
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var e models.Event
	var flags, canonicalID, summary, lane sql.NullString
	var status, pool string
	err := row.Scan(&e.ID, &status, &flags, &canonicalID, &summary, &lane, &pool,
		&e.ScorePlantao, &e.FirstSeenAt, &e.LastSeenAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Status = models.EventStatus(status)
	e.OriginPool = models.Pool(pool)
	e.CanonicalEventID = canonicalID.String
	e.Summary = summary.String
	e.Lane = lane.String
	if flags.Valid && flags.String != "" && flags.String != "null" {
		if err := json.Unmarshal([]byte(flags.String), &e.Flags); err != nil {
			return nil, fmt.Errorf("unmarshal event flags: %w", err)
		}
	}
	return &e, nil
}

// UpdateEventStatus sets the event status and appends a state record in one
// transaction. The caller validates the transition.
func (db *DB) UpdateEventStatus(ctx context.Context, id string, status models.EventStatus, reason string, at time.Time) error {
	start := time.Now()
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE events SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), at, id)
	if err != nil {
		observe("update", "events", start, err)
		return fmt.Errorf("update event status %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO event_states (event_id, status, reason, "at") VALUES (?, ?, ?, ?)`,
		id, string(status), nullString(reason), at)
	if err != nil {
		observe("insert", "event_states", start, err)
		return fmt.Errorf("append state record %s: %w", id, err)
	}

	err = tx.Commit()
	observe("update", "events", start, err)
	if err != nil {
		return fmt.Errorf("commit status %s: %w", id, err)
	}
	return nil
}

// SetEventFlags replaces the flag set of an event.
func (db *DB) SetEventFlags(ctx context.Context, id string, flags map[string]bool) error {
	start := time.Now()
	data, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("marshal flags: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		UPDATE events SET flags = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(data), id)
	observe("update", "events", start, err)
	if err != nil {
		return fmt.Errorf("set event flags %s: %w", id, err)
	}
	return nil
}

// TouchEvent advances last_seen_at when new material arrives.
func (db *DB) TouchEvent(ctx context.Context, id string, seenAt time.Time) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `
		UPDATE events SET last_seen_at = GREATEST(last_seen_at, ?), updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, seenAt, id)
	observe("update", "events", start, err)
	if err != nil {
		return fmt.Errorf("touch event %s: %w", id, err)
	}
	return nil
}

// LinkDoc attaches a document to an event. The edge is unique per
// (event_id, doc_id); relinking is a no-op.
func (db *DB) LinkDoc(ctx context.Context, edge *models.EventDoc) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO event_docs (event_id, doc_id, source_id, seen_at, is_primary)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (event_id, doc_id) DO NOTHING`,
		edge.EventID, edge.DocID, edge.SourceID, edge.SeenAt, edge.IsPrimary)
	observe("insert", "event_docs", start, err)
	if err != nil {
		return fmt.Errorf("link doc %s to %s: %w", edge.DocID, edge.EventID, err)
	}
	return nil
}

// UnlinkDoc removes the edge between an event and a document. Used by the
// split operation.
func (db *DB) UnlinkDoc(ctx context.Context, eventID, docID string) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `
		DELETE FROM event_docs WHERE event_id = ? AND doc_id = ?`, eventID, docID)
	observe("delete", "event_docs", start, err)
	if err != nil {
		return fmt.Errorf("unlink doc %s from %s: %w", docID, eventID, err)
	}
	return nil
}

// EventForDoc returns the canonical event id a document is linked to, or ""
// when the document is unlinked.
func (db *DB) EventForDoc(ctx context.Context, docID string) (string, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `
		SELECT CAST(COALESCE(e.canonical_event_id, e.id) AS VARCHAR)
		FROM event_docs ed
		JOIN events e ON e.id = ed.event_id
		WHERE ed.doc_id = ?
		ORDER BY ed.seen_at LIMIT 1`, docID)
	var id string
	err := row.Scan(&id)
	observe("get", "event_docs", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("event for doc %s: %w", docID, err)
	}
	return id, nil
}

// AnchorCollision is one strong anchor value shared by several canonical
// events, the deferred canonicalizer's work unit. EventIDs are ordered by
// first_seen_at, earliest first.
type AnchorCollision struct {
	Type     models.AnchorType
	Value    string
	EventIDs []string
}

// AnchorCollisions returns strong anchor values currently held by more than
// one live canonical event inside the window.
func (db *DB) AnchorCollisions(ctx context.Context, strongTypes []models.AnchorType, since time.Time) ([]AnchorCollision, error) {
	if len(strongTypes) == 0 {
		return nil, nil
	}
	start := time.Now()

	placeholders := strings.Repeat("?,", len(strongTypes))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(strongTypes)+1)
	for _, t := range strongTypes {
		args = append(args, string(t))
	}
	args = append(args, since)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT a.type, a.value, CAST(e.id AS VARCHAR)
		FROM anchors a
		JOIN event_docs ed ON ed.doc_id = a.doc_id
		JOIN events e ON e.id = ed.event_id
		WHERE a.type IN (`+placeholders+`)
		  AND e.canonical_event_id IS NULL
		  AND e.status NOT IN ('MERGED', 'IGNORED', 'EXPIRED', 'FAILED_ENRICH')
		  AND e.last_seen_at >= ?
		GROUP BY a.type, a.value, e.id, e.first_seen_at
		ORDER BY a.type, a.value, e.first_seen_at`, args...)
	observe("list", "anchors", start, err)
	if err != nil {
		return nil, fmt.Errorf("anchor collisions: %w", err)
	}
	defer rows.Close()

	var out []AnchorCollision
	var current *AnchorCollision
	for rows.Next() {
		var typ, value, eventID string
		if err := rows.Scan(&typ, &value, &eventID); err != nil {
			return nil, fmt.Errorf("scan anchor collision: %w", err)
		}
		if current == nil || string(current.Type) != typ || current.Value != value {
			if current != nil && len(current.EventIDs) > 1 {
				out = append(out, *current)
			}
			current = &AnchorCollision{Type: models.AnchorType(typ), Value: value}
		}
		current.EventIDs = append(current.EventIDs, eventID)
	}
	if current != nil && len(current.EventIDs) > 1 {
		out = append(out, *current)
	}
	return out, rows.Err()
}

// EventDocCounts returns the document count and distinct source count for an
// event. Both feed the scoring formulas.
func (db *DB) EventDocCounts(ctx context.Context, eventID string) (docs, sources int, err error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT source_id)
		FROM event_docs WHERE event_id = ?`, eventID)
	err = row.Scan(&docs, &sources)
	observe("get", "event_docs", start, err)
	if err != nil {
		return 0, 0, fmt.Errorf("event doc counts %s: %w", eventID, err)
	}
	return docs, sources, nil
}

// EventSourceTiers returns the distinct source tiers represented in an
// event's documents, along with whether any source is official.
func (db *DB) EventSourceTiers(ctx context.Context, eventID string) (minTier int, official bool, err error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `
		SELECT COALESCE(MIN(s.tier), 4), COALESCE(BOOL_OR(s.is_official), FALSE)
		FROM event_docs ed
		JOIN sources s ON s.id = ed.source_id
		WHERE ed.event_id = ?`, eventID)
	err = row.Scan(&minTier, &official)
	observe("get", "event_docs", start, err)
	if err != nil {
		return 0, false, fmt.Errorf("event source tiers %s: %w", eventID, err)
	}
	return minTier, official, nil
}

// UpsertEventScore stores the latest dual scores for an event and mirrors
// score_plantao onto the event row for feed ordering.
func (db *DB) UpsertEventScore(ctx context.Context, s *models.EventScore) error {
	start := time.Now()
	reasons, err := json.Marshal(s.Reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin score tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO event_scores (event_id, score_plantao, score_oceano_azul, reasons, computed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO UPDATE SET
			score_plantao = excluded.score_plantao,
			score_oceano_azul = excluded.score_oceano_azul,
			reasons = excluded.reasons,
			computed_at = excluded.computed_at`,
		s.EventID, s.ScorePlantao, s.ScoreOceanoAzul, string(reasons), s.ComputedAt)
	if err != nil {
		observe("upsert", "event_scores", start, err)
		return fmt.Errorf("upsert score %s: %w", s.EventID, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE events SET score_plantao = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		s.ScorePlantao, s.EventID)
	if err != nil {
		observe("update", "events", start, err)
		return fmt.Errorf("mirror score %s: %w", s.EventID, err)
	}

	err = tx.Commit()
	observe("upsert", "event_scores", start, err)
	if err != nil {
		return fmt.Errorf("commit score %s: %w", s.EventID, err)
	}
	return nil
}

// GetEventScore returns the latest dual scores for an event, or ErrNotFound
// when it has never been scored.
func (db *DB) GetEventScore(ctx context.Context, eventID string) (*models.EventScore, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `
		SELECT CAST(event_id AS VARCHAR), score_plantao, score_oceano_azul,
		       CAST(reasons AS VARCHAR), computed_at
		FROM event_scores WHERE event_id = ?`, eventID)

	var s models.EventScore
	var reasons sql.NullString
	err := row.Scan(&s.EventID, &s.ScorePlantao, &s.ScoreOceanoAzul, &reasons, &s.ComputedAt)
	observe("get", "event_scores", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get score %s: %w", eventID, err)
	}
	if reasons.Valid && reasons.String != "" && reasons.String != "null" {
		if err := json.Unmarshal([]byte(reasons.String), &s.Reasons); err != nil {
			return nil, fmt.Errorf("unmarshal reasons: %w", err)
		}
	}
	return &s, nil
}

// EventsInStatusBefore returns ids of events sitting in status whose last
// state change is older than the cutoff. Drives the gating and quarantine
// sweepers.
func (db *DB) EventsInStatusBefore(ctx context.Context, status models.EventStatus, cutoff time.Time, limit int) ([]string, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT CAST(id AS VARCHAR) FROM events
		WHERE status = ? AND updated_at < ?
		ORDER BY updated_at LIMIT ?`, string(status), cutoff, limit)
	observe("list", "events", start, err)
	if err != nil {
		return nil, fmt.Errorf("events in %s before %s: %w", status, cutoff, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// EventsCreatedBefore returns events sitting in status whose creation is
// older than the cutoff. The gating clock runs from first_seen_at, not from
// the last write, so attachments cannot postpone the gate.
func (db *DB) EventsCreatedBefore(ctx context.Context, status models.EventStatus, cutoff time.Time, limit int) ([]models.Event, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT CAST(id AS VARCHAR), status, CAST(flags AS VARCHAR),
		       CAST(canonical_event_id AS VARCHAR), summary, lane, origin_pool,
		       score_plantao, first_seen_at, last_seen_at, updated_at
		FROM events
		WHERE status = ? AND first_seen_at < ?
		ORDER BY first_seen_at LIMIT ?`, string(status), cutoff, limit)
	observe("list", "events", start, err)
	if err != nil {
		return nil, fmt.Errorf("events created before %s: %w", cutoff, err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// EventsInactiveBefore returns events in status whose last_seen_at is older
// than the cutoff. Drives the inactivity-horizon sweeper.
func (db *DB) EventsInactiveBefore(ctx context.Context, status models.EventStatus, cutoff time.Time, limit int) ([]models.Event, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT CAST(id AS VARCHAR), status, CAST(flags AS VARCHAR),
		       CAST(canonical_event_id AS VARCHAR), summary, lane, origin_pool,
		       score_plantao, first_seen_at, last_seen_at, updated_at
		FROM events
		WHERE status = ? AND last_seen_at < ?
		ORDER BY last_seen_at LIMIT ?`, string(status), cutoff, limit)
	observe("list", "events", start, err)
	if err != nil {
		return nil, fmt.Errorf("events inactive before %s: %w", cutoff, err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]models.Event, error) {
	var out []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// StateHistory returns the append-only transition records of one event.
func (db *DB) StateHistory(ctx context.Context, eventID string) ([]models.EventStateRecord, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, CAST(event_id AS VARCHAR), status, reason, "at"
		FROM event_states WHERE event_id = ? ORDER BY id`, eventID)
	observe("list", "event_states", start, err)
	if err != nil {
		return nil, fmt.Errorf("state history %s: %w", eventID, err)
	}
	defer rows.Close()

	var out []models.EventStateRecord
	for rows.Next() {
		var r models.EventStateRecord
		var reason sql.NullString
		var status string
		if err := rows.Scan(&r.ID, &r.EventID, &status, &reason, &r.At); err != nil {
			return nil, fmt.Errorf("scan state record: %w", err)
		}
		r.Status = models.EventStatus(status)
		r.Reason = reason.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// MergeEvents folds the follower into the canonical event in one
// transaction: edges are re-homed, flags unioned, the max plantao score
// kept, the follower tombstoned, and the fold audited. Replays of the same
// (from, to, reason) pair are idempotent no-ops.
func (db *DB) MergeEvents(ctx context.Context, audit *models.MergeAudit) error {
	if audit.FromEventID == audit.ToEventID {
		return ErrSelfMerge
	}
	start := time.Now()

	done, err := db.hasMergeAudit(ctx, audit.FromEventID, audit.ToEventID, audit.ReasonCode)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	evidence, err := json.Marshal(audit.Evidence)
	if err != nil {
		return fmt.Errorf("marshal merge evidence: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Re-home edges; duplicates on the canonical side are dropped first so
	// the primary-key constraint cannot fire.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM event_docs
		WHERE event_id = ? AND doc_id IN (SELECT doc_id FROM event_docs WHERE event_id = ?)`,
		audit.FromEventID, audit.ToEventID); err != nil {
		return fmt.Errorf("drop duplicate edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE event_docs SET event_id = ? WHERE event_id = ?`,
		audit.ToEventID, audit.FromEventID); err != nil {
		return fmt.Errorf("re-home edges: %w", err)
	}

	// Flag union, score max, seen-window union.
	if _, err := tx.ExecContext(ctx, `
		UPDATE events e SET
			flags = (SELECT COALESCE(json_merge_patch(e.flags, f.flags), e.flags, f.flags)
			         FROM events f WHERE f.id = ?),
			score_plantao = GREATEST(e.score_plantao,
				(SELECT f.score_plantao FROM events f WHERE f.id = ?)),
			first_seen_at = LEAST(e.first_seen_at,
				(SELECT f.first_seen_at FROM events f WHERE f.id = ?)),
			last_seen_at = GREATEST(e.last_seen_at,
				(SELECT f.last_seen_at FROM events f WHERE f.id = ?)),
			updated_at = ?
		WHERE e.id = ?`,
		audit.FromEventID, audit.FromEventID, audit.FromEventID, audit.FromEventID,
		audit.MergedAt, audit.ToEventID); err != nil {
		return fmt.Errorf("fold follower fields: %w", err)
	}

	// Tombstone the follower with a one-step pointer.
	if _, err := tx.ExecContext(ctx, `
		UPDATE events SET status = 'MERGED', canonical_event_id = ?, updated_at = ?
		WHERE id = ?`,
		audit.ToEventID, audit.MergedAt, audit.FromEventID); err != nil {
		return fmt.Errorf("tombstone follower: %w", err)
	}

	// Any events already pointing at the follower are re-pointed so pointer
	// chains never exceed one step.
	if _, err := tx.ExecContext(ctx, `
		UPDATE events SET canonical_event_id = ?, updated_at = ?
		WHERE canonical_event_id = ?`,
		audit.ToEventID, audit.MergedAt, audit.FromEventID); err != nil {
		return fmt.Errorf("re-point followers: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO event_states (event_id, status, reason, "at") VALUES (?, 'MERGED', ?, ?)`,
		audit.FromEventID, audit.ReasonCode, audit.MergedAt); err != nil {
		return fmt.Errorf("append merge state: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO merge_audit (from_event_id, to_event_id, reason_code, evidence, merged_at)
		VALUES (?, ?, ?, ?, ?)`,
		audit.FromEventID, audit.ToEventID, audit.ReasonCode, string(evidence), audit.MergedAt); err != nil {
		return fmt.Errorf("insert merge audit: %w", err)
	}

	err = tx.Commit()
	observe("merge", "events", start, err)
	if err != nil {
		return fmt.Errorf("commit merge %s -> %s: %w", audit.FromEventID, audit.ToEventID, err)
	}
	return nil
}

func (db *DB) hasMergeAudit(ctx context.Context, from, to, reason string) (bool, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM merge_audit
		WHERE from_event_id = ? AND to_event_id = ? AND reason_code = ?`, from, to, reason)
	var n int
	err := row.Scan(&n)
	observe("get", "merge_audit", start, err)
	if err != nil {
		return false, fmt.Errorf("check merge audit: %w", err)
	}
	return n > 0, nil
}

// GetAlertState returns the anti-spam state for an event, or nil when the
// event has never alerted.
func (db *DB) GetAlertState(ctx context.Context, eventID string) (*models.EventAlertState, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `
		SELECT CAST(event_id AS VARCHAR), last_hash, last_alert_at, cooldown_until
		FROM alert_states WHERE event_id = ?`, eventID)

	var s models.EventAlertState
	var lastHash sql.NullString
	var lastAlertAt, cooldownUntil sql.NullTime
	err := row.Scan(&s.EventID, &lastHash, &lastAlertAt, &cooldownUntil)
	observe("get", "alert_states", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert state %s: %w", eventID, err)
	}
	s.LastHash = lastHash.String
	s.LastAlertAt = lastAlertAt.Time
	s.CooldownUntil = cooldownUntil.Time
	return &s, nil
}

// UpsertAlertState stores the anti-spam state after an alert decision.
func (db *DB) UpsertAlertState(ctx context.Context, s *models.EventAlertState) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO alert_states (event_id, last_hash, last_alert_at, cooldown_until)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (event_id) DO UPDATE SET
			last_hash = excluded.last_hash,
			last_alert_at = excluded.last_alert_at,
			cooldown_until = excluded.cooldown_until`,
		s.EventID, nullString(s.LastHash), s.LastAlertAt, s.CooldownUntil)
	observe("upsert", "alert_states", start, err)
	if err != nil {
		return fmt.Errorf("upsert alert state %s: %w", s.EventID, err)
	}
	return nil
}

// ActiveEvents returns canonical events in a non-terminal status ordered by
// plantao score, for the editorial feed.
func (db *DB) ActiveEvents(ctx context.Context, limit int) ([]models.Event, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT CAST(id AS VARCHAR), status, CAST(flags AS VARCHAR),
		       CAST(canonical_event_id AS VARCHAR), summary, lane, origin_pool,
		       score_plantao, first_seen_at, last_seen_at, updated_at
		FROM events
		WHERE canonical_event_id IS NULL
		  AND status NOT IN ('MERGED', 'IGNORED', 'EXPIRED', 'FAILED_ENRICH')
		ORDER BY score_plantao DESC, last_seen_at DESC
		LIMIT ?`, limit)
	observe("list", "events", start, err)
	if err != nil {
		return nil, fmt.Errorf("active events: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
