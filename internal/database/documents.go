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
	"strconv"
	"time"

	"github.com/vigiadados/radar/internal/models"
)

// LatestDocumentVersion returns the highest stored version and its content
// hash for a URL. version 0 and hash "" mean the URL has never produced a
// document.
func (db *DB) LatestDocumentVersion(ctx context.Context, url string) (version int, contentHash string, err error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `
		SELECT version, content_hash FROM documents
		WHERE url = ? ORDER BY version DESC LIMIT 1`, url)
	err = row.Scan(&version, &contentHash)
	observe("get", "documents", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("latest document version for %s: %w", url, err)
	}
	return version, contentHash, nil
}

// InsertDocument stores one new document version.
func (db *DB) InsertDocument(ctx context.Context, d *models.Document) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO documents
			(id, source_id, url, version, content_hash, title, clean_text, lang,
			 canonical_url, published_at, modified_at, snapshot_hash, simhash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CAST(? AS UBIGINT), ?)`,
		d.ID, d.SourceID, d.URL, d.Version, d.ContentHash, nullString(d.Title),
		d.CleanText, nullString(d.Lang), nullString(d.CanonicalURL),
		d.PublishedAt, d.ModifiedAt, nullString(d.SnapshotHash),
		strconv.FormatUint(d.SimHash, 10), d.CreatedAt)
	observe("insert", "documents", start, err)
	if err != nil {
		return fmt.Errorf("insert document %s v%d: %w", d.URL, d.Version, err)
	}
	return nil
}

// GetDocument returns one document by id.
func (db *DB) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `
		SELECT CAST(id AS VARCHAR), source_id, url, version, content_hash, title, clean_text, lang,
		       canonical_url, published_at, modified_at, snapshot_hash, simhash, created_at
		FROM documents WHERE id = ?`, id)

	d, err := scanDocument(row)
	observe("get", "documents", start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return d, nil
}

// RecentDocuments returns documents created since the cutoff, newest first.
// The organizer scans these for near-duplicate candidates.
func (db *DB) RecentDocuments(ctx context.Context, since time.Time, limit int) ([]models.Document, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT CAST(id AS VARCHAR), source_id, url, version, content_hash, title, clean_text, lang,
		       canonical_url, published_at, modified_at, snapshot_hash, simhash, created_at
		FROM documents WHERE created_at >= ?
		ORDER BY created_at DESC LIMIT ?`, since, limit)
	observe("list", "documents", start, err)
	if err != nil {
		return nil, fmt.Errorf("recent documents: %w", err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var d models.Document
	var title, lang, canonicalURL, snapshotHash sql.NullString
	var publishedAt, modifiedAt sql.NullTime
	err := row.Scan(&d.ID, &d.SourceID, &d.URL, &d.Version, &d.ContentHash,
		&title, &d.CleanText, &lang, &canonicalURL, &publishedAt, &modifiedAt,
		&snapshotHash, &d.SimHash, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.Title = title.String
	d.Lang = lang.String
	d.CanonicalURL = canonicalURL.String
	d.SnapshotHash = snapshotHash.String
	if publishedAt.Valid {
		t := publishedAt.Time
		d.PublishedAt = &t
	}
	if modifiedAt.Valid {
		t := modifiedAt.Time
		d.ModifiedAt = &t
	}
	return &d, nil
}

// InsertAnchors stores the full anchor set of one document.
func (db *DB) InsertAnchors(ctx context.Context, anchors []models.Anchor) error {
	if len(anchors) == 0 {
		return nil
	}
	start := time.Now()
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin anchors tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO anchors (id, doc_id, type, value, span, confidence)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare anchor insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range anchors {
		if _, err := stmt.ExecContext(ctx, a.ID, a.DocID, string(a.Type), a.Value, nullString(a.Span), a.Confidence); err != nil {
			observe("insert", "anchors", start, err)
			return fmt.Errorf("insert anchor %s: %w", a.ID, err)
		}
	}
	err = tx.Commit()
	observe("insert", "anchors", start, err)
	if err != nil {
		return fmt.Errorf("commit anchors: %w", err)
	}
	return nil
}

// AnchorsForDoc returns all anchors of one document.
func (db *DB) AnchorsForDoc(ctx context.Context, docID string) ([]models.Anchor, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT CAST(id AS VARCHAR), CAST(doc_id AS VARCHAR), type, value, span, confidence
		FROM anchors WHERE doc_id = ?`, docID)
	observe("list", "anchors", start, err)
	if err != nil {
		return nil, fmt.Errorf("anchors for doc %s: %w", docID, err)
	}
	defer rows.Close()
	return collectAnchors(rows)
}

// AnchorsForEvent returns all anchors attached to an event's documents.
func (db *DB) AnchorsForEvent(ctx context.Context, eventID string) ([]models.Anchor, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT CAST(a.id AS VARCHAR), CAST(a.doc_id AS VARCHAR), a.type, a.value, a.span, a.confidence
		FROM anchors a
		JOIN event_docs ed ON ed.doc_id = a.doc_id
		WHERE ed.event_id = ?`, eventID)
	observe("list", "anchors", start, err)
	if err != nil {
		return nil, fmt.Errorf("anchors for event %s: %w", eventID, err)
	}
	defer rows.Close()
	return collectAnchors(rows)
}

func collectAnchors(rows *sql.Rows) ([]models.Anchor, error) {
	var out []models.Anchor
	for rows.Next() {
		var a models.Anchor
		var span sql.NullString
		var typ string
		if err := rows.Scan(&a.ID, &a.DocID, &typ, &a.Value, &span, &a.Confidence); err != nil {
			return nil, fmt.Errorf("scan anchor: %w", err)
		}
		a.Type = models.AnchorType(typ)
		a.Span = span.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// EventsByAnchor returns canonical, non-terminal events holding a strong
// anchor with the given (type, value), whose last activity is inside the
// window. Used by the hard-merge rule and the deferred canonicalizer.
func (db *DB) EventsByAnchor(ctx context.Context, typ models.AnchorType, value string, since time.Time) ([]string, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT CAST(e.id AS VARCHAR)
		FROM events e
		JOIN event_docs ed ON ed.event_id = e.id
		JOIN anchors a ON a.doc_id = ed.doc_id
		WHERE a.type = ? AND a.value = ?
		  AND e.canonical_event_id IS NULL
		  AND e.status NOT IN ('MERGED', 'IGNORED', 'EXPIRED', 'FAILED_ENRICH')
		  AND e.last_seen_at >= ?
		ORDER BY e.first_seen_at`, string(typ), value, since)
	observe("list", "events", start, err)
	if err != nil {
		return nil, fmt.Errorf("events by anchor %s=%s: %w", typ, value, err)
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

// UpsertEvidenceFeatures stores the evidence summary of one document.
func (db *DB) UpsertEvidenceFeatures(ctx context.Context, f *models.EvidenceFeatures) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO evidence_features
			(doc_id, evidence_score, has_pdf, has_official_domain, anchor_count, money_count, has_table_like)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (doc_id) DO UPDATE SET
			evidence_score = excluded.evidence_score,
			has_pdf = excluded.has_pdf,
			has_official_domain = excluded.has_official_domain,
			anchor_count = excluded.anchor_count,
			money_count = excluded.money_count,
			has_table_like = excluded.has_table_like`,
		f.DocID, f.EvidenceScore, f.HasPDF, f.HasOfficialDomain, f.AnchorCount, f.MoneyCount, f.HasTableLike)
	observe("upsert", "evidence_features", start, err)
	if err != nil {
		return fmt.Errorf("upsert evidence features %s: %w", f.DocID, err)
	}
	return nil
}

// EvidenceForEvent aggregates evidence across an event's documents: the max
// per-document score plus the boolean features OR-ed together.
func (db *DB) EvidenceForEvent(ctx context.Context, eventID string) (*models.EvidenceFeatures, error) {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(f.evidence_score), 0),
		       COALESCE(BOOL_OR(f.has_pdf), FALSE),
		       COALESCE(BOOL_OR(f.has_official_domain), FALSE),
		       COALESCE(SUM(f.anchor_count), 0),
		       COALESCE(SUM(f.money_count), 0),
		       COALESCE(BOOL_OR(f.has_table_like), FALSE)
		FROM evidence_features f
		JOIN event_docs ed ON ed.doc_id = f.doc_id
		WHERE ed.event_id = ?`, eventID)

	f := models.EvidenceFeatures{DocID: eventID}
	err := row.Scan(&f.EvidenceScore, &f.HasPDF, &f.HasOfficialDomain, &f.AnchorCount, &f.MoneyCount, &f.HasTableLike)
	observe("get", "evidence_features", start, err)
	if err != nil {
		return nil, fmt.Errorf("evidence for event %s: %w", eventID, err)
	}
	return &f, nil
}

// InsertEntityMentions stores named-entity occurrences for one document.
func (db *DB) InsertEntityMentions(ctx context.Context, mentions []models.EntityMention) error {
	if len(mentions) == 0 {
		return nil
	}
	start := time.Now()
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mentions tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entity_mentions (doc_id, key, label, span) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare mention insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range mentions {
		if _, err := stmt.ExecContext(ctx, m.DocID, m.Key, m.Label, nullString(m.Span)); err != nil {
			observe("insert", "entity_mentions", start, err)
			return fmt.Errorf("insert mention %s: %w", m.Key, err)
		}
	}
	err = tx.Commit()
	observe("insert", "entity_mentions", start, err)
	if err != nil {
		return fmt.Errorf("commit mentions: %w", err)
	}
	return nil
}
