// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

// Package extractor turns raw snapshots into versioned documents. Each
// strategy parses its payload into candidate items; a new document version
// is stored only when the per-item content hash changed. Anchor and evidence
// extraction run inline so a document is never visible without its anchors.
package extractor

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/vigiadados/radar/internal/anchors"
	"github.com/vigiadados/radar/internal/config"
	"github.com/vigiadados/radar/internal/database"
	"github.com/vigiadados/radar/internal/logging"
	"github.com/vigiadados/radar/internal/metrics"
	"github.com/vigiadados/radar/internal/models"
	"github.com/vigiadados/radar/internal/profile"
	"github.com/vigiadados/radar/internal/textsim"
)

// BodyStore opens stored snapshot bodies. Implemented by the fetcher.
type BodyStore interface {
	SnapshotBody(hash string) (io.ReadCloser, error)
}

// item is one candidate document produced by a strategy.
type item struct {
	URL          string
	Title        string
	Text         string
	CanonicalURL string
	PublishedAt  *time.Time
}

// Extractor processes extract jobs. Safe for concurrent use.
type Extractor struct {
	cfg      *config.Config
	db       *database.DB
	bodies   BodyStore
	registry *profile.Registry
}

// New creates an extractor.
func New(cfg *config.Config, db *database.DB, bodies BodyStore, registry *profile.Registry) *Extractor {
	return &Extractor{cfg: cfg, db: db, bodies: bodies, registry: registry}
}

// Process extracts one snapshot and returns the ids of the new document
// versions it produced.
func (e *Extractor) Process(ctx context.Context, sourceID, url, snapshotHash string, strategy models.Strategy) ([]string, error) {
	snap, err := e.db.GetSnapshot(ctx, snapshotHash)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", snapshotHash, err)
	}
	body, err := e.openBody(snap)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	prof, _ := e.registry.Get(sourceID)

	var items []item
	switch strategy {
	case models.StrategyRSS:
		items, err = parseFeed(body)
	case models.StrategyHTML:
		items, err = parseHTML(body, snap.URL, prof)
	case models.StrategyAPI, models.StrategySPAAPI:
		items, err = parseAPI(body, prof)
	case models.StrategySPAHeadless:
		items, err = e.parseCaptured(body, snap, prof)
	case models.StrategyPDF:
		items, err = parsePDF(body, snap.URL)
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
	if err != nil {
		metrics.DocumentsExtracted.WithLabelValues(string(strategy), "parse_error").Inc()
		return nil, fmt.Errorf("extract %s (%s): %w", snap.URL, strategy, err)
	}

	newDocs := 0
	var docIDs []string
	for _, it := range items {
		docID, outcome, err := e.storeItem(ctx, sourceID, snapshotHash, strategy, it)
		if err != nil {
			return nil, err
		}
		metrics.DocumentsExtracted.WithLabelValues(string(strategy), outcome).Inc()
		if outcome == "new_version" {
			newDocs++
			docIDs = append(docIDs, docID)
		}
	}

	if err := e.db.BumpYield(ctx, sourceID, time.Now().UTC(), newDocs); err != nil {
		logging.Warn().Err(err).Str("source_id", sourceID).Msg("Yield bump failed")
	}
	return docIDs, nil
}

// openBody returns the decoded snapshot body, gunzipping when the origin
// served compressed bytes.
func (e *Extractor) openBody(snap *models.Snapshot) (io.ReadCloser, error) {
	body, err := e.bodies.SnapshotBody(snap.Hash)
	if err != nil {
		return nil, fmt.Errorf("open snapshot body %s: %w", snap.Hash, err)
	}
	if snap.Headers["Content-Encoding"] != "gzip" {
		return body, nil
	}
	gz, err := gzip.NewReader(body)
	if err != nil {
		_ = body.Close()
		return nil, fmt.Errorf("gunzip snapshot %s: %w", snap.Hash, err)
	}
	return &gzipBody{gz: gz, raw: body}, nil
}

type gzipBody struct {
	gz  *gzip.Reader
	raw io.ReadCloser
}

func (g *gzipBody) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipBody) Close() error {
	_ = g.gz.Close()
	return g.raw.Close()
}

// storeItem versions one item and stores its anchors and evidence.
// Outcomes: new_version, unchanged, discarded.
func (e *Extractor) storeItem(ctx context.Context, sourceID, snapshotHash string, strategy models.Strategy, it item) (string, string, error) {
	if it.URL == "" {
		return "", "discarded", nil
	}
	if len(it.Text) < e.cfg.Organizer.MinCleanTextLen {
		return "", "discarded", nil
	}

	contentHash := itemHash(it)
	latestVersion, latestHash, err := e.db.LatestDocumentVersion(ctx, it.URL)
	if err != nil {
		return "", "", err
	}
	if latestHash == contentHash {
		return "", "unchanged", nil
	}

	prof, _ := e.registry.Get(sourceID)
	official := prof != nil && prof.IsOfficial
	lang := ""
	if prof != nil {
		lang = prof.Lang
	}

	now := time.Now().UTC()
	doc := &models.Document{
		ID:           uuid.NewString(),
		SourceID:     sourceID,
		URL:          it.URL,
		Version:      latestVersion + 1,
		ContentHash:  contentHash,
		Title:        it.Title,
		CleanText:    it.Text,
		Lang:         lang,
		CanonicalURL: it.CanonicalURL,
		PublishedAt:  it.PublishedAt,
		SnapshotHash: snapshotHash,
		SimHash:      textsim.SimHash64(it.Title + " " + it.Text),
		CreatedAt:    now,
	}
	if err := e.db.InsertDocument(ctx, doc); err != nil {
		return "", "", err
	}

	matches := anchors.Extract(it.Title + "\n" + it.Text)
	rows := make([]models.Anchor, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, models.Anchor{
			ID:         uuid.NewString(),
			DocID:      doc.ID,
			Type:       m.Type,
			Value:      m.Value,
			Span:       m.Span,
			Confidence: m.Confidence,
		})
		metrics.AnchorsExtracted.WithLabelValues(string(m.Type)).Inc()
	}
	if err := e.db.InsertAnchors(ctx, rows); err != nil {
		return "", "", err
	}

	feats := anchors.Features(doc.ID, matches, it.Text, official)
	if err := e.db.UpsertEvidenceFeatures(ctx, &feats); err != nil {
		return "", "", err
	}
	metrics.EvidenceScoreObserved.Observe(feats.EvidenceScore)

	logging.Debug().Str("doc_id", doc.ID).Str("url", it.URL).
		Int("version", doc.Version).Int("anchors", len(rows)).
		Msg("Document version stored")
	return doc.ID, "new_version", nil
}

// itemHash is the per-item change detector: title, link and body text.
func itemHash(it item) string {
	h := sha256.New()
	_, _ = io.WriteString(h, it.Title)
	_, _ = h.Write([]byte{0})
	_, _ = io.WriteString(h, it.URL)
	_, _ = h.Write([]byte{0})
	_, _ = io.WriteString(h, it.Text)
	return hex.EncodeToString(h.Sum(nil))
}

// parseCaptured handles SPA_HEADLESS snapshots. The render pool fetches the
// endpoint the page's own XHR calls, so the snapshot must match the
// profile's capture filter before any parsing happens: a response from the
// wrong URL or with the wrong content type means the page changed its
// internals and the profile needs attention, not silent best-effort parsing.
func (e *Extractor) parseCaptured(body io.Reader, snap *models.Snapshot, prof *profile.Profile) ([]item, error) {
	if prof == nil || prof.Capture == nil {
		return nil, errors.New("headless snapshot without a capture filter")
	}
	if err := prof.Capture.Match(snap.URL, snap.Headers["Content-Type"]); err != nil {
		return nil, err
	}
	if prof.API != nil {
		return parseAPI(body, prof)
	}
	return parseHTML(body, snap.URL, prof)
}
