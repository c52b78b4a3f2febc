// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

// Package organizer clusters document versions into events. Linkage applies
// three rules in order: shared strong anchor, SimHash near-duplicate, and
// token-similarity same-event. Cross-event consolidation is deferred to the
// canonicalizer, which folds events that accumulated the same strong anchor.
package organizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vigiadados/radar/internal/config"
	"github.com/vigiadados/radar/internal/database"
	"github.com/vigiadados/radar/internal/kv"
	"github.com/vigiadados/radar/internal/logging"
	"github.com/vigiadados/radar/internal/metrics"
	"github.com/vigiadados/radar/internal/models"
	"github.com/vigiadados/radar/internal/textsim"
)

// recentScanLimit bounds the candidate window for rules 2 and 3.
const recentScanLimit = 500

// Result reports one linkage decision.
type Result struct {
	EventID string
	Created bool
	// Rule is hard_anchor, near_dup, same_event or new_event.
	Rule string
}

// Organizer links documents to events. Safe for concurrent use; linkage is
// read-mostly and the edge insert is idempotent.
type Organizer struct {
	cfg   *config.Config
	db    *database.DB
	store *kv.Store

	// Rescore, when set, is called after material moves between events so
	// the pipeline recomputes the affected scores. Folds, editorial merges
	// and splits all change the inputs the scorer saw.
	Rescore func(ctx context.Context, eventID string)

	now func() time.Time
}

func (o *Organizer) rescore(ctx context.Context, eventID string) {
	if o.Rescore != nil {
		o.Rescore(ctx, eventID)
	}
}

// New creates an organizer.
func New(cfg *config.Config, db *database.DB, store *kv.Store) *Organizer {
	return &Organizer{cfg: cfg, db: db, store: store, now: time.Now}
}

// Organize links one document version to an event, creating the event when
// no rule matches.
func (o *Organizer) Organize(ctx context.Context, docID string, pool models.Pool) (*Result, error) {
	doc, err := o.db.GetDocument(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("organize %s: %w", docID, err)
	}
	docAnchors, err := o.db.AnchorsForDoc(ctx, docID)
	if err != nil {
		return nil, err
	}

	now := o.now().UTC()

	eventID, rule, err := o.match(ctx, doc, docAnchors, now)
	if err != nil {
		return nil, err
	}

	created := false
	if eventID == "" {
		eventID, err = o.createEvent(ctx, doc, pool, now)
		if err != nil {
			return nil, err
		}
		created = true
		rule = "new_event"
	}

	if err := o.attach(ctx, eventID, doc, created, now); err != nil {
		return nil, err
	}

	metrics.EventLinkageTotal.WithLabelValues(rule).Inc()
	logging.Debug().Str("doc_id", docID).Str("event_id", eventID).
		Str("rule", rule).Msg("Document organized")
	return &Result{EventID: eventID, Created: created, Rule: rule}, nil
}

// match runs the three linkage rules in order and returns the target event.
func (o *Organizer) match(ctx context.Context, doc *models.Document, docAnchors []models.Anchor, now time.Time) (string, string, error) {
	// Rule 1: shared strong anchor inside the anchor window. Earliest
	// matching event wins so late copies fold toward the origin.
	anchorSince := now.Add(-o.cfg.Organizer.AnchorWindow)
	for _, a := range docAnchors {
		if !a.Type.IsStrong() {
			continue
		}
		ids, err := o.db.EventsByAnchor(ctx, a.Type, a.Value, anchorSince)
		if err != nil {
			return "", "", err
		}
		if len(ids) > 0 {
			return ids[0], "hard_anchor", nil
		}
	}

	// Rules 2 and 3 scan recent documents once.
	sameEventSince := now.Add(-o.cfg.Organizer.SameEventWindow)
	recent, err := o.db.RecentDocuments(ctx, sameEventSince, recentScanLimit)
	if err != nil {
		return "", "", err
	}

	docLede := lede(doc)

	// Rule 2: SimHash near-duplicate.
	for _, cand := range recent {
		if cand.ID == doc.ID || cand.URL == doc.URL {
			continue
		}
		if textsim.Hamming(doc.SimHash, cand.SimHash) <= o.cfg.Organizer.NearDupHamming {
			if eventID, err := o.liveEventForDoc(ctx, cand.ID); err != nil {
				return "", "", err
			} else if eventID != "" {
				return eventID, "near_dup", nil
			}
		}
	}

	// Rule 3: title+lede token similarity.
	for _, cand := range recent {
		if cand.ID == doc.ID || cand.URL == doc.URL {
			continue
		}
		if textsim.Jaccard(docLede, lede(&cand)) >= o.cfg.Organizer.SameEventJaccard {
			if eventID, err := o.liveEventForDoc(ctx, cand.ID); err != nil {
				return "", "", err
			} else if eventID != "" {
				return eventID, "same_event", nil
			}
		}
	}

	return "", "", nil
}

// liveEventForDoc resolves the candidate's event and rejects terminal ones.
func (o *Organizer) liveEventForDoc(ctx context.Context, docID string) (string, error) {
	eventID, err := o.db.EventForDoc(ctx, docID)
	if err != nil || eventID == "" {
		return "", err
	}
	event, err := o.db.GetEvent(ctx, eventID)
	if err != nil {
		return "", err
	}
	if event.Status.Terminal() {
		return "", nil
	}
	return eventID, nil
}

func (o *Organizer) createEvent(ctx context.Context, doc *models.Document, pool models.Pool, now time.Time) (string, error) {
	summary := doc.Title
	if summary == "" {
		summary = doc.CleanText
	}
	if max := o.cfg.Organizer.SummaryMaxLen; max > 0 && len(summary) > max {
		summary = truncateRunes(summary, max)
	}
	event := &models.Event{
		ID:          uuid.NewString(),
		Status:      models.StatusNew,
		Summary:     summary,
		OriginPool:  pool,
		FirstSeenAt: now,
		LastSeenAt:  now,
		UpdatedAt:   now,
	}
	if err := o.db.InsertEvent(ctx, event); err != nil {
		return "", err
	}
	return event.ID, nil
}

func (o *Organizer) attach(ctx context.Context, eventID string, doc *models.Document, isPrimary bool, now time.Time) error {
	if err := o.db.LinkDoc(ctx, &models.EventDoc{
		EventID:   eventID,
		DocID:     doc.ID,
		SourceID:  doc.SourceID,
		SeenAt:    now,
		IsPrimary: isPrimary,
	}); err != nil {
		return err
	}
	if err := o.db.TouchEvent(ctx, eventID, now); err != nil {
		return err
	}
	if err := o.store.BumpVelocity(eventID, now, 48*time.Hour); err != nil {
		logging.Warn().Err(err).Str("event_id", eventID).Msg("Velocity bump failed")
	}
	return nil
}

// lede is the similarity text for rule 3: the title plus the opening of the
// body.
func lede(doc *models.Document) string {
	opening := doc.CleanText
	if len(opening) > 400 {
		opening = truncateRunes(opening, 400)
	}
	return strings.TrimSpace(doc.Title + " " + opening)
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
