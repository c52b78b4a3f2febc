// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package organizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/vigiadados/radar/internal/metrics"
	"github.com/vigiadados/radar/internal/models"
)

// ErrEmptySplit is returned when a split names no documents.
var ErrEmptySplit = errors.New("organizer: split requires at least one document")

// EditorialMerge folds one event into another on an editor's say-so. Same
// invariants as an automatic merge; only the reason differs.
func (o *Organizer) EditorialMerge(ctx context.Context, fromEventID, toEventID string) error {
	target, err := o.db.ResolveCanonical(ctx, toEventID)
	if err != nil {
		return fmt.Errorf("editorial merge target: %w", err)
	}
	now := o.now().UTC()
	err = o.db.MergeEvents(ctx, &models.MergeAudit{
		FromEventID: fromEventID,
		ToEventID:   target.ID,
		ReasonCode:  "EDITORIAL_MERGE",
		MergedAt:    now,
	})
	if err != nil {
		return err
	}
	metrics.MergesTotal.WithLabelValues("EDITORIAL_MERGE").Inc()
	o.rescore(ctx, target.ID)
	return nil
}

// Split moves the named documents out of an event into a fresh one. The new
// event starts in NEW and is scored from scratch; the old event keeps its
// remaining documents and history.
func (o *Organizer) Split(ctx context.Context, eventID string, docIDs []string) (string, error) {
	if len(docIDs) == 0 {
		return "", ErrEmptySplit
	}
	source, err := o.db.ResolveCanonical(ctx, eventID)
	if err != nil {
		return "", fmt.Errorf("split source: %w", err)
	}

	now := o.now().UTC()
	var primary *models.Document
	for _, docID := range docIDs {
		doc, err := o.db.GetDocument(ctx, docID)
		if err != nil {
			return "", fmt.Errorf("split doc %s: %w", docID, err)
		}
		if primary == nil {
			primary = doc
		}
	}

	newEventID, err := o.createEvent(ctx, primary, source.OriginPool, now)
	if err != nil {
		return "", err
	}

	for i, docID := range docIDs {
		doc, err := o.db.GetDocument(ctx, docID)
		if err != nil {
			return "", err
		}
		if err := o.db.UnlinkDoc(ctx, source.ID, docID); err != nil {
			return "", err
		}
		if err := o.db.LinkDoc(ctx, &models.EventDoc{
			EventID:   newEventID,
			DocID:     docID,
			SourceID:  doc.SourceID,
			SeenAt:    now,
			IsPrimary: i == 0,
		}); err != nil {
			return "", err
		}
	}

	metrics.EventLinkageTotal.WithLabelValues("split").Inc()
	o.rescore(ctx, source.ID)
	o.rescore(ctx, newEventID)
	return newEventID, nil
}
