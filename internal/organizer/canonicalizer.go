// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package organizer

import (
	"context"
	"time"

	"github.com/vigiadados/radar/internal/logging"
	"github.com/vigiadados/radar/internal/metrics"
	"github.com/vigiadados/radar/internal/models"
)

// Canonicalizer is the deferred merge pass: linkage is greedy and local, so
// two events can independently accumulate the same strong anchor. This
// sweep folds them, earliest first_seen_at winning.
type Canonicalizer struct {
	org *Organizer

	// OnMerge, when set, is called after each successful fold so the live
	// stream can announce it. Errors are the callback's problem.
	OnMerge func(ctx context.Context, fromEventID, toEventID, reasonCode string)
}

// NewCanonicalizer wraps an organizer.
func NewCanonicalizer(org *Organizer) *Canonicalizer {
	return &Canonicalizer{org: org}
}

// Serve runs the merge sweep on the configured interval.
func (c *Canonicalizer) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.org.cfg.Organizer.CanonicalizeInterval)
	defer ticker.Stop()

	logging.Info().Dur("interval", c.org.cfg.Organizer.CanonicalizeInterval).Msg("Canonicalizer started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if merged, err := c.Sweep(ctx); err != nil {
				logging.Error().Err(err).Msg("Canonicalize sweep failed")
			} else if merged > 0 {
				logging.Info().Int("merged", merged).Msg("Canonicalize sweep folded events")
			}
		}
	}
}

func (c *Canonicalizer) String() string { return "canonicalizer" }

// Sweep finds strong-anchor collisions inside the anchor window and folds
// every later event into the earliest. Returns the number of folds.
func (c *Canonicalizer) Sweep(ctx context.Context) (int, error) {
	now := c.org.now().UTC()
	since := now.Add(-c.org.cfg.Organizer.AnchorWindow)

	collisions, err := c.org.db.AnchorCollisions(ctx, models.StrongAnchorTypes, since)
	if err != nil {
		return 0, err
	}

	merged := 0
	for _, col := range collisions {
		canonical := col.EventIDs[0]
		folded := false
		for _, follower := range col.EventIDs[1:] {
			reason := "SHARED_STRONG_ANCHOR_" + string(col.Type)

			from := ""
			if prior, err := c.org.db.GetEvent(ctx, follower); err == nil {
				from = string(prior.Status)
			}

			err := c.org.db.MergeEvents(ctx, &models.MergeAudit{
				FromEventID: follower,
				ToEventID:   canonical,
				ReasonCode:  reason,
				Evidence:    map[string]string{"anchor_type": string(col.Type), "anchor_value": col.Value},
				MergedAt:    now,
			})
			if err != nil {
				logging.Error().Err(err).
					Str("from", follower).Str("to", canonical).
					Msg("Merge failed")
				continue
			}
			metrics.MergesTotal.WithLabelValues(reason).Inc()
			metrics.StateTransitionsTotal.WithLabelValues(from, string(models.StatusMerged), reason).Inc()
			merged++
			folded = true
			if c.OnMerge != nil {
				c.OnMerge(ctx, follower, canonical, reason)
			}
		}
		if folded {
			c.org.rescore(ctx, canonical)
		}
	}
	return merged, nil
}
