// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/vigiadados/radar/internal/alerts"
	"github.com/vigiadados/radar/internal/broadcast"
	"github.com/vigiadados/radar/internal/database"
	"github.com/vigiadados/radar/internal/extractor"
	"github.com/vigiadados/radar/internal/fetcher"
	"github.com/vigiadados/radar/internal/lifecycle"
	"github.com/vigiadados/radar/internal/logging"
	"github.com/vigiadados/radar/internal/models"
	"github.com/vigiadados/radar/internal/organizer"
	"github.com/vigiadados/radar/internal/profile"
	"github.com/vigiadados/radar/internal/scoring"
)

// Handlers holds the stage implementations behind the router. Each handler
// decodes one job type, runs one stage, and emits the next stage's jobs.
type Handlers struct {
	db          *database.DB
	registry    *profile.Registry
	fetcher     *fetcher.Fetcher
	extractor   *extractor.Extractor
	organizer   *organizer.Organizer
	scorer      *scoring.Scorer
	machine     *lifecycle.Machine
	alerts      *alerts.Dispatcher
	broadcaster *broadcast.Broadcaster
}

// NewHandlers wires the stage implementations.
func NewHandlers(
	db *database.DB,
	registry *profile.Registry,
	f *fetcher.Fetcher,
	e *extractor.Extractor,
	o *organizer.Organizer,
	s *scoring.Scorer,
	m *lifecycle.Machine,
	a *alerts.Dispatcher,
	b *broadcast.Broadcaster,
) *Handlers {
	return &Handlers{
		db: db, registry: registry,
		fetcher: f, extractor: e, organizer: o,
		scorer: s, machine: m, alerts: a, broadcaster: b,
	}
}

// HandleFetch polls one source and hands the snapshot to extraction. Fetch
// failures are already recorded as attempts with backoff state inside the
// fetcher, so the message is acked either way; redelivering it would just
// hammer the source again before its cadence allows.
func (h *Handlers) HandleFetch(msg *message.Message) ([]*message.Message, error) {
	var job FetchJob
	if err := Decode(msg, &job); err != nil {
		logging.Error().Err(err).Str("uuid", msg.UUID).Msg("Bad fetch job payload")
		return nil, nil
	}

	res, err := h.fetcher.Fetch(msg.Context(), job.SourceID, job.URL, job.Pool)
	if err != nil {
		logging.Warn().Err(err).
			Str("source_id", job.SourceID).
			Str("pool", string(job.Pool)).
			Msg("Fetch failed")
		return nil, nil
	}
	if res.NotModified {
		return nil, nil
	}

	prof, ok := h.registry.Get(job.SourceID)
	if !ok {
		logging.Warn().Str("source_id", job.SourceID).Msg("Fetched source has no profile; dropping snapshot")
		return nil, nil
	}
	next, err := NewMessage(ExtractJob{
		SourceID:     job.SourceID,
		URL:          job.URL,
		SnapshotHash: res.SnapshotHash,
		Strategy:     prof.Strategy,
		Pool:         job.Pool,
	})
	if err != nil {
		return nil, err
	}
	return []*message.Message{next}, nil
}

// HandleExtract parses one snapshot into document versions and emits one
// organize job per new version. Errors propagate so the retry middleware
// gets a shot at transient snapshot-store failures.
func (h *Handlers) HandleExtract(msg *message.Message) ([]*message.Message, error) {
	var job ExtractJob
	if err := Decode(msg, &job); err != nil {
		logging.Error().Err(err).Str("uuid", msg.UUID).Msg("Bad extract job payload")
		return nil, nil
	}

	docIDs, err := h.extractor.Process(msg.Context(), job.SourceID, job.URL, job.SnapshotHash, job.Strategy)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", job.SnapshotHash, err)
	}

	out := make([]*message.Message, 0, len(docIDs))
	for _, docID := range docIDs {
		next, err := NewMessage(OrganizeJob{DocID: docID, Pool: job.Pool})
		if err != nil {
			return nil, err
		}
		out = append(out, next)
	}
	return out, nil
}

// HandleOrganize links one document version to an event and asks the scorer
// to recompute it.
func (h *Handlers) HandleOrganize(msg *message.Message) ([]*message.Message, error) {
	var job OrganizeJob
	if err := Decode(msg, &job); err != nil {
		logging.Error().Err(err).Str("uuid", msg.UUID).Msg("Bad organize job payload")
		return nil, nil
	}

	res, err := h.organizer.Organize(msg.Context(), job.DocID, job.Pool)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			logging.Warn().Str("doc_id", job.DocID).Msg("Organize job for missing document; dropping")
			return nil, nil
		}
		return nil, err
	}

	next, err := NewMessage(ScoreJob{EventID: res.EventID, Trigger: "new_material"})
	if err != nil {
		return nil, err
	}
	return []*message.Message{next}, nil
}

// HandleScore recomputes scores, applies the resulting state changes, and
// feeds the alert dispatcher and the live stream. Scoring is idempotent, so
// this handler is safe to redeliver.
func (h *Handlers) HandleScore(msg *message.Message) error {
	var job ScoreJob
	if err := Decode(msg, &job); err != nil {
		logging.Error().Err(err).Str("uuid", msg.UUID).Msg("Bad score job payload")
		return nil
	}
	ctx := msg.Context()

	before, err := h.db.ResolveCanonical(ctx, job.EventID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			logging.Warn().Str("event_id", job.EventID).Msg("Score job for missing event; dropping")
			return nil
		}
		return err
	}
	if before.Status.Terminal() {
		return nil
	}

	assessment, err := h.scorer.Compute(ctx, before.ID)
	if err != nil {
		return fmt.Errorf("score %s: %w", before.ID, err)
	}
	if err := h.machine.Apply(ctx, before.ID, assessment); err != nil {
		return fmt.Errorf("apply assessment %s: %w", before.ID, err)
	}

	after, err := h.db.GetEvent(ctx, before.ID)
	if err != nil {
		return err
	}
	if after.Status != before.Status {
		h.emitTransition(ctx, before.Status, after)
	}

	// Best effort: a dropped stream update self-heals on the next recompute.
	if err := h.broadcaster.EventUpsert(ctx, before.ID); err != nil {
		logging.Warn().Err(err).Str("event_id", before.ID).Msg("Stream upsert failed")
	}
	return nil
}

// emitTransition runs the notification side effects of a state change.
// Neither an alert failure nor a stream failure should fail the score job;
// the scores and the transition are already durable.
func (h *Handlers) emitTransition(ctx context.Context, from models.EventStatus, event *models.Event) {
	transition := string(from) + "->" + string(event.Status)
	if _, err := h.alerts.Notify(ctx, event.ID, transition); err != nil {
		logging.Error().Err(err).Str("event_id", event.ID).
			Str("transition", transition).Msg("Alert dispatch failed")
	}

	reason := ""
	if history, err := h.db.StateHistory(ctx, event.ID); err == nil && len(history) > 0 {
		reason = history[len(history)-1].Reason
	}
	if err := h.broadcaster.StateChanged(ctx, event.ID, from, event.Status, reason); err != nil {
		logging.Warn().Err(err).Str("event_id", event.ID).Msg("Stream state change failed")
	}
}
