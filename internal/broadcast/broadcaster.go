// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/vigiadados/radar/internal/database"
	"github.com/vigiadados/radar/internal/kv"
	"github.com/vigiadados/radar/internal/logging"
	"github.com/vigiadados/radar/internal/models"
	"github.com/vigiadados/radar/internal/scoring"
)

// Topic is the broker subject carrying the live stream. Every replica
// publishes its stream messages here and bridges the rest back into its hub.
const Topic = "events.stream"

// Broadcaster builds stream messages and publishes them locally to the hub
// and to the broker topic for other replicas. Seq is taken from the KV
// store's per-event counter, so ordering within one event holds across all
// message kinds.
type Broadcaster struct {
	db        *database.DB
	store     *kv.Store
	hub       *Hub
	publisher message.Publisher

	anchorsTopK int
	now         func() time.Time
}

// New creates a broadcaster. publisher may be nil in single-process runs;
// the hub still receives everything.
func New(db *database.DB, store *kv.Store, hub *Hub, publisher message.Publisher, anchorsTopK int) *Broadcaster {
	if anchorsTopK <= 0 {
		anchorsTopK = 10
	}
	return &Broadcaster{
		db: db, store: store, hub: hub, publisher: publisher,
		anchorsTopK: anchorsTopK, now: time.Now,
	}
}

// EventUpsert publishes the full client-facing view of an event.
func (b *Broadcaster) EventUpsert(ctx context.Context, eventID string) error {
	event, err := b.db.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("broadcast upsert %s: %w", eventID, err)
	}
	score, err := b.db.GetEventScore(ctx, eventID)
	if errors.Is(err, database.ErrNotFound) {
		score = &models.EventScore{EventID: eventID}
	} else if err != nil {
		return err
	}
	docs, sources, err := b.db.EventDocCounts(ctx, eventID)
	if err != nil {
		return err
	}
	anchors, err := b.db.AnchorsForEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if len(anchors) > b.anchorsTopK {
		anchors = anchors[:b.anchorsTopK]
	}

	var flags []string
	for name, set := range event.Flags {
		if set {
			flags = append(flags, name)
		}
	}

	return b.publish(eventID, models.StreamMessage{
		Kind:    models.MessageEventUpsert,
		EventID: eventID,
		Upsert: &models.EventUpsert{
			Status:              event.Status,
			Summary:             event.Summary,
			Lane:                event.Lane,
			ScorePlantao:        score.ScorePlantao,
			ScoreOceanoAzul:     score.ScoreOceanoAzul,
			ScoreOceanoAzulNorm: scoring.NormalizeOceano(score.ScoreOceanoAzul),
			Reasons:             score.Reasons,
			Anchors:             anchors,
			DocCount:            docs,
			SourceCount:         sources,
			FirstSeen:           event.FirstSeenAt,
			LastSeen:            event.LastSeenAt,
			Flags:               flags,
		},
	})
}

// StateChanged publishes one state-machine transition.
func (b *Broadcaster) StateChanged(_ context.Context, eventID string, from, to models.EventStatus, reason string) error {
	return b.publish(eventID, models.StreamMessage{
		Kind:    models.MessageEventStateChanged,
		EventID: eventID,
		State: &models.EventStateChanged{
			PreviousStatus: from,
			NewStatus:      to,
			Reason:         reason,
			At:             b.now().UTC(),
		},
	})
}

// Merged publishes the tombstone for a canonical fold. Sequenced on the
// surviving event so clients apply it after that event's last upsert.
func (b *Broadcaster) Merged(_ context.Context, fromEventID, toEventID, reasonCode string) error {
	return b.publish(toEventID, models.StreamMessage{
		Kind:    models.MessageEventMerged,
		EventID: toEventID,
		Merged: &models.EventMerged{
			FromEventID: fromEventID,
			ToEventID:   toEventID,
			ReasonCode:  reasonCode,
		},
	})
}

func (b *Broadcaster) publish(eventID string, msg models.StreamMessage) error {
	seq, err := b.store.NextSeq(eventID)
	if err != nil {
		return fmt.Errorf("broadcast seq %s: %w", eventID, err)
	}
	msg.Seq = seq
	msg.At = b.now().UTC()

	if _, err := b.store.MarkStreamSeq(eventID, seq); err != nil {
		logging.Warn().Err(err).Str("event_id", eventID).Msg("Stream mark failed")
	}
	b.hub.Push(msg)

	if b.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal stream message: %w", err)
	}
	wm := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.publisher.Publish(Topic, wm); err != nil {
		logging.Error().Err(err).Str("event_id", eventID).Msg("Stream publish failed")
		return err
	}
	return nil
}
