// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigiadados/radar/internal/config"
	"github.com/vigiadados/radar/internal/database"
	"github.com/vigiadados/radar/internal/kv"
	"github.com/vigiadados/radar/internal/models"
)

type capturingPublisher struct {
	published []*message.Message
	topics    []string
}

func (p *capturingPublisher) Publish(topic string, messages ...*message.Message) error {
	for _, m := range messages {
		p.published = append(p.published, m)
		p.topics = append(p.topics, topic)
	}
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func testBroadcaster(t *testing.T) (*Broadcaster, *Hub, *capturingPublisher, *database.DB, *kv.Store) {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: "", MaxMemory: "512MB", Threads: 2, MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := kv.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hub := NewHub()
	pub := &capturingPublisher{}
	return New(db, store, hub, pub, 10), hub, pub, db, store
}

func seedStreamEvent(t *testing.T, db *database.DB) string {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	id := uuid.NewString()
	require.NoError(t, db.InsertEvent(ctx, &models.Event{
		ID: id, Status: models.StatusHydrating, OriginPool: models.FastPool,
		Summary: "verba emergencial", FirstSeenAt: now, LastSeenAt: now, UpdatedAt: now,
	}))
	return id
}

func TestEventUpsertSequencesPerEvent(t *testing.T) {
	b, _, pub, db, _ := testBroadcaster(t)
	ctx := context.Background()

	id := seedStreamEvent(t, db)

	require.NoError(t, b.EventUpsert(ctx, id))
	require.NoError(t, b.StateChanged(ctx, id, models.StatusHydrating, models.StatusHot, "SCORE_HOT_THRESHOLD"))
	require.NoError(t, b.EventUpsert(ctx, id))

	require.Len(t, pub.published, 3)
	var seqs []uint64
	for i, m := range pub.published {
		assert.Equal(t, Topic, pub.topics[i])
		var sm models.StreamMessage
		require.NoError(t, json.Unmarshal(m.Payload, &sm))
		assert.Equal(t, id, sm.EventID)
		seqs = append(seqs, sm.Seq)
	}
	// Monotonic across message kinds.
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestEventUpsertPayload(t *testing.T) {
	b, _, pub, db, _ := testBroadcaster(t)
	ctx := context.Background()

	id := seedStreamEvent(t, db)
	require.NoError(t, db.UpsertEventScore(ctx, &models.EventScore{
		EventID: id, ScorePlantao: 42, ScoreOceanoAzul: 61,
		Reasons:    []models.ReasonContribution{{Code: "PLANTAO_TIER_WEIGHT", Weight: 10}},
		ComputedAt: time.Now().UTC(),
	}))

	require.NoError(t, b.EventUpsert(ctx, id))

	var sm models.StreamMessage
	require.NoError(t, json.Unmarshal(pub.published[0].Payload, &sm))
	require.NotNil(t, sm.Upsert)
	assert.Equal(t, models.MessageEventUpsert, sm.Kind)
	assert.Equal(t, 42.0, sm.Upsert.ScorePlantao)
	assert.Equal(t, 61.0, sm.Upsert.ScoreOceanoAzul)
	assert.InDelta(t, 0.61, sm.Upsert.ScoreOceanoAzulNorm, 1e-9)
	assert.Equal(t, "verba emergencial", sm.Upsert.Summary)
}

func TestMergedSequencedOnSurvivor(t *testing.T) {
	b, _, pub, db, _ := testBroadcaster(t)
	ctx := context.Background()

	from := seedStreamEvent(t, db)
	to := seedStreamEvent(t, db)

	require.NoError(t, b.EventUpsert(ctx, to))
	require.NoError(t, b.Merged(ctx, from, to, "EDITORIAL_MERGE"))

	var sm models.StreamMessage
	require.NoError(t, json.Unmarshal(pub.published[1].Payload, &sm))
	require.NotNil(t, sm.Merged)
	assert.Equal(t, to, sm.EventID)
	assert.Equal(t, from, sm.Merged.FromEventID)
	assert.Equal(t, uint64(2), sm.Seq)
}

func TestHubServeLifecycle(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()

	hub.Push(models.StreamMessage{Kind: models.MessageEventUpsert, EventID: "e1", Seq: 1})

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop on context cancel")
	}
	assert.Zero(t, hub.ClientCount())
}
