// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigiadados/radar/internal/config"
	"github.com/vigiadados/radar/internal/database"
	"github.com/vigiadados/radar/internal/kv"
	"github.com/vigiadados/radar/internal/models"
)

type captureSink struct {
	mu   sync.Mutex
	sent []*Notification
}

func (c *captureSink) Deliver(_ context.Context, n *Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func testDispatcher(t *testing.T) (*Dispatcher, *captureSink, *database.DB, *kv.Store) {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: "", MaxMemory: "512MB", Threads: 2, MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := kv.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sink := &captureSink{}
	cfg := &config.Config{Alerts: config.AlertsConfig{Cooldown: 5 * time.Minute}}
	return New(cfg, db, store, sink), sink, db, store
}

func seedAlertEvent(t *testing.T, db *database.DB, plantao float64) string {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	id := uuid.NewString()
	require.NoError(t, db.InsertEvent(ctx, &models.Event{
		ID: id, Status: models.StatusHot, OriginPool: models.FastPool,
		Summary: "decreto libera verba", FirstSeenAt: now, LastSeenAt: now, UpdatedAt: now,
	}))
	require.NoError(t, db.UpsertEventScore(ctx, &models.EventScore{
		EventID: id, ScorePlantao: plantao, ScoreOceanoAzul: 40,
		Reasons:    []models.ReasonContribution{{Code: "PLANTAO_TIER_WEIGHT", Weight: 10}},
		ComputedAt: now,
	}))
	return id
}

func TestNotifySendsOnce(t *testing.T) {
	d, sink, db, _ := testDispatcher(t)
	ctx := context.Background()

	id := seedAlertEvent(t, db, 60)

	decision, err := d.Notify(ctx, id, "HYDRATING->HOT")
	require.NoError(t, err)
	assert.Equal(t, DecisionSent, decision)
	require.Equal(t, 1, sink.count())
	assert.Equal(t, 60.0, sink.sent[0].ScorePlantao)
	assert.Equal(t, []string{"PLANTAO_TIER_WEIGHT"}, sink.sent[0].Reasons)

	// Same transition, same fingerprint: deduplicated.
	decision, err = d.Notify(ctx, id, "HYDRATING->HOT")
	require.NoError(t, err)
	assert.Equal(t, DecisionDedup, decision)
	assert.Equal(t, 1, sink.count())
}

func TestNotifyCooldownBlocksChangedFingerprint(t *testing.T) {
	d, sink, db, _ := testDispatcher(t)
	ctx := context.Background()

	id := seedAlertEvent(t, db, 60)

	decision, err := d.Notify(ctx, id, "HYDRATING->HOT")
	require.NoError(t, err)
	require.Equal(t, DecisionSent, decision)

	// A different transition inside the cooldown window stays quiet.
	decision, err = d.Notify(ctx, id, "HOT->QUARANTINE")
	require.NoError(t, err)
	assert.Equal(t, DecisionCooldown, decision)
	assert.Equal(t, 1, sink.count())
}

func TestNotifyResendsAfterCooldown(t *testing.T) {
	d, sink, db, _ := testDispatcher(t)
	ctx := context.Background()

	id := seedAlertEvent(t, db, 60)

	_, err := d.Notify(ctx, id, "HYDRATING->HOT")
	require.NoError(t, err)

	// Jump past the cooldown.
	d.now = func() time.Time { return time.Now().Add(10 * time.Minute) }

	decision, err := d.Notify(ctx, id, "HOT->QUARANTINE")
	require.NoError(t, err)
	assert.Equal(t, DecisionSent, decision)
	assert.Equal(t, 2, sink.count())
}

func TestNotifySnoozed(t *testing.T) {
	d, sink, db, store := testDispatcher(t)
	ctx := context.Background()

	id := seedAlertEvent(t, db, 60)
	require.NoError(t, store.Snooze(id, time.Hour))

	decision, err := d.Notify(ctx, id, "HYDRATING->HOT")
	require.NoError(t, err)
	assert.Equal(t, DecisionSnoozed, decision)
	assert.Zero(t, sink.count())
}

func TestFingerprintBands(t *testing.T) {
	mk := func(plantao, oceano float64, codes ...string) *models.EventScore {
		s := &models.EventScore{ScorePlantao: plantao, ScoreOceanoAzul: oceano}
		for _, c := range codes {
			s.Reasons = append(s.Reasons, models.ReasonContribution{Code: c})
		}
		return s
	}

	// Jitter inside a score band does not change the fingerprint.
	assert.Equal(t,
		Fingerprint("e1", "t", mk(51, 40, "PLANTAO_TIER_WEIGHT")),
		Fingerprint("e1", "t", mk(54, 40, "PLANTAO_TIER_WEIGHT")))

	// Crossing a band does.
	assert.NotEqual(t,
		Fingerprint("e1", "t", mk(54, 40, "PLANTAO_TIER_WEIGHT")),
		Fingerprint("e1", "t", mk(55, 40, "PLANTAO_TIER_WEIGHT")))

	// Reason order does not matter; a new reason does.
	assert.Equal(t,
		Fingerprint("e1", "t", mk(50, 40, "A", "B")),
		Fingerprint("e1", "t", mk(50, 40, "B", "A")))
	assert.NotEqual(t,
		Fingerprint("e1", "t", mk(50, 40, "A")),
		Fingerprint("e1", "t", mk(50, 40, "A", "B")))

	// Different transitions never share a fingerprint.
	assert.NotEqual(t,
		Fingerprint("e1", "t1", mk(50, 40, "A")),
		Fingerprint("e1", "t2", mk(50, 40, "A")))
}
