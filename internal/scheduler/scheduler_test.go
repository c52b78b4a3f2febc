// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigiadados/radar/internal/config"
	"github.com/vigiadados/radar/internal/kv"
	"github.com/vigiadados/radar/internal/models"
	"github.com/vigiadados/radar/internal/pipeline"
	"github.com/vigiadados/radar/internal/profile"
)

type capturingPublisher struct {
	mu   sync.Mutex
	jobs map[string][]pipeline.FetchJob
}

func newCapturingPublisher() *capturingPublisher {
	return &capturingPublisher{jobs: make(map[string][]pipeline.FetchJob)}
}

func (p *capturingPublisher) Publish(topic string, msgs ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, msg := range msgs {
		var job pipeline.FetchJob
		if err := json.Unmarshal(msg.Payload, &job); err != nil {
			return err
		}
		p.jobs[topic] = append(p.jobs[topic], job)
	}
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func (p *capturingPublisher) published(topic string) []pipeline.FetchJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pipeline.FetchJob(nil), p.jobs[topic]...)
}

func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{TickInterval: time.Second, HighWaterMark: 4},
		Fetch: config.FetchConfig{
			Fast:   config.PoolConfig{Concurrency: 16, Timeout: 5 * time.Second},
			Render: config.PoolConfig{Concurrency: 4, Timeout: 30 * time.Second},
			Deep:   config.PoolConfig{Concurrency: 2, Timeout: 5 * time.Minute},
		},
	}
}

func testRegistry(t *testing.T, profiles ...*profile.Profile) *profile.Registry {
	t.Helper()
	r := profile.NewRegistry()
	dir := t.TempDir()
	for _, p := range profiles {
		body := fmt.Sprintf("id: %s\nurl: %s\nstrategy: %s\ntier: %d\ninterval: %s\n",
			p.ID, p.URL, p.Strategy, p.Tier, p.Interval)
		if p.Pool != "" {
			body += "pool: " + string(p.Pool) + "\n"
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, p.ID+".yaml"), []byte(body), 0o600))
	}
	require.NoError(t, r.LoadDir(dir))
	return r
}

func newTestStore(t *testing.T) *kv.Store {
	t.Helper()
	s, err := kv.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTickDispatchesDueSources(t *testing.T) {
	reg := testRegistry(t,
		&profile.Profile{ID: "dou", URL: "https://in.gov.br/feed", Strategy: models.StrategyRSS, Tier: 1, Interval: time.Minute},
		&profile.Profile{ID: "spa", URL: "https://portal.gov.br/app", Strategy: models.StrategyHTML, Tier: 2, Interval: time.Minute, Pool: models.HeavyRenderPool},
	)

	pub := newCapturingPublisher()
	s := New(testConfig(), reg, newTestStore(t), pub)
	s.tick(context.Background())

	fast := pub.published(pipeline.TopicFetchFast)
	require.Len(t, fast, 1)
	assert.Equal(t, "dou", fast[0].SourceID)
	assert.Equal(t, models.FastPool, fast[0].Pool)

	render := pub.published(pipeline.TopicFetchRender)
	require.Len(t, render, 1)
	assert.Equal(t, "spa", render[0].SourceID)
}

func TestTickRespectsCadence(t *testing.T) {
	reg := testRegistry(t,
		&profile.Profile{ID: "dou", URL: "https://in.gov.br/feed", Strategy: models.StrategyRSS, Tier: 1, Interval: time.Minute},
	)
	pub := newCapturingPublisher()
	store := newTestStore(t)
	s := New(testConfig(), reg, store, pub)

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	s.tick(context.Background())
	require.Len(t, pub.published(pipeline.TopicFetchFast), 1)

	// Lock released by the (simulated) worker; still not due.
	require.NoError(t, store.ReleaseFetchLock("dou"))
	s.now = func() time.Time { return base.Add(30 * time.Second) }
	s.tick(context.Background())
	assert.Len(t, pub.published(pipeline.TopicFetchFast), 1)

	s.now = func() time.Time { return base.Add(61 * time.Second) }
	s.tick(context.Background())
	assert.Len(t, pub.published(pipeline.TopicFetchFast), 2)
}

func TestTickSkipsInFlightSources(t *testing.T) {
	reg := testRegistry(t,
		&profile.Profile{ID: "dou", URL: "https://in.gov.br/feed", Strategy: models.StrategyRSS, Tier: 1, Interval: time.Minute},
	)
	pub := newCapturingPublisher()
	store := newTestStore(t)
	s := New(testConfig(), reg, store, pub)

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	s.tick(context.Background())
	require.Len(t, pub.published(pipeline.TopicFetchFast), 1)

	// Worker never released the lock; the next due tick must not dispatch.
	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	s.tick(context.Background())
	assert.Len(t, pub.published(pipeline.TopicFetchFast), 1)
}

func TestBackpressureThrottlesLowTiersFirst(t *testing.T) {
	reg := testRegistry(t,
		&profile.Profile{ID: "t1", URL: "https://in.gov.br/feed", Strategy: models.StrategyRSS, Tier: 1, Interval: time.Minute},
		&profile.Profile{ID: "t3", URL: "https://blog.example.com/feed", Strategy: models.StrategyRSS, Tier: 3, Interval: time.Minute},
	)
	pub := newCapturingPublisher()
	store := newTestStore(t)

	// Saturate the queue: HighWaterMark is 4.
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.AcquireFetchLock("busy-"+id, time.Minute))
	}

	s := New(testConfig(), reg, store, pub)
	s.tick(context.Background())

	jobs := pub.published(pipeline.TopicFetchFast)
	require.Len(t, jobs, 1, "only tier 1 dispatches at the high-water mark")
	assert.Equal(t, "t1", jobs[0].SourceID)
}

func TestCadenceSurvivesRestart(t *testing.T) {
	reg := testRegistry(t,
		&profile.Profile{ID: "dou", URL: "https://in.gov.br/feed", Strategy: models.StrategyRSS, Tier: 1, Interval: time.Minute},
	)
	store := newTestStore(t)

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	first := New(testConfig(), reg, store, newCapturingPublisher())
	first.now = func() time.Time { return base }
	first.tick(context.Background())
	require.NoError(t, store.ReleaseFetchLock("dou"))

	// A fresh scheduler over the same store must not re-poll early.
	pub := newCapturingPublisher()
	second := New(testConfig(), reg, store, pub)
	second.now = func() time.Time { return base.Add(30 * time.Second) }
	second.tick(context.Background())
	assert.Empty(t, pub.published(pipeline.TopicFetchFast))

	second.now = func() time.Time { return base.Add(61 * time.Second) }
	second.tick(context.Background())
	assert.Len(t, pub.published(pipeline.TopicFetchFast), 1)
}

func TestDueOrderingPrefersMostOverdueWithinTier(t *testing.T) {
	reg := testRegistry(t,
		&profile.Profile{ID: "fresh", URL: "https://a.gov.br/feed", Strategy: models.StrategyRSS, Tier: 2, Interval: time.Minute},
		&profile.Profile{ID: "starved", URL: "https://b.gov.br/feed", Strategy: models.StrategyRSS, Tier: 2, Interval: time.Minute},
	)
	s := New(testConfig(), reg, newTestStore(t), newCapturingPublisher())

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s.lastDispatch["fresh"] = base.Add(-2 * time.Minute)
	s.lastDispatch["starved"] = base.Add(-20 * time.Minute)

	due := s.dueProfiles(base)
	require.Len(t, due, 2)
	assert.Equal(t, "starved", due[0].ID)
}
