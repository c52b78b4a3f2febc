// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigiadados/radar/internal/alerts"
	"github.com/vigiadados/radar/internal/broadcast"
	"github.com/vigiadados/radar/internal/config"
	"github.com/vigiadados/radar/internal/database"
	"github.com/vigiadados/radar/internal/extractor"
	"github.com/vigiadados/radar/internal/fetcher"
	"github.com/vigiadados/radar/internal/kv"
	"github.com/vigiadados/radar/internal/lifecycle"
	"github.com/vigiadados/radar/internal/models"
	"github.com/vigiadados/radar/internal/organizer"
	"github.com/vigiadados/radar/internal/profile"
	"github.com/vigiadados/radar/internal/scoring"
)

type capturingPublisher struct {
	mu     sync.Mutex
	topics map[string][]*message.Message
}

func newCapturingPublisher() *capturingPublisher {
	return &capturingPublisher{topics: make(map[string][]*message.Message)}
}

func (p *capturingPublisher) Publish(topic string, msgs ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics[topic] = append(p.topics[topic], msgs...)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func (p *capturingPublisher) published(topic string) []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*message.Message(nil), p.topics[topic]...)
}

const testFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Agência</title>
<item>
  <title>Decreto nº 11.555/2025 libera R$ 1.234,56 para hospitais</title>
  <link>https://agencia.example.gov.br/noticias/decreto-11555</link>
  <description>O decreto publicado hoje destina recursos emergenciais aos hospitais federais de todo o pais.</description>
</item>
</channel></rss>`

type testStack struct {
	handlers *Handlers
	db       *database.DB
	stream   *capturingPublisher
}

// testPipeline wires the real stages behind a local feed server.
func testPipeline(t *testing.T, feedURL string) *testStack {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: "", MaxMemory: "512MB", Threads: 2, MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := kv.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	dir := t.TempDir()
	profileYAML := fmt.Sprintf(`id: src
url: %s
strategy: RSS
tier: 1
is_official: true
interval: 60s
`, feedURL)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src.yaml"), []byte(profileYAML), 0o600))
	registry := profile.NewRegistry()
	require.NoError(t, registry.LoadDir(dir))
	require.NoError(t, registry.Sync(context.Background(), db))

	cfg := &config.Config{
		Profiles: config.ProfilesConfig{UserAgent: "VigiaDados/1.0 (institutional; newsroom monitoring)"},
		Fetch: config.FetchConfig{
			Fast:                config.PoolConfig{Concurrency: 4, Timeout: 5 * time.Second},
			Render:              config.PoolConfig{Concurrency: 2, Timeout: 5 * time.Second},
			Deep:                config.PoolConfig{Concurrency: 1, Timeout: 5 * time.Second},
			BreakerFailures:     3,
			BreakerCooldown:     time.Minute,
			SnapshotDir:         t.TempDir(),
			AllowPrivateTargets: true,
		},
		Organizer: config.OrganizerConfig{
			NearDupHamming: 12, SameEventJaccard: 0.42,
			AnchorWindow: 24 * time.Hour, SameEventWindow: 6 * time.Hour,
			CanonicalizeInterval: time.Minute, MinCleanTextLen: 20, SummaryMaxLen: 280,
		},
		Scoring: config.ScoringConfig{
			HotThreshold: 55, DecayHalfLife: 6 * time.Hour, VelocityWindow: time.Hour,
			ViralVelocity: 50, ViralMinDiversity: 3,
		},
		Lifecycle: config.LifecycleConfig{
			GateTimeoutFast: 15 * time.Second, GateTimeoutRender: 45 * time.Second,
			QuarantineTTL: 15 * time.Minute, MaintenanceTick: time.Second,
		},
		Alerts: config.AlertsConfig{Cooldown: 5 * time.Minute},
	}

	f := fetcher.New(cfg, db, store, registry)
	e := extractor.New(cfg, db, f, registry)
	o := organizer.New(cfg, db, store)
	s := scoring.New(cfg, db, store)
	m := lifecycle.New(cfg, db)
	a := alerts.New(cfg, db, store, nil)

	stream := newCapturingPublisher()
	b := broadcast.New(db, store, broadcast.NewHub(), stream, 10)

	return &testStack{
		handlers: NewHandlers(db, registry, f, e, o, s, m, a, b),
		db:       db,
		stream:   stream,
	}
}

func job(t *testing.T, payload any) *message.Message {
	t.Helper()
	msg, err := NewMessage(payload)
	require.NoError(t, err)
	msg.SetContext(context.Background())
	return msg
}

func TestPipelineEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = io.WriteString(w, testFeed)
	}))
	defer srv.Close()
	st := testPipeline(t, srv.URL)
	ctx := context.Background()

	out, err := st.handlers.HandleFetch(job(t, FetchJob{SourceID: "src", URL: srv.URL, Pool: models.FastPool}))
	require.NoError(t, err)
	require.Len(t, out, 1)
	var ej ExtractJob
	require.NoError(t, Decode(out[0], &ej))
	assert.Equal(t, models.StrategyRSS, ej.Strategy)
	assert.NotEmpty(t, ej.SnapshotHash)

	out, err = st.handlers.HandleExtract(out[0])
	require.NoError(t, err)
	require.Len(t, out, 1)

	out, err = st.handlers.HandleOrganize(out[0])
	require.NoError(t, err)
	require.Len(t, out, 1)
	var sj ScoreJob
	require.NoError(t, Decode(out[0], &sj))
	assert.Equal(t, "new_material", sj.Trigger)

	require.NoError(t, st.handlers.HandleScore(out[0]))

	// One tier-1 source is not enough for HOT; the event hydrates.
	event, err := st.db.GetEvent(ctx, sj.EventID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusHydrating, event.Status)

	score, err := st.db.GetEventScore(ctx, sj.EventID)
	require.NoError(t, err)
	assert.Greater(t, score.ScorePlantao, 0.0)

	// The live stream saw the state change and the upsert.
	assert.NotEmpty(t, st.stream.published(broadcast.Topic))
}

func TestHandleFetchNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = io.WriteString(w, testFeed)
	}))
	defer srv.Close()
	st := testPipeline(t, srv.URL)

	out, err := st.handlers.HandleFetch(job(t, FetchJob{SourceID: "src", URL: srv.URL, Pool: models.FastPool}))
	require.NoError(t, err)
	require.Len(t, out, 1)

	out, err = st.handlers.HandleFetch(job(t, FetchJob{SourceID: "src", URL: srv.URL, Pool: models.FastPool}))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestHandleFetchErrorIsAcked(t *testing.T) {
	// A 5xx is recorded as a failed attempt by the fetcher; the message must
	// not be redelivered on top of the cadence.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	st := testPipeline(t, srv.URL)

	out, err := st.handlers.HandleFetch(job(t, FetchJob{SourceID: "src", URL: srv.URL, Pool: models.FastPool}))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestHandleScoreMissingEventDropped(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	st := testPipeline(t, srv.URL)

	err := st.handlers.HandleScore(job(t, ScoreJob{EventID: "nope", Trigger: "new_material"}))
	assert.NoError(t, err)
}

func TestBadPayloadsAreDropped(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	st := testPipeline(t, srv.URL)

	bad := message.NewMessage("x", []byte("{not json"))
	bad.SetContext(context.Background())

	out, err := st.handlers.HandleFetch(bad)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = st.handlers.HandleExtract(bad)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = st.handlers.HandleOrganize(bad)
	require.NoError(t, err)
	assert.Empty(t, out)

	assert.NoError(t, st.handlers.HandleScore(bad))
}
