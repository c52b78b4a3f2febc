// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigiadados/radar/internal/config"
	"github.com/vigiadados/radar/internal/database"
	"github.com/vigiadados/radar/internal/kv"
	"github.com/vigiadados/radar/internal/models"
	"github.com/vigiadados/radar/internal/profile"
)

func testFetcher(t *testing.T) (*Fetcher, *kv.Store, *database.DB) {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: "", MaxMemory: "512MB", Threads: 2, MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := kv.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

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
	}
	seedSource(t, db)
	return New(cfg, db, store, profile.NewRegistry()), store, db
}

func seedSource(t *testing.T, db *database.DB) {
	t.Helper()
	require.NoError(t, db.UpsertSource(context.Background(), &models.Source{
		ID: "src", Domain: "example.gov.br", Tier: 1, IsOfficial: true,
		Lang: "pt-BR", Enabled: true, CreatedAt: time.Now().UTC(),
	}))
}

func TestFetchStoresSnapshotAndAttempt(t *testing.T) {
	f, store, db := testFetcher(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.UserAgent(), "VigiaDados/1.0")
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html><body>Decreto 9/2025</body></html>")
	}))
	defer srv.Close()

	require.NoError(t, store.AcquireFetchLock("src", time.Minute))
	res, err := f.Fetch(context.Background(), "src", srv.URL, models.FastPool)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.NotModified)
	assert.NotEmpty(t, res.SnapshotHash)
	assert.Equal(t, 200, res.Attempt.StatusCode)

	// Snapshot persisted and body readable.
	snap, err := db.GetSnapshot(context.Background(), res.SnapshotHash)
	require.NoError(t, err)
	assert.Equal(t, "text/html", snap.Headers["Content-Type"])

	body, err := f.SnapshotBody(res.SnapshotHash)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Decreto 9/2025")

	// Lock released after the fetch.
	assert.NoError(t, store.AcquireFetchLock("src", time.Minute))

	// Validators remembered for the next conditional request.
	v, err := store.GetValidators(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, v.ETag)
}

func TestFetchNotModified(t *testing.T) {
	f, store, _ := testFetcher(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = io.WriteString(w, "payload")
	}))
	defer srv.Close()

	res, err := f.Fetch(context.Background(), "src", srv.URL, models.FastPool)
	require.NoError(t, err)
	require.False(t, res.NotModified)

	res, err = f.Fetch(context.Background(), "src", srv.URL, models.FastPool)
	require.NoError(t, err)
	assert.True(t, res.NotModified)
	assert.Empty(t, res.SnapshotHash)
	assert.Equal(t, int64(0), res.Attempt.Bytes)
	_ = store
}

func TestFetchServerErrorRecorded(t *testing.T) {
	f, _, _ := testFetcher(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := f.Fetch(context.Background(), "src", srv.URL, models.FastPool)
	assert.Error(t, err)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	f, _, _ := testFetcher(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), "src", srv.URL, models.FastPool)
		require.Error(t, err)
	}
	_, err := f.Fetch(context.Background(), "src", srv.URL, models.FastPool)
	require.Error(t, err)
	assert.Equal(t, "BREAKER_OPEN", classifyError(err))
}

func profiledFetcher(t *testing.T, f *Fetcher, profileYAML string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src.yaml"), []byte(profileYAML), 0o600))
	require.NoError(t, f.registry.LoadDir(dir))
}

func TestFetchEnforcesProfileBodyCap(t *testing.T) {
	f, _, _ := testFetcher(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 4096))
	}))
	defer srv.Close()

	profiledFetcher(t, f, `
id: src
url: `+srv.URL+`
strategy: HTML
tier: 2
interval: 60s
limits:
  max_bytes: 1024
`)

	_, err := f.Fetch(context.Background(), "src", srv.URL, models.FastPool)
	require.Error(t, err)
	assert.Equal(t, "BODY_TOO_LARGE", classifyError(err))
}

func TestLimiterUsesProfileRate(t *testing.T) {
	f, _, _ := testFetcher(t)
	profiledFetcher(t, f, `
id: src
url: https://lento.example.gov.br/feed
strategy: RSS
tier: 2
interval: 60s
limits:
  rate_limit_req_per_min: 6
  concurrency_per_domain: 5
`)
	prof, ok := f.registry.Get("src")
	require.True(t, ok)

	l := f.limiter("lento.example.gov.br", prof)
	assert.InDelta(t, 0.1, float64(l.Limit()), 0.001, "six requests per minute")
	assert.Equal(t, 5, l.Burst())

	// Sources without a profile keep the conservative fallback.
	anon := f.limiter("anon.example.com", nil)
	assert.InDelta(t, 1.0, float64(anon.Limit()), 0.001)
	assert.Equal(t, minBurst, anon.Burst())
}

func TestCheckTargetBlocksPrivateAddresses(t *testing.T) {
	for _, raw := range []string{
		"http://127.0.0.1/feed",
		"http://10.0.0.8/feed",
		"http://192.168.1.1/feed",
		"http://169.254.169.254/latest/meta-data",
		"ftp://example.gov.br/feed",
	} {
		assert.ErrorIs(t, checkTarget(raw), ErrBlockedTarget, raw)
	}
}

func TestCheckTargetAllowsPublicAddresses(t *testing.T) {
	assert.NoError(t, checkTarget("https://1.1.1.1/feed"))
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "SSRF_BLOCKED", classifyError(ErrBlockedTarget))
	assert.Equal(t, "BODY_TOO_LARGE", classifyError(ErrBodyTooLarge))
	assert.Equal(t, "TIMEOUT", classifyError(context.DeadlineExceeded))
}

func TestHostname(t *testing.T) {
	assert.Equal(t, "www.in.gov.br", hostname("https://www.in.gov.br/leiturajornal?p=1"))
	assert.Equal(t, "example.com", hostname("http://example.com:8080/x"))
}
