// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

// Package fetcher performs the actual network polling. Each pool gets its
// own HTTP client and timeout; every source gets a circuit breaker and every
// domain a token-bucket rate limit. Bodies are streamed to content-addressed
// snapshots with a hard size cap, and conditional requests reuse the
// validators remembered in the KV store.
package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/vigiadados/radar/internal/config"
	"github.com/vigiadados/radar/internal/database"
	"github.com/vigiadados/radar/internal/kv"
	"github.com/vigiadados/radar/internal/logging"
	"github.com/vigiadados/radar/internal/metrics"
	"github.com/vigiadados/radar/internal/models"
	"github.com/vigiadados/radar/internal/profile"
)

// ErrBodyTooLarge is returned when a body exceeds the profile's max_bytes.
var ErrBodyTooLarge = errors.New("fetcher: body exceeds size cap")

// Fallback request budget for sources fetched without a registered profile.
// Conservative by policy: this system identifies itself and never hammers a
// source.
var fallbackRate = rate.Limit(1.0)

// minBurst lets conditional-GET pairs and redirects through without waiting
// on the sustained budget.
const minBurst = 3

// Result summarises one completed fetch for the pipeline handler.
type Result struct {
	Attempt      *models.FetchAttempt
	SnapshotHash string
	// NotModified is true for 304 responses; no extraction follows.
	NotModified bool
}

// Fetcher executes fetch jobs. Safe for concurrent use.
type Fetcher struct {
	cfg      *config.Config
	db       *database.DB
	store    *kv.Store
	registry *profile.Registry

	clients map[models.Pool]*http.Client

	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker[*Result]

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// New creates a fetcher with one HTTP client per pool.
func New(cfg *config.Config, db *database.DB, store *kv.Store, registry *profile.Registry) *Fetcher {
	clients := map[models.Pool]*http.Client{
		models.FastPool:        newClient(cfg.Fetch.Fast.Timeout, cfg.Fetch.AllowPrivateTargets),
		models.HeavyRenderPool: newClient(cfg.Fetch.Render.Timeout, cfg.Fetch.AllowPrivateTargets),
		models.DeepExtractPool: newClient(cfg.Fetch.Deep.Timeout, cfg.Fetch.AllowPrivateTargets),
	}
	return &Fetcher{
		cfg:      cfg,
		db:       db,
		store:    store,
		registry: registry,
		clients:  clients,
		breakers: make(map[string]*gobreaker.CircuitBreaker[*Result]),
		limiters: make(map[string]*rate.Limiter),
	}
}

func newClient(timeout time.Duration, allowPrivate bool) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			if allowPrivate {
				return nil
			}
			// Redirect targets are re-validated; the profile only vouches
			// for the original URL.
			return checkTarget(req.URL.String())
		},
	}
}

// Fetch runs one job end to end: guard, rate limit, breaker, request,
// snapshot, records. The in-flight lock is released on all paths.
func (f *Fetcher) Fetch(ctx context.Context, sourceID, rawURL string, pool models.Pool) (*Result, error) {
	defer func() {
		if err := f.store.ReleaseFetchLock(sourceID); err != nil {
			logging.Warn().Err(err).Str("source_id", sourceID).Msg("Releasing fetch lock failed")
		}
	}()

	start := time.Now()
	cb := f.breaker(sourceID)
	res, err := cb.Execute(func() (*Result, error) {
		return f.doFetch(ctx, sourceID, rawURL, pool, start)
	})
	if err != nil {
		errClass := classifyError(err)
		metrics.FetchAttemptsTotal.WithLabelValues(string(pool), "error", errClass).Inc()
		f.recordFailure(ctx, sourceID, rawURL, pool, errClass, start)
		return nil, err
	}
	return res, nil
}

func (f *Fetcher) doFetch(ctx context.Context, sourceID, rawURL string, pool models.Pool, start time.Time) (*Result, error) {
	if !f.cfg.Fetch.AllowPrivateTargets {
		if err := checkTarget(rawURL); err != nil {
			return nil, err
		}
	}

	prof, _ := f.registry.Get(sourceID)
	maxBytes := profile.DefaultLimits().MaxBytes
	if prof != nil {
		maxBytes = prof.Limits.MaxBytes
		// The profile timeout tightens the pool deadline, never widens it.
		if t := prof.Limits.Timeout(); t > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t)
			defer cancel()
		}
	}
	if err := f.limiter(hostname(rawURL), prof).Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.Profiles.UserAgent)
	req.Header.Set("Accept-Encoding", "gzip")

	validators, err := f.store.GetValidators(rawURL)
	if err != nil {
		logging.Warn().Err(err).Str("url", rawURL).Msg("Reading validators failed")
	}
	if validators.ETag != "" {
		req.Header.Set("If-None-Match", validators.ETag)
	}
	if validators.LastModified != "" {
		req.Header.Set("If-Modified-Since", validators.LastModified)
	}

	resp, err := f.clients[pool].Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	latency := time.Since(start)
	attempt := &models.FetchAttempt{
		ID:          uuid.NewString(),
		SourceID:    sourceID,
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		LatencyMS:   latency.Milliseconds(),
		Pool:        pool,
		AttemptedAt: start.UTC(),
	}

	strategy := f.strategyFor(sourceID)
	metrics.FetchLatencySeconds.WithLabelValues(string(pool), string(strategy)).Observe(latency.Seconds())

	switch {
	case resp.StatusCode == http.StatusNotModified:
		// Recorded with zero bytes and no snapshot; still counts as a fetch
		// for yield accounting.
		metrics.FetchAttemptsTotal.WithLabelValues(string(pool), "3xx", "").Inc()
		if err := f.db.InsertFetchAttempt(ctx, attempt); err != nil {
			return nil, err
		}
		if err := f.db.BumpYield(ctx, sourceID, start, 0); err != nil {
			logging.Warn().Err(err).Str("source_id", sourceID).Msg("Yield bump failed")
		}
		return &Result{Attempt: attempt, NotModified: true}, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		hash, size, err := f.writeSnapshot(resp, rawURL, start, maxBytes)
		if err != nil {
			attempt.ErrorClass = classifyError(err)
			_ = f.db.InsertFetchAttempt(ctx, attempt)
			return nil, err
		}
		attempt.Bytes = size
		attempt.SnapshotHash = hash
		metrics.FetchAttemptsTotal.WithLabelValues(string(pool), "2xx", "").Inc()
		metrics.FetchBytesRead.WithLabelValues(string(pool)).Add(float64(size))

		if err := f.db.InsertFetchAttempt(ctx, attempt); err != nil {
			return nil, err
		}
		f.rememberValidators(rawURL, resp)
		return &Result{Attempt: attempt, SnapshotHash: hash}, nil

	default:
		attempt.ErrorClass = classifyStatus(resp.StatusCode)
		metrics.FetchAttemptsTotal.WithLabelValues(string(pool), statusClass(resp.StatusCode), attempt.ErrorClass).Inc()
		if err := f.db.InsertFetchAttempt(ctx, attempt); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
}

// writeSnapshot streams the body into the snapshot directory, hashing as it
// goes. The file is written under a temp name and renamed to its hash so a
// partial write never aliases a valid snapshot.
func (f *Fetcher) writeSnapshot(resp *http.Response, rawURL string, fetchedAt time.Time, maxBytes int64) (hash string, size int64, err error) {
	if err := os.MkdirAll(f.cfg.Fetch.SnapshotDir, 0o750); err != nil {
		return "", 0, fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(f.cfg.Fetch.SnapshotDir, "incoming-*")
	if err != nil {
		return "", 0, fmt.Errorf("create snapshot temp: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	hasher := sha256.New()
	limited := io.LimitReader(resp.Body, maxBytes+1)
	size, err = io.Copy(io.MultiWriter(tmp, hasher), limited)
	if err != nil {
		return "", 0, fmt.Errorf("stream body: %w", err)
	}
	if size > maxBytes {
		return "", 0, ErrBodyTooLarge
	}

	hash = hex.EncodeToString(hasher.Sum(nil))
	final := filepath.Join(f.cfg.Fetch.SnapshotDir, hash)
	if err = tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("close snapshot temp: %w", err)
	}
	if err = os.Rename(tmp.Name(), final); err != nil {
		return "", 0, fmt.Errorf("finalize snapshot: %w", err)
	}

	headers := map[string]string{}
	for _, h := range []string{"Content-Type", "Content-Encoding", "ETag", "Last-Modified"} {
		if v := resp.Header.Get(h); v != "" {
			headers[h] = v
		}
	}
	snap := &models.Snapshot{
		Hash:      hash,
		URL:       rawURL,
		Headers:   headers,
		BodyRef:   final,
		Bytes:     size,
		FetchedAt: fetchedAt.UTC(),
	}
	if err = f.db.InsertSnapshot(context.Background(), snap); err != nil {
		return "", 0, err
	}
	return hash, size, nil
}

// SnapshotBody opens the stored body for a snapshot hash.
func (f *Fetcher) SnapshotBody(hash string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(f.cfg.Fetch.SnapshotDir, filepath.Base(hash)))
}

func (f *Fetcher) rememberValidators(rawURL string, resp *http.Response) {
	v := kv.Validators{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	if err := f.store.SetValidators(rawURL, v); err != nil {
		logging.Warn().Err(err).Str("url", rawURL).Msg("Storing validators failed")
	}
}

func (f *Fetcher) recordFailure(ctx context.Context, sourceID, rawURL string, pool models.Pool, errClass string, start time.Time) {
	attempt := &models.FetchAttempt{
		ID:          uuid.NewString(),
		SourceID:    sourceID,
		URL:         rawURL,
		ErrorClass:  errClass,
		LatencyMS:   time.Since(start).Milliseconds(),
		Pool:        pool,
		AttemptedAt: start.UTC(),
	}
	if err := f.db.InsertFetchAttempt(ctx, attempt); err != nil {
		logging.Error().Err(err).Str("source_id", sourceID).Msg("Recording failed fetch attempt failed")
	}
}

// breaker returns the per-source circuit breaker, seeding its settings from
// config and mirroring state changes into metrics and the KV store.
func (f *Fetcher) breaker(sourceID string) *gobreaker.CircuitBreaker[*Result] {
	f.breakersMu.Lock()
	defer f.breakersMu.Unlock()

	if cb, ok := f.breakers[sourceID]; ok {
		return cb
	}
	failures := uint32(f.cfg.Fetch.BreakerFailures)
	cb := gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        sourceID,
		MaxRequests: 1,
		Timeout:     f.cfg.Fetch.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("source_id", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			snap := kv.BreakerSnapshot{State: to.String(), UpdatedAt: time.Now().UTC()}
			if to == gobreaker.StateOpen {
				snap.OpenedAt = time.Now().UTC()
			}
			if err := f.store.SetBreakerSnapshot(name, snap); err != nil {
				logging.Warn().Err(err).Str("source_id", name).Msg("Persisting breaker snapshot failed")
			}
		},
	})
	f.breakers[sourceID] = cb
	return cb
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// limiter returns the per-domain token bucket. The sustained rate comes from
// the profile's rate_limit_req_per_min; concurrency_per_domain widens the
// burst when it exceeds the floor.
func (f *Fetcher) limiter(domain string, prof *profile.Profile) *rate.Limiter {
	f.limitersMu.Lock()
	defer f.limitersMu.Unlock()
	if l, ok := f.limiters[domain]; ok {
		return l
	}
	r := fallbackRate
	burst := minBurst
	if prof != nil {
		r = rate.Limit(float64(prof.Limits.RateLimitReqPerMin) / 60.0)
		if prof.Limits.ConcurrencyPerDomain > burst {
			burst = prof.Limits.ConcurrencyPerDomain
		}
	}
	l := rate.NewLimiter(r, burst)
	f.limiters[domain] = l
	return l
}

func (f *Fetcher) strategyFor(sourceID string) models.Strategy {
	if p, ok := f.registry.Get(sourceID); ok {
		return p.Strategy
	}
	return models.StrategyHTML
}

func hostname(rawURL string) string {
	rest := rawURL
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}
	if idx := strings.IndexAny(rest, "/?#"); idx >= 0 {
		rest = rest[:idx]
	}
	if idx := strings.LastIndex(rest, ":"); idx >= 0 && !strings.Contains(rest, "]") {
		rest = rest[:idx]
	}
	return rest
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func classifyStatus(code int) string {
	if code >= 500 {
		return "HTTP_5XX"
	}
	if code == http.StatusTooManyRequests {
		return "RATE_LIMITED"
	}
	return "HTTP_4XX"
}

func classifyError(err error) string {
	switch {
	case errors.Is(err, ErrBlockedTarget):
		return "SSRF_BLOCKED"
	case errors.Is(err, ErrBodyTooLarge):
		return "BODY_TOO_LARGE"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "BREAKER_OPEN"
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "DNS"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "TIMEOUT"
	}
	if strings.Contains(err.Error(), "tls:") || strings.Contains(err.Error(), "x509:") {
		return "TLS"
	}
	return "NETWORK"
}
