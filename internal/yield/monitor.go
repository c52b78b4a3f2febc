// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

// Package yield watches per-source extraction yield against a rolling
// calendar-shaped baseline and opens DATA_STARVATION incidents when a source
// keeps answering 2xx while producing nothing. A dead feed that still
// returns 200 is invisible to transport-level monitoring; this is the layer
// that sees it.
package yield

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vigiadados/radar/internal/config"
	"github.com/vigiadados/radar/internal/database"
	"github.com/vigiadados/radar/internal/logging"
	"github.com/vigiadados/radar/internal/metrics"
	"github.com/vigiadados/radar/internal/models"
	"github.com/vigiadados/radar/internal/profile"
)

// Baseline parameters. The lookback must span enough same-shaped hours for
// the calendar profile to mean something. The observation window itself is
// per source, from the profile's starvation_window_hours.
const (
	baselineLookback = 14 * 24 * time.Hour
	// minFetches below which the window is treated as "source not polled",
	// not starvation.
	minFetches = 3
	// reopenAfter suppresses duplicate incidents for the same outage.
	reopenAfter = 24 * time.Hour
)

// Monitor runs the starvation sweep.
type Monitor struct {
	cfg      *config.Config
	db       *database.DB
	registry *profile.Registry

	now func() time.Time
}

// New creates a monitor.
func New(cfg *config.Config, db *database.DB, registry *profile.Registry) *Monitor {
	return &Monitor{cfg: cfg, db: db, registry: registry, now: time.Now}
}

// Serve runs the sweep on the configured tick.
func (m *Monitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Yield.TickInterval)
	defer ticker.Stop()

	logging.Info().Dur("tick", m.cfg.Yield.TickInterval).Msg("Yield monitor started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if opened, err := m.Sweep(ctx); err != nil {
				logging.Error().Err(err).Msg("Yield sweep failed")
			} else if opened > 0 {
				logging.Warn().Int("incidents", opened).Msg("Starvation incidents opened")
			}
		}
	}
}

func (m *Monitor) String() string { return "yield-monitor" }

// Sweep checks every enabled source once. Returns the number of incidents
// opened.
func (m *Monitor) Sweep(ctx context.Context) (int, error) {
	opened := 0
	for _, prof := range m.registry.All() {
		hit, err := m.checkSource(ctx, prof)
		if err != nil {
			logging.Error().Err(err).Str("source_id", prof.ID).Msg("Yield check failed")
			continue
		}
		if hit {
			opened++
		}
	}
	return opened, nil
}

// checkSource compares the profile's observation window against the calendar
// baseline and opens an incident when yield collapsed while fetches kept
// succeeding.
func (m *Monitor) checkSource(ctx context.Context, prof *profile.Profile) (bool, error) {
	now := m.now().UTC()
	window := prof.Observability.StarvationWindow()
	buckets, err := m.db.YieldBuckets(ctx, prof.ID, now.Add(-baselineLookback))
	if err != nil {
		return false, err
	}
	if len(buckets) == 0 {
		return false, nil
	}

	observedStart := now.Add(-window)
	var observedDocs, observedFetches int
	for _, b := range buckets {
		if b.BucketStart.Before(observedStart) {
			continue
		}
		observedDocs += b.NewDocuments
		observedFetches += b.Fetches
	}
	if observedFetches < minFetches {
		return false, nil
	}
	if observedDocs > 0 {
		return false, nil
	}

	expected := m.expectedYield(prof, buckets, observedStart, now)
	if expected < m.cfg.Yield.MinExpected {
		return false, nil
	}

	last, err := m.db.LastStarvationIncident(ctx, prof.ID)
	if err != nil {
		return false, err
	}
	if !last.IsZero() && now.Sub(last) < reopenAfter {
		return false, nil
	}

	inc := &models.StarvationIncident{
		ID:            uuid.NewString(),
		SourceID:      prof.ID,
		ObservedYield: float64(observedDocs),
		ExpectedYield: expected,
		WindowHours:   prof.Observability.StarvationWindowHours,
		OpenedAt:      now,
	}
	if err := m.db.InsertStarvationIncident(ctx, inc); err != nil {
		return false, err
	}
	metrics.StarvationIncidentsTotal.WithLabelValues(prof.ID).Inc()
	logging.Warn().
		Str("source_id", prof.ID).
		Float64("expected_yield", expected).
		Int("window_hours", inc.WindowHours).
		Msg("DATA_STARVATION incident opened")
	return true, nil
}

// expectedYield estimates what the observation window should have produced.
// With a rolling baseline, historical buckets matching the same calendar
// shape set the expectation: Brazilian official sources publish on business
// days in business hours, so a quiet Sunday morning is normal and a quiet
// Tuesday afternoon is not. A 24x7 calendar drops the weekday split, and a
// non-rolling baseline falls back to the configured floor.
func (m *Monitor) expectedYield(prof *profile.Profile, buckets []database.YieldBucket, observedStart, now time.Time) float64 {
	if !prof.Observability.BaselineRolling {
		return m.cfg.Yield.MinExpected
	}
	flat := prof.Observability.CalendarProfile == "24x7"

	type shape struct {
		business bool
		hour     int
	}
	bucketShape := func(t time.Time) shape {
		if flat {
			return shape{business: true, hour: t.Hour()}
		}
		return shape{business: isBusinessDay(t), hour: t.Hour()}
	}

	sums := make(map[shape]float64)
	counts := make(map[shape]int)
	for _, b := range buckets {
		if !b.BucketStart.Before(observedStart) {
			continue
		}
		s := bucketShape(b.BucketStart)
		sums[s] += float64(b.NewDocuments)
		counts[s]++
	}

	var expected float64
	for t := observedStart.Truncate(time.Hour); t.Before(now); t = t.Add(time.Hour) {
		s := bucketShape(t)
		if counts[s] > 0 {
			expected += sums[s] / float64(counts[s])
		}
	}
	return expected
}

func isBusinessDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}
