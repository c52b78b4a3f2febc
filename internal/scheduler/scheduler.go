// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

// Package scheduler decides when each source is polled. Every tick it walks
// the enabled profiles, picks the ones that are due, and publishes fetch
// jobs to the pool topics. An in-flight lock per source guarantees at most
// one outstanding fetch; backpressure throttles low-tier sources first.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/vigiadados/radar/internal/config"
	"github.com/vigiadados/radar/internal/kv"
	"github.com/vigiadados/radar/internal/logging"
	"github.com/vigiadados/radar/internal/metrics"
	"github.com/vigiadados/radar/internal/models"
	"github.com/vigiadados/radar/internal/pipeline"
	"github.com/vigiadados/radar/internal/profile"
)

// lockSlack extends the in-flight lock past the pool timeout so a worker
// that is still draining a slow body keeps its lock.
const lockSlack = 30 * time.Second

// Scheduler is a suture-compatible service. One instance runs per process.
type Scheduler struct {
	cfg       *config.Config
	registry  *profile.Registry
	store     *kv.Store
	publisher message.Publisher

	// lastDispatch caches the KV-persisted dispatch times; the store is
	// consulted on a miss so a restart resumes the cadence.
	lastDispatch map[string]time.Time

	now func() time.Time
}

// New creates a scheduler.
func New(cfg *config.Config, registry *profile.Registry, store *kv.Store, publisher message.Publisher) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		registry:     registry,
		store:        store,
		publisher:    publisher,
		lastDispatch: make(map[string]time.Time),
		now:          time.Now,
	}
}

// Serve runs the dispatch loop until the context is cancelled.
func (s *Scheduler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Scheduler.TickInterval)
	defer ticker.Stop()

	logging.Info().Dur("tick", s.cfg.Scheduler.TickInterval).Msg("Scheduler started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) String() string { return "scheduler" }

// tick dispatches every due source the backpressure budget allows.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	due := s.dueProfiles(now)
	if len(due) == 0 {
		return
	}

	maxTier := s.tierBudget()
	for _, p := range due {
		if ctx.Err() != nil {
			return
		}
		pool := p.EffectivePool()
		if p.Tier > maxTier {
			metrics.SchedulerDispatchesTotal.WithLabelValues(string(pool), "throttled").Inc()
			continue
		}
		if err := s.dispatch(p, now); err != nil {
			if errors.Is(err, kv.ErrLockHeld) {
				metrics.SchedulerDispatchesTotal.WithLabelValues(string(pool), "skipped_inflight").Inc()
				continue
			}
			logging.Error().Err(err).Str("source_id", p.ID).Msg("Dispatch failed")
			continue
		}
		metrics.SchedulerDispatchesTotal.WithLabelValues(string(pool), "enqueued").Inc()
	}
}

// dueProfiles returns the enabled profiles whose next due time has passed,
// ordered by tier, then by how overdue they are. The overdue ordering keeps
// a burst from starving sources that have waited longest.
func (s *Scheduler) dueProfiles(now time.Time) []*profile.Profile {
	var due []*profile.Profile
	overdue := make(map[string]time.Duration)

	for _, p := range s.registry.All() {
		last, seen := s.lastDispatch[p.ID]
		if !seen {
			persisted, found, err := s.store.LastDispatch(p.ID)
			if err != nil {
				logging.Warn().Err(err).Str("source_id", p.ID).Msg("Reading last dispatch failed")
			}
			if found {
				last, seen = persisted, true
				s.lastDispatch[p.ID] = persisted
			}
		}
		if !seen {
			// Never dispatched; due immediately.
			due = append(due, p)
			overdue[p.ID] = time.Duration(1<<62 - 1)
			continue
		}
		next := p.NextDue(last)
		if !next.After(now) {
			due = append(due, p)
			overdue[p.ID] = now.Sub(next)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].Tier != due[j].Tier {
			return due[i].Tier < due[j].Tier
		}
		return overdue[due[i].ID] > overdue[due[j].ID]
	})
	return due
}

// tierBudget maps total in-flight depth to the lowest tier still allowed to
// dispatch. Tier 1 is never throttled.
func (s *Scheduler) tierBudget() int {
	depth, err := s.store.CountFetchLocks()
	if err != nil {
		logging.Warn().Err(err).Msg("Counting fetch locks failed, assuming empty queue")
		return 4
	}
	metrics.QueueDepth.WithLabelValues("total").Set(float64(depth))

	hwm := s.cfg.Scheduler.HighWaterMark
	switch {
	case depth >= hwm:
		return 1
	case depth >= hwm*3/4:
		return 2
	case depth >= hwm/2:
		return 3
	default:
		return 4
	}
}

func (s *Scheduler) dispatch(p *profile.Profile, now time.Time) error {
	pool := p.EffectivePool()
	ttl := s.poolTimeout(pool) + lockSlack
	if err := s.store.AcquireFetchLock(p.ID, ttl); err != nil {
		return err
	}

	msg, err := pipeline.NewMessage(&pipeline.FetchJob{
		SourceID: p.ID,
		URL:      p.URL,
		Pool:     pool,
	})
	if err != nil {
		_ = s.store.ReleaseFetchLock(p.ID)
		return err
	}
	if err := s.publisher.Publish(pipeline.FetchTopic(pool), msg); err != nil {
		_ = s.store.ReleaseFetchLock(p.ID)
		return err
	}

	s.lastDispatch[p.ID] = now
	if err := s.store.SetLastDispatch(p.ID, now); err != nil {
		logging.Warn().Err(err).Str("source_id", p.ID).Msg("Persisting last dispatch failed")
	}
	logging.Debug().Str("source_id", p.ID).Str("pool", string(pool)).Msg("Fetch job dispatched")
	return nil
}

func (s *Scheduler) poolTimeout(pool models.Pool) time.Duration {
	switch pool {
	case models.HeavyRenderPool:
		return s.cfg.Fetch.Render.Timeout
	case models.DeepExtractPool:
		return s.cfg.Fetch.Deep.Timeout
	default:
		return s.cfg.Fetch.Fast.Timeout
	}
}
