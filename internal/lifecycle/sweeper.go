// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package lifecycle

import (
	"context"
	"time"

	"github.com/vigiadados/radar/internal/logging"
	"github.com/vigiadados/radar/internal/models"
)

const sweepBatch = 200

// Serve runs the maintenance sweeps on the configured tick.
func (m *Machine) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Lifecycle.MaintenanceTick)
	defer ticker.Stop()

	logging.Info().Dur("tick", m.cfg.Lifecycle.MaintenanceTick).Msg("State maintenance started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil {
				logging.Error().Err(err).Msg("Maintenance sweep failed")
			}
		}
	}
}

func (m *Machine) String() string { return "state-maintenance" }

// Sweep runs the gating, quarantine-TTL and inactivity passes once.
func (m *Machine) Sweep(ctx context.Context) error {
	if err := m.sweepGating(ctx); err != nil {
		return err
	}
	if err := m.sweepQuarantine(ctx); err != nil {
		return err
	}
	return m.sweepInactivity(ctx)
}

// sweepGating moves events still hydrating past their gate timeout to
// PARTIAL_ENRICH so the feed never blocks on a slow pool. The gating clock
// runs from event creation and is independent of transport timeouts.
func (m *Machine) sweepGating(ctx context.Context) error {
	now := m.now().UTC()
	// Pull with the shorter gate; the per-event gate is re-checked below.
	cutoff := now.Add(-m.cfg.Lifecycle.GateTimeoutFast)

	for _, status := range []models.EventStatus{models.StatusNew, models.StatusHydrating} {
		events, err := m.db.EventsCreatedBefore(ctx, status, cutoff, sweepBatch)
		if err != nil {
			return err
		}
		for _, event := range events {
			gate, reason := m.gateFor(event.OriginPool)
			if now.Sub(event.FirstSeenAt) < gate {
				continue
			}
			if event.Status == models.StatusNew {
				if err := m.Transition(ctx, event.ID, models.StatusHydrating, ReasonHydrationStarted); err != nil {
					logging.Error().Err(err).Str("event_id", event.ID).Msg("Gate pre-step failed")
					continue
				}
			}
			if err := m.Transition(ctx, event.ID, models.StatusPartialEnrich, reason); err != nil {
				logging.Error().Err(err).Str("event_id", event.ID).Msg("Gate transition failed")
			}
		}
	}
	return nil
}

func (m *Machine) gateFor(pool models.Pool) (time.Duration, string) {
	switch pool {
	case models.FastPool:
		return m.cfg.Lifecycle.GateTimeoutFast, ReasonHydrationTimeoutFast
	default:
		return m.cfg.Lifecycle.GateTimeoutRender, ReasonHydrationTimeoutRend
	}
}

// sweepQuarantine expires quarantined events whose TTL elapsed with no
// editorial action. Expiry is always EXPIRED; IGNORED is reserved for an
// explicit editor decision.
func (m *Machine) sweepQuarantine(ctx context.Context) error {
	cutoff := m.now().UTC().Add(-m.cfg.Lifecycle.QuarantineTTL)
	ids, err := m.db.EventsInStatusBefore(ctx, models.StatusQuarantine, cutoff, sweepBatch)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := m.Transition(ctx, id, models.StatusExpired, ReasonQuarantineExpired); err != nil {
			logging.Error().Err(err).Str("event_id", id).Msg("Quarantine expiry failed")
		}
	}
	return nil
}

// sweepInactivity expires HOT and PARTIAL_ENRICH events that stopped
// receiving documents beyond the horizon.
func (m *Machine) sweepInactivity(ctx context.Context) error {
	if m.cfg.Lifecycle.InactivityHorizon <= 0 {
		return nil
	}
	cutoff := m.now().UTC().Add(-m.cfg.Lifecycle.InactivityHorizon)
	for _, status := range []models.EventStatus{models.StatusHot, models.StatusPartialEnrich} {
		events, err := m.db.EventsInactiveBefore(ctx, status, cutoff, sweepBatch)
		if err != nil {
			return err
		}
		for _, event := range events {
			if err := m.Transition(ctx, event.ID, models.StatusExpired, ReasonInactivityHorizon); err != nil {
				logging.Error().Err(err).Str("event_id", event.ID).Msg("Inactivity expiry failed")
			}
		}
	}
	return nil
}
