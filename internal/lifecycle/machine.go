// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

// Package lifecycle enforces the event state machine. All status writes go
// through Transition so the allowed-transition table and the append-only
// history stay in agreement. Merges are the one exception: the database folds
// the follower to MERGED inside the merge transaction.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/vigiadados/radar/internal/config"
	"github.com/vigiadados/radar/internal/database"
	"github.com/vigiadados/radar/internal/metrics"
	"github.com/vigiadados/radar/internal/models"
	"github.com/vigiadados/radar/internal/scoring"
)

// Transition reason codes. Stable strings, append-only.
const (
	ReasonHydrationStarted     = "HYDRATION_STARTED"
	ReasonHydrationTimeoutFast = "HYDRATION_TIMEOUT_FAST"
	ReasonHydrationTimeoutRend = "HYDRATION_TIMEOUT_RENDER"
	ReasonScoreHotThreshold    = "SCORE_HOT_THRESHOLD"
	ReasonWeakCluster          = "WEAK_CLUSTER_QUARANTINE"
	ReasonQuarantineExpired    = "QUARANTINE_TTL_EXPIRED"
	ReasonInactivityHorizon    = "INACTIVITY_HORIZON"
	ReasonEditorialIgnore      = "EDITORIAL_IGNORE"
)

// ErrTransitionNotAllowed reports a rejected status change.
type ErrTransitionNotAllowed struct {
	From, To models.EventStatus
}

func (e *ErrTransitionNotAllowed) Error() string {
	return fmt.Sprintf("lifecycle: transition %s -> %s not allowed", e.From, e.To)
}

// allowed is the transition table. MERGED is reachable from any non-terminal
// state via the merge transaction and is listed here so editorial merges
// validate the same way.
var allowed = map[models.EventStatus][]models.EventStatus{
	models.StatusNew: {
		models.StatusHydrating, models.StatusPartialEnrich, models.StatusQuarantine,
		models.StatusMerged, models.StatusIgnored, models.StatusFailedEnrich,
	},
	models.StatusHydrating: {
		models.StatusPartialEnrich, models.StatusHot, models.StatusQuarantine,
		models.StatusMerged, models.StatusIgnored, models.StatusFailedEnrich,
	},
	models.StatusPartialEnrich: {
		models.StatusHot, models.StatusQuarantine, models.StatusMerged,
		models.StatusIgnored, models.StatusExpired,
	},
	models.StatusHot: {
		models.StatusQuarantine, models.StatusMerged, models.StatusIgnored,
		models.StatusExpired,
	},
	models.StatusQuarantine: {
		models.StatusExpired, models.StatusMerged, models.StatusIgnored,
	},
}

// Allowed reports whether from -> to is a legal transition.
func Allowed(from, to models.EventStatus) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Machine applies validated transitions and runs the maintenance sweeps.
type Machine struct {
	cfg *config.Config
	db  *database.DB

	now func() time.Time
}

// New creates a state machine.
func New(cfg *config.Config, db *database.DB) *Machine {
	return &Machine{cfg: cfg, db: db, now: time.Now}
}

// Transition moves an event to a new status after validating the change
// against the table and the current persisted status.
func (m *Machine) Transition(ctx context.Context, eventID string, to models.EventStatus, reason string) error {
	event, err := m.db.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("transition %s: %w", eventID, err)
	}
	if event.Status == to {
		return nil
	}
	if !Allowed(event.Status, to) {
		return &ErrTransitionNotAllowed{From: event.Status, To: to}
	}
	if err := m.db.UpdateEventStatus(ctx, eventID, to, reason, m.now().UTC()); err != nil {
		return err
	}
	metrics.StateTransitionsTotal.WithLabelValues(string(event.Status), string(to), reason).Inc()
	return nil
}

// Apply reacts to a fresh scoring assessment: hydration kickoff, HOT
// promotion, viral flagging and the weak-cluster quarantine.
func (m *Machine) Apply(ctx context.Context, eventID string, a *scoring.Assessment) error {
	event, err := m.db.ResolveCanonical(ctx, eventID)
	if err != nil {
		return fmt.Errorf("apply assessment %s: %w", eventID, err)
	}
	if event.Status.Terminal() {
		return nil
	}

	if a.Viral && !event.HasFlag(models.FlagUnverifiedViral) {
		flags := map[string]bool{models.FlagUnverifiedViral: true}
		for k, v := range event.Flags {
			flags[k] = v
		}
		if err := m.db.SetEventFlags(ctx, event.ID, flags); err != nil {
			return err
		}
	}

	if event.Status == models.StatusNew {
		if err := m.Transition(ctx, event.ID, models.StatusHydrating, ReasonHydrationStarted); err != nil {
			return err
		}
		event.Status = models.StatusHydrating
	}

	switch event.Status {
	case models.StatusHydrating, models.StatusPartialEnrich:
		if a.Hot {
			confirmed, err := m.strongConfirmation(ctx, event.ID)
			if err != nil {
				return err
			}
			if confirmed {
				return m.Transition(ctx, event.ID, models.StatusHot, ReasonScoreHotThreshold)
			}
		}
		if a.QuarantineRecommended && event.Status == models.StatusHydrating {
			return m.Transition(ctx, event.ID, models.StatusQuarantine, ReasonWeakCluster)
		}
	}
	return nil
}

// strongConfirmation reports whether an event carries at least one strong
// anchor or a Tier-1 official source. HOT requires one of the two.
func (m *Machine) strongConfirmation(ctx context.Context, eventID string) (bool, error) {
	minTier, official, err := m.db.EventSourceTiers(ctx, eventID)
	if err != nil {
		return false, err
	}
	if official && minTier == 1 {
		return true, nil
	}
	anchors, err := m.db.AnchorsForEvent(ctx, eventID)
	if err != nil {
		return false, err
	}
	for _, a := range anchors {
		if a.Type.IsStrong() {
			return true, nil
		}
	}
	return false, nil
}
