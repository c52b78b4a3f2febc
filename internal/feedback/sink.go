// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

// Package feedback is the write path for editorial actions. Every action is
// validated against the target event's current state, persisted immutably,
// and then applied: transitions, snoozes, merges and splits all route
// through here.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vigiadados/radar/internal/database"
	"github.com/vigiadados/radar/internal/kv"
	"github.com/vigiadados/radar/internal/lifecycle"
	"github.com/vigiadados/radar/internal/logging"
	"github.com/vigiadados/radar/internal/models"
	"github.com/vigiadados/radar/internal/organizer"
)

// Sentinel errors surfaced to the HTTP layer.
var (
	ErrUnknownAction    = errors.New("feedback: unknown action")
	ErrActionNotAllowed = errors.New("feedback: action not allowed in current state")
	ErrMissingPayload   = errors.New("feedback: required payload field missing")
)

// defaultSnooze applies when a SNOOZE action carries no duration.
const defaultSnooze = 2 * time.Hour

// Sink validates and applies editorial actions.
type Sink struct {
	db      *database.DB
	store   *kv.Store
	org     *organizer.Organizer
	machine *lifecycle.Machine

	now func() time.Time
}

// New creates a sink.
func New(db *database.DB, store *kv.Store, org *organizer.Organizer, machine *lifecycle.Machine) *Sink {
	return &Sink{db: db, store: store, org: org, machine: machine, now: time.Now}
}

// Result reports what applying an action produced.
type Result struct {
	Feedback *models.FeedbackEvent
	// NewEventID is set for SPLIT.
	NewEventID string
	// TargetEventID is the resolved canonical target for MERGE.
	TargetEventID string
}

// Apply validates, persists and executes one editorial action.
func (s *Sink) Apply(ctx context.Context, eventID string, action models.FeedbackAction, payload map[string]string) (*Result, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	event, err := s.db.ResolveCanonical(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("feedback target %s: %w", eventID, err)
	}
	if err := s.permitted(event.Status, action); err != nil {
		return nil, err
	}

	fb := &models.FeedbackEvent{
		ID:        uuid.NewString(),
		EventID:   event.ID,
		Action:    action,
		Payload:   payload,
		CreatedAt: s.now().UTC(),
	}
	if err := s.db.InsertFeedback(ctx, fb); err != nil {
		return nil, err
	}

	res := &Result{Feedback: fb}
	switch action {
	case models.ActionIgnore:
		err = s.machine.Transition(ctx, event.ID, models.StatusIgnored, lifecycle.ReasonEditorialIgnore)
	case models.ActionNotNews:
		err = s.machine.Transition(ctx, event.ID, models.StatusIgnored, "EDITORIAL_NOT_NEWS")
	case models.ActionSnooze:
		err = s.store.Snooze(event.ID, snoozeDuration(payload))
	case models.ActionPautar:
		err = s.markPautado(ctx, event)
	case models.ActionMerge:
		res.TargetEventID, err = s.applyMerge(ctx, event.ID, payload)
	case models.ActionSplit:
		res.NewEventID, err = s.applySplit(ctx, event.ID, payload)
	}
	if err != nil {
		return nil, err
	}

	logging.Info().
		Str("event_id", event.ID).
		Str("action", string(action)).
		Msg("Editorial action applied")
	return res, nil
}

// permitted encodes the per-state action gating. Terminal events accept no
// actions; merge, split and pautar need the event past hydration, since all
// three act on material the event has not finished assembling.
func (s *Sink) permitted(status models.EventStatus, action models.FeedbackAction) error {
	if status.Terminal() {
		return fmt.Errorf("%w: event is %s", ErrActionNotAllowed, status)
	}
	switch action {
	case models.ActionMerge, models.ActionSplit, models.ActionPautar:
		switch status {
		case models.StatusNew, models.StatusHydrating:
			return fmt.Errorf("%w: %s requires enrichment, event is %s", ErrActionNotAllowed, action, status)
		}
	}
	return nil
}

// markPautado flags the event as picked up by the desk. The radar keeps
// tracking it; the flag only changes how the UI ranks it.
func (s *Sink) markPautado(ctx context.Context, event *models.Event) error {
	if event.HasFlag("PAUTADO") {
		return nil
	}
	flags := map[string]bool{"PAUTADO": true}
	for k, v := range event.Flags {
		flags[k] = v
	}
	return s.db.SetEventFlags(ctx, event.ID, flags)
}

func (s *Sink) applyMerge(ctx context.Context, eventID string, payload map[string]string) (string, error) {
	target := payload["target_event_id"]
	if target == "" {
		return "", fmt.Errorf("%w: target_event_id", ErrMissingPayload)
	}
	canonical, err := s.db.ResolveCanonical(ctx, target)
	if err != nil {
		return "", fmt.Errorf("merge target %s: %w", target, err)
	}
	if err := s.org.EditorialMerge(ctx, eventID, canonical.ID); err != nil {
		return "", err
	}
	return canonical.ID, nil
}

func (s *Sink) applySplit(ctx context.Context, eventID string, payload map[string]string) (string, error) {
	raw := payload["doc_ids"]
	if raw == "" {
		return "", fmt.Errorf("%w: doc_ids", ErrMissingPayload)
	}
	var docIDs []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			docIDs = append(docIDs, id)
		}
	}
	newEventID, err := s.org.Split(ctx, eventID, docIDs)
	if err != nil {
		return "", err
	}
	// A split event starts hydrating; its material is already in hand but
	// scores and enrichment are recomputed from scratch.
	if err := s.machine.Transition(ctx, newEventID, models.StatusHydrating, "SPLIT_CREATED"); err != nil {
		return "", err
	}
	return newEventID, nil
}

func snoozeDuration(payload map[string]string) time.Duration {
	if raw, ok := payload["duration"]; ok {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return defaultSnooze
}
