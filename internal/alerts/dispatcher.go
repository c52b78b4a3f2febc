// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

// Package alerts decides, per state transition, whether one external
// notification goes out. Deduplication is by transition fingerprint, spam
// control by a per-event cooldown. Score crossings alone never alert.
package alerts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vigiadados/radar/internal/config"
	"github.com/vigiadados/radar/internal/database"
	"github.com/vigiadados/radar/internal/kv"
	"github.com/vigiadados/radar/internal/logging"
	"github.com/vigiadados/radar/internal/metrics"
	"github.com/vigiadados/radar/internal/models"
)

// Decision is the dispatcher's verdict for one transition.
type Decision string

const (
	DecisionSent     Decision = "sent"
	DecisionCooldown Decision = "cooldown"
	DecisionDedup    Decision = "dedup"
	DecisionSnoozed  Decision = "snoozed"
)

// Notification is the external payload handed to the sink. Carries both
// scores so downstream hooks (draft tooling, chat bridges) need no
// follow-up query.
type Notification struct {
	EventID      string             `json:"event_id"`
	Transition   string             `json:"transition"`
	Summary      string             `json:"summary,omitempty"`
	Status       models.EventStatus `json:"status"`
	ScorePlantao float64            `json:"score_plantao"`
	ScoreOceano  float64            `json:"score_oceano_azul"`
	Reasons      []string           `json:"reasons,omitempty"`
	Flags        map[string]bool    `json:"flags,omitempty"`
	At           time.Time          `json:"at"`
}

// Sink delivers notifications. Implementations must be safe for concurrent
// use; delivery errors are logged, never retried here.
type Sink interface {
	Deliver(ctx context.Context, n *Notification) error
}

// LogSink writes notifications to the structured log. The default sink until
// a chat or webhook bridge is configured.
type LogSink struct{}

// Deliver logs the notification at warn level so it stands out of the
// pipeline chatter.
func (LogSink) Deliver(_ context.Context, n *Notification) error {
	logging.Warn().
		Str("event_id", n.EventID).
		Str("transition", n.Transition).
		Str("status", string(n.Status)).
		Float64("score_plantao", n.ScorePlantao).
		Float64("score_oceano_azul", n.ScoreOceano).
		Strs("reasons", n.Reasons).
		Msg("ALERT")
	return nil
}

// Dispatcher applies the anti-spam policy and forwards to the sink.
type Dispatcher struct {
	cfg   *config.Config
	db    *database.DB
	store *kv.Store
	sink  Sink

	now func() time.Time
}

// New creates a dispatcher. A nil sink falls back to LogSink.
func New(cfg *config.Config, db *database.DB, store *kv.Store, sink Sink) *Dispatcher {
	if sink == nil {
		sink = LogSink{}
	}
	return &Dispatcher{cfg: cfg, db: db, store: store, sink: sink, now: time.Now}
}

// Notify evaluates one transition. Exactly one notification goes out per
// (event, transition fingerprint) unless the fingerprint changed or the
// cooldown elapsed.
func (d *Dispatcher) Notify(ctx context.Context, eventID, transition string) (Decision, error) {
	snoozed, err := d.store.Snoozed(eventID)
	if err != nil {
		return "", fmt.Errorf("snooze check %s: %w", eventID, err)
	}
	if snoozed {
		metrics.AlertsTotal.WithLabelValues(string(DecisionSnoozed)).Inc()
		return DecisionSnoozed, nil
	}

	event, err := d.db.GetEvent(ctx, eventID)
	if err != nil {
		return "", fmt.Errorf("alert event %s: %w", eventID, err)
	}
	score, err := d.db.GetEventScore(ctx, eventID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return "", err
	}
	if score == nil {
		score = &models.EventScore{EventID: eventID}
	}

	fp := Fingerprint(eventID, transition, score)
	now := d.now().UTC()

	state, err := d.db.GetAlertState(ctx, eventID)
	if err != nil {
		return "", err
	}
	if state != nil {
		if state.LastHash == fp {
			metrics.AlertsTotal.WithLabelValues(string(DecisionDedup)).Inc()
			return DecisionDedup, nil
		}
		if now.Before(state.CooldownUntil) {
			metrics.AlertsTotal.WithLabelValues(string(DecisionCooldown)).Inc()
			return DecisionCooldown, nil
		}
	}
	// Hot-path gate in KV; the alert_states row is the durable record.
	inCooldown, err := d.store.InAlertCooldown(eventID)
	if err != nil {
		return "", err
	}
	if inCooldown && state != nil && state.LastHash == fp {
		metrics.AlertsTotal.WithLabelValues(string(DecisionDedup)).Inc()
		return DecisionDedup, nil
	}

	n := &Notification{
		EventID:      event.ID,
		Transition:   transition,
		Summary:      event.Summary,
		Status:       event.Status,
		ScorePlantao: score.ScorePlantao,
		ScoreOceano:  score.ScoreOceanoAzul,
		Reasons:      reasonCodes(score.Reasons),
		Flags:        event.Flags,
		At:           now,
	}
	if err := d.sink.Deliver(ctx, n); err != nil {
		logging.Error().Err(err).Str("event_id", eventID).Msg("Alert delivery failed")
	}

	if err := d.db.UpsertAlertState(ctx, &models.EventAlertState{
		EventID:       eventID,
		LastHash:      fp,
		LastAlertAt:   now,
		CooldownUntil: now.Add(d.cfg.Alerts.Cooldown),
	}); err != nil {
		return "", err
	}
	if err := d.store.SetAlertCooldown(eventID, d.cfg.Alerts.Cooldown); err != nil {
		logging.Warn().Err(err).Str("event_id", eventID).Msg("Alert cooldown marker failed")
	}

	metrics.AlertsTotal.WithLabelValues(string(DecisionSent)).Inc()
	return DecisionSent, nil
}

// Fingerprint hashes the event id, the transition, the sorted reason codes
// and both scores banded to steps of five. Small score jitter inside a band
// does not re-alert; a band change or a new reason does.
func Fingerprint(eventID, transition string, score *models.EventScore) string {
	codes := reasonCodes(score.Reasons)
	sort.Strings(codes)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|", eventID, transition)
	for _, c := range codes {
		fmt.Fprintf(h, "%s,", c)
	}
	fmt.Fprintf(h, "|%d|%d", int(score.ScorePlantao)/5, int(score.ScoreOceanoAzul)/5)
	return hex.EncodeToString(h.Sum(nil))
}

func reasonCodes(reasons []models.ReasonContribution) []string {
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, r.Code)
	}
	return out
}
