// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package models

import "time"

// EventStatus is the lifecycle state of an Event.
type EventStatus string

const (
	StatusNew           EventStatus = "NEW"
	StatusHydrating     EventStatus = "HYDRATING"
	StatusPartialEnrich EventStatus = "PARTIAL_ENRICH"
	StatusFailedEnrich  EventStatus = "FAILED_ENRICH"
	StatusQuarantine    EventStatus = "QUARANTINE"
	StatusHot           EventStatus = "HOT"
	StatusMerged        EventStatus = "MERGED"
	StatusIgnored       EventStatus = "IGNORED"
	StatusExpired       EventStatus = "EXPIRED"
)

// Terminal reports whether no further transition may leave s.
func (s EventStatus) Terminal() bool {
	switch s {
	case StatusFailedEnrich, StatusMerged, StatusIgnored, StatusExpired:
		return true
	}
	return false
}

// FlagUnverifiedViral marks extreme velocity without strong evidence or
// Tier-1 confirmation. A flag, never a state.
const FlagUnverifiedViral = "UNVERIFIED_VIRAL"

// Event is a cluster of Documents describing one editorial fact.
// CanonicalEventID is the one-step tombstone pointer: nil identifies a
// canonical event, followers point at a canonical whose own pointer is nil.
type Event struct {
	ID               string          `json:"id"`
	Status           EventStatus     `json:"status"`
	Flags            map[string]bool `json:"flags,omitempty"`
	CanonicalEventID string          `json:"canonical_event_id,omitempty"`
	Summary          string          `json:"summary,omitempty"`
	Lane             string          `json:"lane,omitempty"`
	OriginPool       Pool            `json:"origin_pool"`
	ScorePlantao     float64         `json:"score_plantao"`
	FirstSeenAt      time.Time       `json:"first_seen_at"`
	LastSeenAt       time.Time       `json:"last_seen_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// HasFlag reports whether the named flag is set.
func (e *Event) HasFlag(name string) bool {
	return e.Flags != nil && e.Flags[name]
}

// EventDoc is the Event↔Document edge, unique per (event_id, doc_id).
type EventDoc struct {
	EventID   string    `json:"event_id"`
	DocID     string    `json:"doc_id"`
	SourceID  string    `json:"source_id"`
	SeenAt    time.Time `json:"seen_at"`
	IsPrimary bool      `json:"is_primary"`
}

// ReasonContribution is one stable reason code with its numeric weight.
type ReasonContribution struct {
	Code   string  `json:"code"`
	Weight float64 `json:"weight"`
}

// EventScore carries the latest dual scores for an Event.
type EventScore struct {
	EventID         string               `json:"event_id"`
	ScorePlantao    float64              `json:"score_plantao"`
	ScoreOceanoAzul float64              `json:"score_oceano_azul"`
	Reasons         []ReasonContribution `json:"reasons"`
	ComputedAt      time.Time            `json:"computed_at"`
}

// EventStateRecord is one append-only row of the transition history.
type EventStateRecord struct {
	ID      int64       `json:"id"`
	EventID string      `json:"event_id"`
	Status  EventStatus `json:"status"`
	Reason  string      `json:"reason,omitempty"`
	At      time.Time   `json:"at"`
}

// EventAlertState tracks the last notification per Event for anti-spam.
type EventAlertState struct {
	EventID       string    `json:"event_id"`
	LastHash      string    `json:"last_hash,omitempty"`
	LastAlertAt   time.Time `json:"last_alert_at"`
	CooldownUntil time.Time `json:"cooldown_until"`
}

// MergeAudit is the immutable record of one canonicalisation fold.
type MergeAudit struct {
	ID          int64             `json:"id"`
	FromEventID string            `json:"from_event_id"`
	ToEventID   string            `json:"to_event_id"`
	ReasonCode  string            `json:"reason_code"`
	Evidence    map[string]string `json:"evidence,omitempty"`
	MergedAt    time.Time         `json:"merged_at"`
}

// FeedbackAction is an editorial action on an Event.
type FeedbackAction string

const (
	ActionIgnore  FeedbackAction = "IGNORE"
	ActionSnooze  FeedbackAction = "SNOOZE"
	ActionPautar  FeedbackAction = "PAUTAR"
	ActionMerge   FeedbackAction = "MERGE"
	ActionSplit   FeedbackAction = "SPLIT"
	ActionNotNews FeedbackAction = "NOT_NEWS"
)

// Valid reports whether a is a known editorial action.
func (a FeedbackAction) Valid() bool {
	switch a {
	case ActionIgnore, ActionSnooze, ActionPautar, ActionMerge, ActionSplit, ActionNotNews:
		return true
	}
	return false
}

// FeedbackEvent is one persisted editorial action. Immutable.
type FeedbackEvent struct {
	ID        string            `json:"id"`
	EventID   string            `json:"event_id"`
	Action    FeedbackAction    `json:"action"`
	Payload   map[string]string `json:"payload,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
