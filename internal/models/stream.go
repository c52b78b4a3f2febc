// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package models

import "time"

// Stream message kinds pushed to editorial clients. Delivery is best-effort
// at-most-once per connection; ordering is guaranteed per event only.
const (
	MessageEventUpsert       = "EVENT_UPSERT"
	MessageEventStateChanged = "EVENT_STATE_CHANGED"
	MessageEventMerged       = "EVENT_MERGED"
)

// StreamMessage is the envelope for all outbound live-stream messages.
// Seq increases monotonically per event.
type StreamMessage struct {
	Kind    string    `json:"kind"`
	EventID string    `json:"event_id"`
	Seq     uint64    `json:"seq"`
	At      time.Time `json:"at"`

	Upsert *EventUpsert       `json:"upsert,omitempty"`
	State  *EventStateChanged `json:"state,omitempty"`
	Merged *EventMerged       `json:"merged,omitempty"`
}

// EventUpsert carries the full client-facing view of an event.
type EventUpsert struct {
	Status          EventStatus `json:"status"`
	Summary         string      `json:"summary,omitempty"`
	Lane            string      `json:"lane,omitempty"`
	ScorePlantao    float64     `json:"score_plantao"`
	ScoreOceanoAzul float64     `json:"score_oceano_azul"`
	// ScoreOceanoAzulNorm maps the capped oceano score onto [0,1] for
	// client-side gauges.
	ScoreOceanoAzulNorm float64              `json:"score_oceano_azul_norm"`
	Reasons             []ReasonContribution `json:"reasons,omitempty"`
	Anchors             []Anchor             `json:"anchors,omitempty"`
	DocCount            int                  `json:"doc_count"`
	SourceCount         int                  `json:"source_count"`
	FirstSeen           time.Time            `json:"first_seen"`
	LastSeen            time.Time            `json:"last_seen"`
	Flags               []string             `json:"flags,omitempty"`
}

// EventStateChanged notifies one state-machine transition.
type EventStateChanged struct {
	PreviousStatus EventStatus `json:"previous_status"`
	NewStatus      EventStatus `json:"new_status"`
	Reason         string      `json:"reason,omitempty"`
	At             time.Time   `json:"at"`
}

// EventMerged is the tombstone: clients remove FromEventID and highlight
// ToEventID.
type EventMerged struct {
	FromEventID string `json:"from_event_id"`
	ToEventID   string `json:"to_event_id"`
	ReasonCode  string `json:"reason_code"`
}
