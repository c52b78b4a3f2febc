// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

// Package pipeline wires the ingestion stages together over Watermill and
// NATS JetStream: scheduler -> fetch pools -> extractor -> organizer ->
// scorer, with a poison queue for messages that keep failing.
package pipeline

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/vigiadados/radar/internal/models"
)

// Topics. Fetch jobs fan out per pool so each pool's subscriber carries its
// own concurrency budget.
const (
	TopicFetchFast   = "fetch.fast"
	TopicFetchRender = "fetch.render"
	TopicFetchDeep   = "fetch.deep"
	TopicExtract     = "pipeline.extract"
	TopicOrganize    = "pipeline.organize"
	TopicScore       = "pipeline.score"
)

// FetchTopic returns the fetch topic for a pool.
func FetchTopic(pool models.Pool) string {
	switch pool {
	case models.HeavyRenderPool:
		return TopicFetchRender
	case models.DeepExtractPool:
		return TopicFetchDeep
	default:
		return TopicFetchFast
	}
}

// FetchJob tells a pool worker to poll one source now.
type FetchJob struct {
	SourceID string      `json:"source_id"`
	URL      string      `json:"url"`
	Pool     models.Pool `json:"pool"`
}

// ExtractJob carries a fetched snapshot into the extractor.
type ExtractJob struct {
	SourceID     string          `json:"source_id"`
	URL          string          `json:"url"`
	SnapshotHash string          `json:"snapshot_hash"`
	Strategy     models.Strategy `json:"strategy"`
	Pool         models.Pool     `json:"pool"`
}

// OrganizeJob carries one new document version into the organizer.
type OrganizeJob struct {
	DocID string      `json:"doc_id"`
	Pool  models.Pool `json:"pool"`
}

// ScoreJob asks the scorer to recompute one event.
type ScoreJob struct {
	EventID string `json:"event_id"`
	// Trigger distinguishes new-material recomputes from maintenance ones.
	Trigger string `json:"trigger"`
}

// NewMessage marshals a payload into a Watermill message with a fresh UUID.
func NewMessage(payload any) (*message.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal message payload: %w", err)
	}
	return message.NewMessage(watermill.NewUUID(), data), nil
}

// Decode unmarshals a message payload into out.
func Decode(msg *message.Message, out any) error {
	if err := json.Unmarshal(msg.Payload, out); err != nil {
		return fmt.Errorf("decode message %s: %w", msg.UUID, err)
	}
	return nil
}
