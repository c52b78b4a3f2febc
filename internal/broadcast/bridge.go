// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package broadcast

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/vigiadados/radar/internal/kv"
	"github.com/vigiadados/radar/internal/logging"
	"github.com/vigiadados/radar/internal/models"
)

// Bridge feeds stream messages from the broker topic into the local hub.
// Replicas that did not originate a message still deliver it to their
// clients; the originator skips its own messages by sequence, as the hub
// already pushed them at publish time.
type Bridge struct {
	subscriber message.Subscriber
	hub        *Hub
	store      *kv.Store
}

// NewBridge wires a subscriber to a hub. The subscriber should be dedicated
// to the bridge; Serve consumes its message channel until the context ends.
func NewBridge(subscriber message.Subscriber, hub *Hub, store *kv.Store) *Bridge {
	return &Bridge{subscriber: subscriber, hub: hub, store: store}
}

// Serve subscribes to the stream topic and pushes foreign messages into the
// hub. Every message is acked: the stream is a live feed, and a message a
// client missed is superseded by the next upsert anyway.
func (b *Bridge) Serve(ctx context.Context) error {
	messages, err := b.subscriber.Subscribe(ctx, Topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", Topic, err)
	}
	logging.Info().Str("topic", Topic).Msg("Stream bridge started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return errors.New("stream subscription closed")
			}
			if err := b.handle(msg); err != nil {
				logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("Stream bridge handle failed")
			}
			msg.Ack()
		}
	}
}

func (b *Bridge) String() string { return "stream-bridge" }

func (b *Bridge) handle(msg *message.Message) error {
	var sm models.StreamMessage
	if err := json.Unmarshal(msg.Payload, &sm); err != nil {
		logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("Bad stream payload")
		return nil
	}
	seen, err := b.store.MarkStreamSeq(sm.EventID, sm.Seq)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}
	b.hub.Push(sm)
	return nil
}
