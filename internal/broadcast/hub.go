// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

// Package broadcast fans the live event stream out to connected editorial
// clients. One hub per process; cross-process delivery rides the broker's
// events.stream topic so any replica can serve any client.
package broadcast

import (
	"context"
	"sort"
	"sync"

	"github.com/vigiadados/radar/internal/logging"
	"github.com/vigiadados/radar/internal/metrics"
	"github.com/vigiadados/radar/internal/models"
)

// Hub maintains the set of connected clients and pushes stream messages to
// them. Delivery is best-effort at-most-once per connection; a client that
// cannot keep up is dropped and expected to reconnect and re-fetch.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan models.StreamMessage
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan models.StreamMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Serve runs the hub loop until the context is cancelled. Lifecycle events
// are drained before broadcasts so client state is consistent when a message
// fans out.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.register:
			h.add(client)
			continue
		case client := <-h.unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) String() string { return "broadcast-hub" }

// Push queues a message for all connected clients. Non-blocking; a full hub
// queue drops the message rather than stalling the pipeline.
func (h *Hub) Push(msg models.StreamMessage) {
	select {
	case h.broadcast <- msg:
		metrics.BroadcastMessagesTotal.WithLabelValues(msg.Kind).Inc()
	default:
		logging.Warn().Str("kind", msg.Kind).Str("event_id", msg.EventID).
			Msg("Broadcast queue full, dropping message")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("Stream client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WebsocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("Stream client disconnected")
}

// fanOut delivers to clients in id order so test runs and reconnect storms
// behave the same way every time.
func (h *Hub) fanOut(msg models.StreamMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, client := range clients {
		select {
		case client.send <- msg:
		default:
			// Slow consumer; drop the connection, keep the stream moving.
			close(client.send)
			delete(h.clients, client)
		}
	}
	metrics.WebsocketClients.Set(float64(len(h.clients)))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WebsocketClients.Set(0)
	logging.Info().Msg("Broadcast hub stopped, all stream clients closed")
}
