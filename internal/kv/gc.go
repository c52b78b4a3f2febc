// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package kv

import (
	"context"
	"time"
)

// GCService runs badger value-log garbage collection on a timer under the
// supervision tree.
type GCService struct {
	store    *Store
	interval time.Duration
}

// NewGCService creates the GC loop. Intervals under a minute are clamped;
// value-log GC is not free.
func NewGCService(store *Store, interval time.Duration) *GCService {
	if interval < time.Minute {
		interval = time.Minute
	}
	return &GCService{store: store, interval: interval}
}

// Serve implements suture.Service.
func (g *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.store.RunGC()
		}
	}
}

func (g *GCService) String() string { return "kv-gc" }
