// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package database

import (
	"context"
	"time"

	"github.com/vigiadados/radar/internal/logging"
)

const keepalivePingTimeout = 5 * time.Second

// Keepalive pings the database on an interval so connection-pool failures
// surface in the supervisor instead of on the next query.
type Keepalive struct {
	db       *DB
	interval time.Duration
}

// NewKeepalive creates the ping service. Intervals under ten seconds are
// raised to ten seconds.
func NewKeepalive(db *DB, interval time.Duration) *Keepalive {
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	return &Keepalive{db: db, interval: interval}
}

// Serve pings until the context ends. A failed ping returns the error so the
// supervisor restarts the service and backs off.
func (k *Keepalive) Serve(ctx context.Context) error {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, keepalivePingTimeout)
			err := k.db.Ping(pingCtx)
			cancel()
			if err != nil {
				logging.Error().Err(err).Msg("Database ping failed")
				return err
			}
		}
	}
}

func (k *Keepalive) String() string { return "duckdb-keepalive" }
