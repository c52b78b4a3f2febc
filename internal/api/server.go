// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vigiadados/radar/internal/config"
	"github.com/vigiadados/radar/internal/logging"
)

// shutdownGrace bounds how long in-flight requests may run after the
// supervisor cancels the service.
const shutdownGrace = 10 * time.Second

// Server runs the HTTP listener under the supervision tree.
type Server struct {
	srv *http.Server
}

// NewServer builds the listener around a routing tree.
func NewServer(cfg *config.Config, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		// No WriteTimeout: the websocket stream holds connections open.
		IdleTimeout: 120 * time.Second,
	}}
}

// Serve listens until the context is cancelled. Implements suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("HTTP shutdown incomplete; closing")
			_ = s.srv.Close()
		}
		return ctx.Err()
	}
}

func (s *Server) String() string { return "http-server" }
