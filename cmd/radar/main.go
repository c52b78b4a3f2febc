// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

// Command radar runs the whole editorial radar in one process: embedded
// NATS JetStream, the ingestion pipeline, the state machine, and the HTTP
// API with the live websocket stream.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/vigiadados/radar/internal/alerts"
	"github.com/vigiadados/radar/internal/api"
	"github.com/vigiadados/radar/internal/broadcast"
	"github.com/vigiadados/radar/internal/config"
	"github.com/vigiadados/radar/internal/database"
	"github.com/vigiadados/radar/internal/extractor"
	"github.com/vigiadados/radar/internal/feedback"
	"github.com/vigiadados/radar/internal/fetcher"
	"github.com/vigiadados/radar/internal/kv"
	"github.com/vigiadados/radar/internal/lifecycle"
	"github.com/vigiadados/radar/internal/logging"
	"github.com/vigiadados/radar/internal/organizer"
	"github.com/vigiadados/radar/internal/pipeline"
	"github.com/vigiadados/radar/internal/profile"
	"github.com/vigiadados/radar/internal/scheduler"
	"github.com/vigiadados/radar/internal/scoring"
	"github.com/vigiadados/radar/internal/supervisor"
	"github.com/vigiadados/radar/internal/yield"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Radar exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logging.Info().Str("profiles_dir", cfg.Profiles.Dir).Msg("Vigia de Dados starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage layer.
	db, err := database.New(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	kvPath := cfg.KV.Path
	if cfg.KV.InMemory {
		kvPath = ""
	}
	store, err := kv.Open(kvPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	// Source-profile contracts.
	registry := profile.NewRegistry()
	if err := registry.LoadDir(cfg.Profiles.Dir); err != nil {
		return err
	}
	if err := registry.Sync(ctx, db); err != nil {
		return err
	}
	logging.Info().Int("sources", registry.Len()).Msg("Source profiles loaded")

	// Message broker. Standalone deployments run NATS in-process.
	if cfg.NATS.EmbeddedServer {
		ns, err := pipeline.NewEmbeddedServer(&cfg.NATS)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = ns.Shutdown(shutdownCtx)
		}()
		cfg.NATS.URL = ns.ClientURL()
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	wmLogger := watermill.NewSlogLogger(slogger)

	publisher, err := pipeline.NewPublisher(&cfg.NATS, wmLogger)
	if err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()

	subscriber, err := pipeline.NewSubscriber(&cfg.NATS, wmLogger)
	if err != nil {
		return err
	}
	defer func() { _ = subscriber.Close() }()

	// Pipeline stages.
	fetch := fetcher.New(cfg, db, store, registry)
	extract := extractor.New(cfg, db, fetch, registry)
	organize := organizer.New(cfg, db, store)
	score := scoring.New(cfg, db, store)
	machine := lifecycle.New(cfg, db)
	dispatcher := alerts.New(cfg, db, store, nil)

	hub := broadcast.NewHub()
	broadcaster := broadcast.New(db, store, hub, publisher, cfg.Organizer.BroadcastAnchorsTopK)

	// Merges and splits change the inputs a score was computed from, so the
	// organizer re-enqueues the surviving events for scoring.
	organize.Rescore = func(ctx context.Context, eventID string) {
		msg, err := pipeline.NewMessage(&pipeline.ScoreJob{EventID: eventID, Trigger: "rescore"})
		if err != nil {
			logging.Warn().Err(err).Str("event_id", eventID).Msg("Rescore job build failed")
			return
		}
		msg.SetContext(ctx)
		if err := publisher.Publish(pipeline.TopicScore, msg); err != nil {
			logging.Warn().Err(err).Str("event_id", eventID).Msg("Rescore enqueue failed")
		}
	}

	canonicalizer := organizer.NewCanonicalizer(organize)
	canonicalizer.OnMerge = func(ctx context.Context, from, to, reason string) {
		if err := broadcaster.Merged(ctx, from, to, reason); err != nil {
			logging.Warn().Err(err).Str("from", from).Str("to", to).Msg("Merge stream update failed")
		}
	}

	handlers := pipeline.NewHandlers(db, registry, fetch, extract, organize, score, machine, dispatcher, broadcaster)
	router, err := pipeline.NewRouter(&cfg.NATS, publisher, subscriber, handlers, wmLogger)
	if err != nil {
		return err
	}
	defer func() { _ = router.Close() }()

	// HTTP surface.
	sink := feedback.New(db, store, organize, machine)
	httpServer := api.NewServer(cfg, api.NewRouter(cfg, db, registry, sink, hub, broadcaster))

	// Supervision tree.
	tree := supervisor.NewTree(slogger, supervisor.DefaultTreeConfig())
	tree.AddDataService(database.NewKeepalive(db, 30*time.Second))
	tree.AddDataService(kv.NewGCService(store, cfg.KV.GCInterval))

	tree.AddPipelineService(router)
	tree.AddPipelineService(scheduler.New(cfg, registry, store, publisher))
	tree.AddPipelineService(canonicalizer)
	tree.AddPipelineService(machine)
	tree.AddPipelineService(yield.New(cfg, db, registry))

	tree.AddAPIService(hub)
	tree.AddAPIService(httpServer)

	// Bridge stream messages published by other replicas into the local hub.
	bridgeSub, err := pipeline.NewStreamSubscriber(&cfg.NATS, wmLogger)
	if err != nil {
		return err
	}
	defer func() { _ = bridgeSub.Close() }()
	tree.AddAPIService(broadcast.NewBridge(bridgeSub, hub, store))

	logging.Info().Msg("Supervision tree starting")
	err = tree.Serve(ctx)
	if err != nil && ctx.Err() != nil {
		// Normal signal-driven shutdown.
		logging.Info().Msg("Radar stopped")
		return nil
	}
	return err
}
