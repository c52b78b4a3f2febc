// Vigia de Dados - Real-time editorial radar for hard-news monitoring
// Copyright 2026 Vigia de Dados contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigiadados/radar

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/vigiadados/radar/internal/config"
)

// Router runs the staged pipeline over Watermill. Middleware order is
// Recoverer, then exponential-backoff Retry, then the poison queue for
// messages that exhaust their retries.
type Router struct {
	router *message.Router
}

// NewRouter builds the router and registers every stage handler.
func NewRouter(
	cfg *config.NATSConfig,
	publisher message.Publisher,
	subscriber message.Subscriber,
	handlers *Handlers,
	logger watermill.LoggerAdapter,
) (*Router, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	wmRouter.AddMiddleware(middleware.Recoverer)
	retry := middleware.Retry{
		MaxRetries:      cfg.RetryCount,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     time.Minute,
		Multiplier:      2.0,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retry.Middleware)

	if cfg.PoisonQueueTopic != "" {
		poison, err := middleware.PoisonQueue(publisher, cfg.PoisonQueueTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue: %w", err)
		}
		wmRouter.AddMiddleware(poison)
	}

	// One handler per fetch pool so each pool's subscriber queue drains
	// independently; a stalled render pool never delays fast-pool polls.
	for name, topic := range map[string]string{
		"fetch-fast":   TopicFetchFast,
		"fetch-render": TopicFetchRender,
		"fetch-deep":   TopicFetchDeep,
	} {
		wmRouter.AddHandler(name, topic, subscriber, TopicExtract, publisher, handlers.HandleFetch)
	}
	wmRouter.AddHandler("extract", TopicExtract, subscriber, TopicOrganize, publisher, handlers.HandleExtract)
	wmRouter.AddHandler("organize", TopicOrganize, subscriber, TopicScore, publisher, handlers.HandleOrganize)
	wmRouter.AddConsumerHandler("score", TopicScore, subscriber, handlers.HandleScore)

	return &Router{router: wmRouter}, nil
}

// Serve runs the router until the context is cancelled. Implements
// suture.Service.
func (r *Router) Serve(ctx context.Context) error {
	if err := r.router.Run(ctx); err != nil {
		return err
	}
	return ctx.Err()
}

func (r *Router) String() string { return "pipeline-router" }

// Running closes when all handlers are subscribed.
func (r *Router) Running() <-chan struct{} { return r.router.Running() }

// Close stops the router, waiting up to CloseTimeout for in-flight messages.
func (r *Router) Close() error { return r.router.Close() }
