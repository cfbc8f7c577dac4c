// Meetfield - Meetup Matchmaking Lifecycle and Notification Engine
// Copyright 2026 Meetfield Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meetfield/meetfield

// Package main is the entry point for the Meetfield server.
//
// Meetfield runs the backend of a meetup matchmaking marketplace:
// meetup post lifecycle transitions, a NATS JetStream change feed that
// keeps client views live, notification filtering and dispatch, Web
// Push delivery, and retention sweeps.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered config (defaults, file, env)
//  2. Store: SQLite with the change hook feeding the publisher
//  3. NATS: embedded JetStream server (default) or external broker
//  4. Change feed: stream provisioning, publisher, durable subscriber
//  5. Notification pipeline: filter engine, push adapter, dispatcher
//  6. Scheduler registry: lifecycle, reminder, and retention jobs
//  7. WebSocket hub and feed bridge for browser clients
//  8. HTTP server: fetch endpoints, receipts, push subscriptions
//
// Everything runs under a suture supervisor tree; SIGINT/SIGTERM
// cancels the root context for a graceful stop.
//
// # Configuration
//
// Environment variables override the optional YAML config file, which
// overrides built-in defaults. See config.Load for the mapping; the
// most common settings:
//
//	export HTTP_PORT=8380
//	export DATABASE_PATH=/data/meetfield.db
//	export PUSH_ENABLED=true
//	export VAPID_PUBLIC_KEY=...
//	export VAPID_PRIVATE_KEY=...
//	./meetfield
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meetfield/meetfield/internal/api"
	"github.com/meetfield/meetfield/internal/changefeed"
	"github.com/meetfield/meetfield/internal/config"
	"github.com/meetfield/meetfield/internal/logging"
	"github.com/meetfield/meetfield/internal/notify"
	"github.com/meetfield/meetfield/internal/push"
	"github.com/meetfield/meetfield/internal/reconcile"
	"github.com/meetfield/meetfield/internal/scheduler"
	"github.com/meetfield/meetfield/internal/store"
	"github.com/meetfield/meetfield/internal/supervisor"
	ws "github.com/meetfield/meetfield/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("embedded_nats", cfg.NATS.EmbeddedServer).
		Bool("push_enabled", cfg.Push.Enabled).
		Msg("Starting Meetfield")

	st, err := store.New(cfg.Database.Path, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	// NATS: embedded by default, external when configured.
	natsURL := cfg.NATS.URL
	if cfg.NATS.EmbeddedServer {
		natsServer, err := changefeed.NewEmbeddedServer(changefeed.ServerConfig{
			StoreDir:  cfg.NATS.StoreDir,
			MaxMemory: cfg.NATS.MaxMemory,
			MaxStore:  cfg.NATS.MaxStore,
		})
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
		}
		natsURL = natsServer.ClientURL()
		tree.AddTransportService(supervisor.NATSService{Server: natsServer})
		logging.Info().Str("url", natsURL).Msg("Embedded NATS server running")
	}

	streamInit, err := changefeed.NewStreamInitializer(natsURL, changefeed.StreamConfig{
		Name:            cfg.NATS.StreamName,
		MaxAge:          time.Duration(cfg.NATS.StreamRetentionDays) * 24 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	if _, err := streamInit.EnsureStream(context.Background()); err != nil {
		logging.Fatal().Err(err).Msg("Failed to provision change stream")
	}

	wmLogger := changefeed.NewWatermillLogger(logger)
	publisher, err := changefeed.NewNATSPublisher(changefeed.PublisherConfig{
		URL:           natsURL,
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
	}, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create change publisher")
	}
	defer publisher.Close()
	st.SetChangeHook(publisher.Hook())

	subscriber, err := changefeed.NewNATSSubscriber(changefeed.SubscriberConfig{
		URL:              natsURL,
		StreamName:       cfg.NATS.StreamName,
		DurableName:      cfg.NATS.DurableName,
		QueueGroup:       cfg.NATS.QueueGroup,
		SubscribersCount: cfg.NATS.SubscribersCount,
		MaxReconnects:    cfg.NATS.MaxReconnects,
		ReconnectWait:    cfg.NATS.ReconnectWait,
	}, wmLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create change subscriber")
	}

	feed := changefeed.NewFeed(subscriber, logger)
	tree.AddTransportService(supervisor.FeedService{Feed: feed})

	// Notification pipeline.
	filter := notify.NewFilterEngine(st, logger)
	var pushSender notify.PushSender
	if cfg.Push.Enabled {
		transport := push.NewWebPushTransport(cfg.Push.Subscriber, cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey)
		pushSender = push.NewAdapter(st, transport, push.AdapterConfig{
			TTL:           cfg.Push.TTL,
			RatePerSecond: cfg.Push.RatePerSecond,
			Burst:         cfg.Push.Burst,
		}, logger)
	}
	dispatcher := notify.NewDispatcher(st, filter, pushSender, notify.DispatcherConfig{
		FanoutWorkers:   cfg.Notify.FanoutWorkers,
		DispatchTimeout: cfg.Notify.DispatchTimeout,
	}, logger)

	// Scheduler jobs.
	registry := scheduler.NewRegistry(tree.JobSupervisor(), logger)
	registry.Register(scheduler.NewLifecycleJob(st, cfg.Scheduler.LifecycleInterval, cfg.Scheduler.CompletionCutoff, logger))
	registry.Register(scheduler.NewReminderJob(st, dispatcher, cfg.Scheduler.ReminderInterval, logger))
	registry.Register(scheduler.NewRetentionJob(st, scheduler.RetentionConfig{
		Interval:       cfg.Retention.Interval,
		StandardMaxAge: cfg.Retention.StandardMaxAge,
		UrgentMaxAge:   cfg.Retention.UrgentMaxAge,
		FailedMaxAge:   cfg.Retention.FailedMaxAge,
	}, logger))
	if err := registry.StartAll(); err != nil {
		logging.Fatal().Err(err).Msg("Failed to start scheduler jobs")
	}

	// Browser push channel.
	hub := ws.NewHub()
	tree.AddTransportService(hub)
	tree.AddTransportService(ws.NewBridge(feed, hub, logger))
	dispatcher.SetBroadcaster(hub)

	// Server-maintained client views, tuned from the feed config.
	views := reconcile.NewFactory(feed, reconcile.NewStoreFetcher(st), reconcile.Config{
		ListDebounce:       cfg.Feed.ListDebounce,
		ListPollInterval:   cfg.Feed.ListPollInterval,
		DetailDebounce:     cfg.Feed.DetailDebounce,
		DetailPollInterval: cfg.Feed.DetailPollInterval,
		AuxPollInterval:    cfg.Feed.AuxPollInterval,
		ParentIndexSize:    cfg.Feed.ParentIndexSize,
		ParentIndexTTL:     cfg.Feed.ParentIndexTTL,
	}, logger)

	// HTTP surface.
	handler := api.NewHandler(st, feed, hub, views, cfg)
	httpServer := api.NewServer(cfg.Server, api.NewRouter(handler), logger)
	tree.AddAPIService(httpServer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Fatal().Err(err).Msg("Supervisor tree failed")
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}
	logging.Info().Msg("Meetfield stopped")
}
