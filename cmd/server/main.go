// Tagsight - RFID Tag Read Ingestion and Live Analytics
// Copyright 2026 Tagsight Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tagsight/tagsight

// Package main is the entry point for the Tagsight server.
//
// Tagsight ingests RFID tag reads published by fixed readers over MQTT,
// normalizes the varied reader payload shapes into one canonical record,
// persists them to DuckDB and serves live and historical views: a
// WebSocket feed for dashboards plus a REST API for read history, unique
// tags and trend rollups.
//
// The server initializes in this order:
//
//  1. Configuration: Koanf v2 layered loading (defaults, YAML file,
//     TAGSIGHT_* environment variables)
//  2. Database: DuckDB store for the read log and runtime settings
//  3. WebSocket hub: live fan-out to connected viewers
//  4. Broker manager: MQTT session with bounded reconnect
//  5. Ingest pipeline: normalize -> persist -> broadcast
//  6. Supervision: suture tree with data, messaging and api layers
//
// Graceful shutdown on SIGINT/SIGTERM: the broker session disconnects
// cleanly, viewers are closed and in-flight HTTP requests drain.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tagsight/tagsight/internal/aggregate"
	"github.com/tagsight/tagsight/internal/api"
	"github.com/tagsight/tagsight/internal/broker"
	"github.com/tagsight/tagsight/internal/cache"
	"github.com/tagsight/tagsight/internal/config"
	"github.com/tagsight/tagsight/internal/database"
	"github.com/tagsight/tagsight/internal/ingest"
	"github.com/tagsight/tagsight/internal/logging"
	"github.com/tagsight/tagsight/internal/models"
	"github.com/tagsight/tagsight/internal/supervisor"
	"github.com/tagsight/tagsight/internal/websocket"
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

	logging.Info().
		Str("broker_url", cfg.Broker.URL).
		Strs("topics", cfg.Broker.Topics).
		Str("db_path", cfg.Database.Path).
		Msg("Starting Tagsight")

	db, err := database.New(database.Config{
		Path:      cfg.Database.Path,
		MaxMemory: cfg.Database.MaxMemory,
		Threads:   cfg.Database.Threads,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	settings := cache.NewSettings(db, cache.Defaults{
		RetentionDays: cfg.Settings.RetentionDays,
		DedupeWindow:  time.Duration(cfg.Settings.DedupeWindowMinutes) * time.Minute,
	})

	hub := websocket.NewHub()

	manager := broker.NewManager(broker.Config{
		URL:                   cfg.Broker.URL,
		ClientID:              cfg.Broker.ClientID,
		Username:              cfg.Broker.Username,
		Password:              cfg.Broker.Password,
		Topics:                cfg.Broker.Topics,
		QoS:                   cfg.Broker.QoS,
		ConnectTimeout:        cfg.Broker.ConnectTimeout,
		MaxReconnectAttempts:  cfg.Broker.MaxReconnectAttempts,
		ReconnectInitialDelay: cfg.Broker.ReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.Broker.ReconnectMaxDelay,
		MessageBuffer:         cfg.Broker.MessageBuffer,
	})
	// Every session transition reaches the dashboards immediately.
	manager.OnStatusChange(func(ev models.StatusEvent) {
		hub.BroadcastConnectionStatus(ev)
	})

	ingestSvc := ingest.New(ingest.Config{
		BreakerFailureThreshold: cfg.Ingest.BreakerFailureThreshold,
		BreakerTimeout:          cfg.Ingest.BreakerTimeout,
	}, manager, db, hub)

	refresher := aggregate.NewRefresher(db, hub, cfg.Aggregation.RefreshInterval)
	janitor := database.NewJanitor(db, settings, 24*time.Hour)

	handler := api.NewHandler(db, hub, manager, settings)
	router := api.NewRouter(api.RouterConfig{
		CORSOrigins:     cfg.Server.CORSOrigins,
		RateLimitReqs:   cfg.Server.RateLimitReqs,
		RateLimitWindow: cfg.Server.RateLimitWindow,
		DailyDays:       cfg.Aggregation.DailyDays,
		HourlyHours:     cfg.Aggregation.HourlyHours,
		WeeklyWeeks:     cfg.Aggregation.WeeklyWeeks,
	}, handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := supervisor.NewHTTPServer(addr, router.Setup(), cfg.Server.Timeout, 10*time.Second)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{})
	tree.AddDataService(janitor)
	tree.AddMessagingService(hub)
	tree.AddMessagingService(manager)
	tree.AddMessagingService(ingestSvc)
	tree.AddMessagingService(refresher)
	tree.AddAPIService(httpServer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	// ServeBackground delivers exactly one result and never closes the
	// channel, so a single receive is the whole wait.
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Tagsight stopped")
}
