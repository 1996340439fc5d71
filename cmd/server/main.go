// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

// Package main is the entry point for the Geotrace server.
//
// Geotrace tracks the latest position of every connected GPS client in a
// Redis cache and periodically syncs a batch of changed positions into a
// DuckDB durable store. The server initializes components in order:
//
//  1. Configuration: Koanf v2 layered sources (ENV > config.yaml > defaults)
//  2. Redis pool and location cache store
//  3. DuckDB durable store
//  4. Event bus, WebSocket hub and broadcast relay
//  5. Sync coordinator, lease guard and scheduler
//  6. HTTP server with the REST API and WebSocket endpoint
//
// Long running components run under a suture supervisor tree and restart
// independently on failure. SIGINT and SIGTERM trigger graceful shutdown:
// the HTTP server drains in-flight requests, WebSocket clients are closed,
// and the database is checkpointed.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/geotraceapp/geotrace/internal/api"
	"github.com/geotraceapp/geotrace/internal/audit"
	"github.com/geotraceapp/geotrace/internal/auth"
	"github.com/geotraceapp/geotrace/internal/cache"
	"github.com/geotraceapp/geotrace/internal/config"
	"github.com/geotraceapp/geotrace/internal/database"
	"github.com/geotraceapp/geotrace/internal/events"
	"github.com/geotraceapp/geotrace/internal/logging"
	"github.com/geotraceapp/geotrace/internal/supervisor"
	"github.com/geotraceapp/geotrace/internal/sync"
	ws "github.com/geotraceapp/geotrace/internal/websocket"
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
		Str("redis_addr", cfg.Redis.Addr).
		Str("db_path", cfg.Database.Path).
		Dur("location_ttl", cfg.GPS.LocationTTL).
		Dur("sync_interval", cfg.GPS.SyncInterval).
		Msg("Starting Geotrace")

	pool := cache.NewPool(cfg.Redis)
	defer func() {
		if err := pool.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing Redis pool")
		}
	}()
	store := cache.NewStore(pool, cfg.GPS.LocationTTL)

	if err := store.Ping(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("Redis not reachable at startup (will retry per request)")
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}

	bus := events.NewBus(cfg.GPS.BroadcastEnabled)
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	hub := ws.NewHub()
	relay := events.NewRelay(bus, hub, cfg.GPS.BroadcastPerSecond)

	guard := sync.NewLeaseGuard(pool, cfg.GPS.SyncInterval)
	coordinator := sync.NewCoordinator(store, db, guard, cfg.GPS.MaxBatchSize)
	scheduler := sync.NewScheduler(coordinator, cfg.GPS)
	scheduler.SetNotifier(hub)

	auditStore, err := audit.NewDuckDBStore(db.Conn())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize audit store")
	}
	auditor := audit.NewRecorder(auditStore, 1000)

	handler := api.NewHandler(cfg, store, db, bus, hub, jwtManager, auditor)
	router := api.NewRouter(handler, auth.NewMiddleware(jwtManager))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	tree.AddTrackingService(hub)
	if cfg.GPS.BroadcastEnabled {
		tree.AddTrackingService(relay)
	}
	tree.AddTrackingService(scheduler)
	tree.AddTrackingService(auditor)
	tree.AddAPIService(supervisor.NewHTTPServerService(server, supervisor.DefaultTreeConfig().ShutdownTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Geotrace stopped gracefully")
}
