// QBitStream - Multi-Server Streaming Backend for Jellyfin
// Copyright 2026 Servicios QBit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/serviciosqbit/qbitstream

// Package main is the entry point for the QBitStream server.
//
// QBitStream is a multi-tenant streaming backend that brokers access to
// a fleet of Jellyfin media servers. Its core job is routing each client
// to the best server for its network: CIDR-scoped fleet entries, live
// latency probing, and a cascade of fallbacks so clients always get a
// usable server.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered loading (defaults, YAML, env)
//  2. Database: DuckDB registry for the server fleet and ad inventory
//  3. Seed: reference fleet inserted on first boot
//  4. Engines: detection engine and ad engine over their stores
//  5. Supervisor tree: health-check scheduler + HTTP server under suture
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (SERVER_PORT, DETECTION_PING_TIMEOUT, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: the HTTP
// server drains in-flight requests, the health-check scheduler finishes
// its current pass, and the database is closed last.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/serviciosqbit/qbitstream/internal/ads"
	"github.com/serviciosqbit/qbitstream/internal/api"
	"github.com/serviciosqbit/qbitstream/internal/config"
	"github.com/serviciosqbit/qbitstream/internal/database"
	"github.com/serviciosqbit/qbitstream/internal/detection"
	"github.com/serviciosqbit/qbitstream/internal/healthcheck"
	"github.com/serviciosqbit/qbitstream/internal/logging"
	"github.com/serviciosqbit/qbitstream/internal/probe"
	"github.com/serviciosqbit/qbitstream/internal/supervisor"
	"github.com/serviciosqbit/qbitstream/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings.
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
		Str("db_path", cfg.Database.Path).
		Int("port", cfg.Server.Port).
		Dur("health_interval", cfg.Detection.HealthCheckInterval).
		Msg("Starting QBitStream")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database and stores.
	db, err := database.New(ctx, &cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	serverStore := database.NewServerStore(db)
	adStore := database.NewAdStore(db)

	// Seed the reference fleet on first boot so detection has something
	// to route to before any admin configuration.
	if cfg.Database.SeedFleet {
		if err := serverStore.SeedDefaultFleet(ctx); err != nil {
			logging.Fatal().Err(err).Msg("Failed to seed server fleet")
		}
	}

	// Engines.
	prober := probe.New(cfg.Detection.PingTimeout)
	engine := detection.NewEngine(serverStore, prober, cfg.Detection.LatencyThreshold)
	adEngine := ads.NewEngine(adStore)

	// HTTP surface.
	handler := api.NewHandler(engine, serverStore, adEngine, cfg.Ads.MidrollCount)
	mw := api.NewMiddleware(&api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.Security.CORSOrigins,
		CORSAllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		CORSMaxAge:         86400,
		RateLimitRequests:  cfg.Security.RateLimitReqs,
		RateLimitWindow:    cfg.Security.RateLimitWindow,
	})
	router := api.NewRouter(handler, mw, cfg.Ads.Enabled)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	// Supervisor tree: health-check scheduler in the background layer,
	// HTTP server in the api layer.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	scheduler := healthcheck.NewScheduler(engine, healthcheck.Config{
		Interval: cfg.Detection.HealthCheckInterval,
		Enabled:  cfg.Detection.HealthCheckEnabled,
	})
	tree.AddBackgroundService(services.NewHealthCheckService(scheduler))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// Signal handling.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain the error channel until the supervisor is fully stopped.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
