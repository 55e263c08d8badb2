// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

// Command server runs the Castellan threat-intelligence synchronization
// server: the HTTP API, the background sync scheduler, and the DuckDB
// storage layer, all under a suture supervision tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/castellan-io/castellan/internal/api"
	"github.com/castellan-io/castellan/internal/config"
	"github.com/castellan-io/castellan/internal/convert"
	"github.com/castellan-io/castellan/internal/database"
	"github.com/castellan-io/castellan/internal/feed"
	"github.com/castellan-io/castellan/internal/logging"
	"github.com/castellan-io/castellan/internal/supervisor"
	syncengine "github.com/castellan-io/castellan/internal/sync"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).Msg("Starting Castellan")

	encryptor, err := config.NewCredentialEncryptor(cfg.Security.EncryptionSecret)
	if err != nil {
		return fmt.Errorf("failed to initialize credential encryption: %w", err)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close database")
		}
	}()

	clientFactory := func(fc feed.Config, serverName string) feed.Fetcher {
		fc.Timeout = cfg.Sync.FetchTimeout
		fc.RequestsPerSecond = cfg.Sync.RequestsPerSecond
		fc.MaxRetries = cfg.Sync.RetryAttempts
		fc.RetryDelay = cfg.Sync.RetryDelay
		return feed.NewCircuitBreakerClient(feed.NewClient(fc), serverName)
	}

	syncDefaults := syncengine.Options{
		DaysBack:  cfg.Sync.DaysBack,
		MaxEvents: cfg.Sync.MaxEvents,
	}
	orchestrator := syncengine.NewOrchestrator(db, encryptor, clientFactory, cfg.Sync.FetchTimeout)
	scheduler := syncengine.NewScheduler(db, orchestrator, syncDefaults)
	engine := convert.NewEngine(db)

	handler := api.NewHandler(db, orchestrator, scheduler, engine, encryptor, syncDefaults)
	router := api.NewRouter(handler, &cfg.Security)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	tree.AddSyncService(syncengine.NewService(scheduler, cfg.Sync.SchedulerInterval))
	tree.AddAPIService(supervisor.NewHTTPService(httpServer, cfg.Server.Timeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logging.Info().Msg("Castellan stopped")
	return nil
}
