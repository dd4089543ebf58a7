// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Nicort/edward/api"
	"github.com/Nicort/edward/feed"
	"github.com/Nicort/edward/partition"
	"github.com/Nicort/edward/store"
	"github.com/Nicort/edward/telemetry"
)

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runServeCommand assembles the engine, store, partitioner, and
// telemetry for one demo model and serves it until interrupted.
func runServeCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	model, engine, err := newDemoEngine(serveModel)
	if err != nil {
		return err
	}
	logger := cliLogger.Slog()

	shutdownTelemetry, err := telemetry.Init(ctx, loadedConfig.Telemetry.ToTelemetry())
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	traceStore, err := store.Open(loadedConfig.Store.ToStore())
	if err != nil {
		return fmt.Errorf("opening trace store: %w", err)
	}
	defer traceStore.Close()

	part := partition.New(engine.Graph())

	// Warm the partitioner from previously archived traces so the
	// report survives restarts.
	if n, err := traceStore.ObserveInto(ctx, model.Name, part); err != nil {
		logger.Warn("replaying archived traces failed", "model", model.Name, "error", err)
	} else if n > 0 {
		logger.Info("replayed archived traces", "model", model.Name, "count", n)
	}

	if loadedConfig.Feed.Path != "" {
		if loadedConfig.Feed.Model != "" && loadedConfig.Feed.Model != model.Name {
			logger.Warn("state feed configured for a different model, skipping",
				"feed_model", loadedConfig.Feed.Model,
				"served_model", model.Name,
			)
		} else {
			stateFeed, err := feed.New(loadedConfig.Feed.Path, engine.Graph(), &feed.Options{
				Logger:   logger,
				Debounce: loadedConfig.Feed.Debounce,
			})
			if err != nil {
				return fmt.Errorf("creating state feed: %w", err)
			}
			if err := stateFeed.Start(ctx); err != nil {
				return fmt.Errorf("starting state feed: %w", err)
			}
			defer stateFeed.Stop()
		}
	}

	if !serveDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	serverCfg := loadedConfig.Server
	if serveAddr != "" {
		serverCfg.Addr = serveAddr
	}

	server, err := api.New(serverCfg, engine,
		api.WithStore(traceStore),
		api.WithPartitioner(part),
		api.WithLogger(logger),
		api.WithMetricsHandler(telemetry.MetricsHandler()),
		api.WithDefaultDraws(loadedConfig.Engine.DefaultDraws),
	)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	logger.Info("Serving model",
		"model", model.Name,
		"addr", serverCfg.Addr,
		"session_id", engine.SessionID(),
	)
	return server.Run(ctx)
}
