// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes a running engine over HTTP for debugging and
// operations: model export, trace realization, sampling, and the
// empirical edge partition.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Nicort/edward/config"
	"github.com/Nicort/edward/exec"
	"github.com/Nicort/edward/partition"
	"github.com/Nicort/edward/store"
)

// ErrNilContext indicates a nil context passed to Run.
var ErrNilContext = errors.New("nil context")

// defaultShutdownTimeout bounds graceful shutdown when the config
// leaves it unset.
const defaultShutdownTimeout = 10 * time.Second

// Server hosts the model debug surface over HTTP.
//
// Thread Safety: Run may be called once; the handlers it serves are
// safe for concurrent requests.
type Server struct {
	cfg      config.ServerConfig
	engine   *exec.Engine
	handlers *Handlers
	logger   *slog.Logger
	metrics  http.Handler

	mu  sync.Mutex
	srv *http.Server
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithStore attaches a trace store, enabling archive-on-realize.
func WithStore(s *store.TraceStore) Option {
	return func(srv *Server) {
		srv.handlers.WithStore(s)
	}
}

// WithPartitioner attaches a partitioner fed by every realized trace.
func WithPartitioner(p *partition.Partitioner) Option {
	return func(srv *Server) {
		srv.handlers.WithPartitioner(p)
	}
}

// WithLogger sets the server logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(srv *Server) {
		if logger != nil {
			srv.logger = logger
		}
	}
}

// WithMetricsHandler exposes the given handler at /metrics, typically
// telemetry.MetricsHandler() when the prometheus exporter is active.
func WithMetricsHandler(m http.Handler) Option {
	return func(srv *Server) {
		srv.metrics = m
	}
}

// WithDefaultDraws sets the draw count /v1/sample uses when the
// request omits one.
func WithDefaultDraws(n int) Option {
	return func(srv *Server) {
		srv.handlers.WithDefaultDraws(n)
	}
}

// New builds a server around a frozen model's engine.
//
// Inputs:
//
//	cfg - Listener address and timeouts.
//	engine - The realization engine to serve. Required.
//	opts - Optional collaborators.
//
// Outputs:
//
//	*Server - The configured server.
//	error - Non-nil if the engine is missing.
func New(cfg config.ServerConfig, engine *exec.Engine, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	s := &Server{
		cfg:      cfg,
		engine:   engine,
		handlers: NewHandlers(engine),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Router builds the gin engine with recovery, otel instrumentation,
// and all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("edward-api"))

	RegisterRoutes(&router.RouterGroup, s.handlers)

	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics))
	}
	return router
}

// Run starts the listener and blocks until the context is cancelled
// or the listener fails. Cancellation triggers graceful shutdown
// bounded by the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}

	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening",
			"addr", s.cfg.Addr,
			"model", s.engine.Graph().Name(),
			"session", s.engine.SessionID(),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
		}
		return nil
	case <-ctx.Done():
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		s.logger.Info("api server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		<-errCh
		return nil
	}
}

// Shutdown stops the listener outside of Run's own lifecycle, for
// tests and embedders that manage the listener themselves.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
