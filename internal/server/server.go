// Package server implements the Rollward HTTP status API.
package server

import (
	"context"
	"expvar"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rollward-systems/rollward/internal/backup"
	"github.com/rollward-systems/rollward/internal/status"
	"github.com/rollward-systems/rollward/internal/store"
	"github.com/rollward-systems/rollward/pkg/types"
)

// Submitter accepts rollback requests for asynchronous execution.
type Submitter interface {
	Submit(ctx context.Context, req types.RollbackRequest) (string, error)
}

// Server is the Rollward HTTP API server.
type Server struct {
	store      store.Store
	aggregator *status.Aggregator
	backups    *backup.Manager
	submitter  Submitter
	logger     *slog.Logger
	router     chi.Router
	addr       string
	srv        *http.Server
}

// New creates a new HTTP server. submitter may be nil when rollback submission
// over HTTP is disabled.
func New(cfg types.ServerConfig, st store.Store, agg *status.Aggregator, backups *backup.Manager, submitter Submitter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:      st,
		aggregator: agg,
		backups:    backups,
		submitter:  submitter,
		logger:     logger,
		addr:       cfg.Addr,
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(APIKeyMiddleware(cfg.APIKey))

	s.router = r
	s.registerRoutes(r)
	return s
}

// Handler exposes the router, primarily for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Get("/executions", s.handleListExecutions)
		r.Get("/executions/{executionID}", s.handleGetExecution)
		r.Get("/executions/{executionID}/events", s.handleExecutionEvents)

		r.Get("/events", s.handleListEvents)

		r.Get("/backups", s.handleListBackups)
		r.Get("/backups/{backupID}", s.handleGetBackup)

		r.Post("/rollbacks", s.handleSubmitRollback)
	})
	r.Handle("/debug/vars", expvar.Handler())
}

// Start begins serving HTTP requests. Blocks until the listener fails or the
// server is stopped.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("status server listening", "addr", s.addr)
	return s.srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
