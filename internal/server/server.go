// Package server provides the HTTP API for vecstore.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/vecstore/internal/catalog"
	"github.com/hyperjump/vecstore/internal/config"
)

// Server is the HTTP server for the vecstore API. It starts answering before the catalog
// is loaded; until SetCatalog is called, /index and /query respond 503.
type Server struct {
	catalog    atomic.Pointer[catalog.Catalog]
	config     *config.ServerConfig
	modelName  string
	dimensions int
	logger     *zap.Logger
	server     *http.Server
}

// NewServer creates a server. modelName and dimensions are reported by /status until the
// catalog is ready.
func NewServer(cfg *config.ServerConfig, modelName string, dimensions int, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		config:     cfg,
		modelName:  modelName,
		dimensions: dimensions,
		logger:     logger,
	}
}

// SetCatalog publishes a fully loaded catalog to the handlers.
func (s *Server) SetCatalog(c *catalog.Catalog) {
	s.catalog.Store(c)
}

// Handler returns the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/index", s.handleIndex)
	r.Post("/query", s.handleQuery)
	r.Get("/status", s.handleStatus)
	r.Get("/documents/{position}", s.handleGetDocument)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
