// Package server provides the HTTP API for Greenhouse.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/climateintel/greenhouse/internal/answer"
	"github.com/climateintel/greenhouse/internal/config"
	"github.com/climateintel/greenhouse/internal/retrieval"
	"github.com/climateintel/greenhouse/internal/storage"
)

// Server is the HTTP server for the Greenhouse API.
type Server struct {
	answerer    *answer.Service
	coordinator *retrieval.Coordinator
	catalog     storage.Storage
	config      *config.ServerConfig
	uploadDir   string
	logger      *zap.Logger
	server      *http.Server
}

// NewServer creates a server with the given dependencies. uploadDir is where
// POST /upload stores raw files before ingestion.
func NewServer(
	answerer *answer.Service,
	coordinator *retrieval.Coordinator,
	catalog storage.Storage,
	cfg *config.ServerConfig,
	uploadDir string,
	logger *zap.Logger,
) *Server {
	return &Server{
		answerer:    answerer,
		coordinator: coordinator,
		catalog:     catalog,
		config:      cfg,
		uploadDir:   uploadDir,
		logger:      logger,
	}
}

// Router returns the configured chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/documents", s.handleListDocuments)
	r.Post("/query", s.handleQuery)
	r.Post("/upload", s.handleUpload)
	r.Post("/ingest", s.handleIngest)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
