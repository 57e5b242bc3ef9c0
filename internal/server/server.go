// Package server provides the HTTP API for Gazou.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/gazou/internal/config"
	"github.com/hyperjump/gazou/internal/retrieval"
)

// WatchService is the subset of the watcher the API exposes.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the Gazou API.
type Server struct {
	system *retrieval.System
	config *config.Config
	logger *zap.Logger
	watch  WatchService
	server *http.Server
}

// NewServer creates a server over the retrieval system. watch may be nil when
// directory watching is disabled.
func NewServer(system *retrieval.System, cfg *config.Config, logger *zap.Logger, watch WatchService) *Server {
	return &Server{
		system: system,
		config: cfg,
		logger: logger,
		watch:  watch,
	}
}

func (s *Server) router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/search/image", s.handleSearchByImage)
	r.Post("/api/v1/images", s.handleIngest)
	r.Get("/api/v1/images/random", s.handleRandomImages)
	r.Get("/api/v1/stats", s.handleStats)
	r.Get("/api/v1/watch/directories", s.handleWatchDirectoriesList)
	r.Post("/api/v1/watch/directories", s.handleWatchDirectoriesAdd)
	r.Delete("/api/v1/watch/directories", s.handleWatchDirectoriesRemove)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router(),
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
