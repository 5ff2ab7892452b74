// Package server exposes the scorer and the application pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spigell/job-agent/internal/logger"
	"github.com/spigell/job-agent/internal/metrics"
	"github.com/spigell/job-agent/internal/pipeline"
	"github.com/spigell/job-agent/internal/profile"
)

const (
	maxBodySize     = 1 << 20
	shutdownTimeout = 15 * time.Second
	docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// ProfileParser structures pasted resume or LinkedIn text into a profile.
type ProfileParser interface {
	Parse(ctx context.Context, text string) (*profile.Profile, error)
}

// Config holds the dependencies of a Server.
type Config struct {
	Addr   string
	Stages []pipeline.Stage
	Parser ProfileParser

	Profile *profile.Profile
	// ProfilePath receives imported profiles. Empty keeps imports in memory.
	ProfilePath string
	OutputDir   string

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// Server serves the HTTP API.
type Server struct {
	cfg    Config
	logger *zap.Logger
	router chi.Router

	mu      sync.RWMutex
	profile *profile.Profile
}

// New builds the router. The profile may be nil until one is imported.
func New(cfg Config, l *zap.Logger) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger.Component(l, "server"),
		profile: cfg.Profile,
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(recoverer(s.logger))
	r.Use(requestLog(s.logger))
	r.Use(cfg.Metrics.Middleware())

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/score", s.score)
		r.Post("/apply", s.apply)
		r.Get("/download/{name}", s.download)
		r.Get("/stages", s.stages)
		r.Get("/profile", s.currentProfile)
		r.Post("/profile/import", s.importProfile)
	})

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("received shutdown signal")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped gracefully")
	return <-errCh
}

func (s *Server) currentMaster() *profile.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

func (s *Server) setMaster(p *profile.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = p
}
