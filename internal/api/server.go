// Package api exposes the manual refresh trigger, the refresh log and the
// per-document refresh settings over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"content_refresher/internal/auth"
	"content_refresher/internal/config"
	"content_refresher/internal/domain"
)

type Refresher interface {
	Refresh(ctx context.Context, documentID int64, trigger domain.TriggerKind) (*domain.RefreshOutcome, error)
	History(ctx context.Context, documentID int64, limit int) ([]domain.RefreshLogEntry, error)
}

type SettingsUpdater interface {
	Update(ctx context.Context, documentID int64, enabled bool, frequency string) (*domain.RefreshSchedule, error)
}

type Server struct {
	refresher Refresher
	settings  SettingsUpdater
	verifier  *auth.Verifier
	gatherer  prometheus.Gatherer
	config    config.HTTPConfig
	logger    *slog.Logger
	server    *http.Server
}

func NewServer(
	refresher Refresher,
	settings SettingsUpdater,
	verifier *auth.Verifier,
	gatherer prometheus.Gatherer,
	cfg config.HTTPConfig,
	logger *slog.Logger,
) *Server {
	return &Server{
		refresher: refresher,
		settings:  settings,
		verifier:  verifier,
		gatherer:  gatherer,
		config:    cfg,
		logger:    logger.With("component", "api"),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/documents/{id}", func(r chi.Router) {
		r.Use(middleware.Timeout(s.requestTimeout()))
		r.Use(s.authenticate)
		r.Use(s.requireEditor)

		r.Post("/refresh", s.handleRefresh)
		r.Get("/refresh-log", s.handleRefreshLog)
		r.Put("/refresh-settings", s.handleRefreshSettings)
	})

	return r
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
	}
	s.logger.Info("starting http server", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// requestTimeout leaves room to write the response before the server's
// write deadline.
func (s *Server) requestTimeout() time.Duration {
	if s.config.WriteTimeout <= 5*time.Second {
		return 60 * time.Second
	}
	return s.config.WriteTimeout - 5*time.Second
}
