package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/neows-archiver/internal/config"
	"github.com/JakeFAU/neows-archiver/internal/metrics"
	"github.com/JakeFAU/neows-archiver/internal/neo"
)

const (
	defaultRequestTimeout = 60 * time.Second
	readyTimeout          = 2 * time.Second
)

// Provider is the upstream surface beyond plain detail lookups.
type Provider interface {
	LookupRaw(ctx context.Context, id string) (json.RawMessage, error)
	HazardousInWindow(ctx context.Context, start, end string) ([]neo.NormalizedRecord, error)
}

// Deps are the collaborators behind the routes. Lookuper may be a cache in
// front of Provider.
type Deps struct {
	Lookuper neo.Lookuper
	Provider Provider
	Archive  neo.Archive
	Logger   *zap.Logger
}

// Server wires HTTP handlers to the provider client and the archive.
type Server struct {
	router   chi.Router
	lookuper neo.Lookuper
	provider Provider
	archive  neo.Archive
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config) (*Server, error) {
	if deps.Lookuper == nil || deps.Provider == nil || deps.Archive == nil {
		return nil, errors.New("api server needs a lookuper, a provider, and an archive")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	s := &Server{
		lookuper: deps.Lookuper,
		provider: deps.Provider,
		archive:  deps.Archive,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/neo/{id}", s.getNEO)
		r.Get("/feed", s.getFeed)
		r.Route("/archive", func(r chi.Router) {
			r.Get("/stats", s.archiveStats)
			r.Get("/{id}", s.getArchived)
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.archive.Ping(ctx); err != nil {
		s.logger.Warn("archive not ready", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "archive unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		zap.L().Warn("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
