package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/elonfeng/ledgerfeed/internal/store"
	"github.com/elonfeng/ledgerfeed/pkg/feed"
	"github.com/elonfeng/ledgerfeed/pkg/rank"
	"github.com/elonfeng/ledgerfeed/pkg/reputation"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReputationReader serves single reputation lookups.
type ReputationReader interface {
	Score(ctx context.Context, author feed.Address) int
	ViewerTier(ctx context.Context, viewer feed.Address) reputation.Tier
}

// Syncer pulls new posts from the ledger into the store.
type Syncer interface {
	SyncPosts(ctx context.Context) (*store.SyncRun, error)
}

// Server provides the HTTP API.
type Server struct {
	store  store.Store
	engine *rank.Engine
	reps   ReputationReader
	syncer Syncer
	port   int
	logger *slog.Logger
}

// New creates a new HTTP server. syncer may be nil, which disables
// POST /api/v1/sync.
func New(s store.Store, engine *rank.Engine, reps ReputationReader, syncer Syncer, port int, logger *slog.Logger) *Server {
	if port == 0 {
		port = 8080
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:  s,
		engine: engine,
		reps:   reps,
		syncer: syncer,
		port:   port,
		logger: logger.With("component", "server"),
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/feeds", s.handleVariants)
		r.Get("/feeds/{variant}", s.handleFeed)
		r.Get("/posts/{id}", s.handlePost)
		r.Get("/posts/{id}/explain", s.handleExplain)
		r.Get("/weights", s.handleGetWeights)
		r.Put("/weights", s.handlePutWeights)
		r.Get("/authors/{address}/reputation", s.handleReputation)
		r.Post("/sync", s.handleSync)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelDebug
		if status >= 500 {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if n, err := s.store.CountPosts(r.Context()); err == nil {
		resp["posts"] = n
	}
	if run, err := s.store.LastSyncRun(r.Context()); err == nil {
		resp["lastSync"] = run
	}
	writeJSON(w, http.StatusOK, resp)
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, rank.ErrUnknownVariant), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rank.ErrWeightsSum), errors.Is(err, rank.ErrNegativeWeight), errors.Is(err, feed.ErrInvalidAddress):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errorStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
