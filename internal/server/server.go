// Package server exposes the execution engine over HTTP: job execution,
// audit trail queries, cache administration, health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/agui/internal/engine"
	"github.com/haasonsaas/agui/internal/storage"
)

// maxBodyBytes bounds the execute payload.
const maxBodyBytes = 1 << 20

// Config tunes the HTTP server.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server is the HTTP front of the engine.
type Server struct {
	engine   *engine.Engine
	logger   *slog.Logger
	config   Config
	registry *prometheus.Registry
	http     *http.Server
}

// New builds the server and its routes. registry may be nil to skip the
// metrics endpoint.
func New(eng *engine.Engine, registry *prometheus.Registry, config Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{engine: eng, logger: logger, config: config, registry: registry}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /agent/execute", s.handleExecute)
	mux.HandleFunc("GET /agent/audit/{correlationId}", s.handleAuditTrail)
	mux.HandleFunc("GET /agent/cache/stats", s.handleCacheStats)
	mux.HandleFunc("DELETE /agent/cache/{userId}", s.handleCacheInvalidate)
	mux.HandleFunc("GET /agent/health", s.handleHealth)
	if registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	s.http = &http.Server{
		Addr:         config.Addr,
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.config.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	resp := s.engine.Run(r.Context(), body)
	rendered, err := s.engine.Serializer().ToHTTPResponse(resp)
	if err != nil {
		s.logger.Error("response rendering failed", "correlation_id", resp.CorrelationID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "response rendering failed")
		return
	}
	for name, value := range rendered.Headers {
		w.Header().Set(name, value)
	}
	w.WriteHeader(rendered.StatusCode)
	w.Write(rendered.Body)
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	correlationID := r.PathValue("correlationId")
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		s.writeError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	events, err := s.engine.Audit().Trail(r.Context(), correlationID, userID)
	if err != nil {
		s.logger.Error("audit trail query failed", "correlation_id", correlationID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "audit trail query failed")
		return
	}
	summary, err := s.engine.Audit().GetSummary(r.Context(), correlationID, userID)
	if err != nil {
		s.logger.Error("audit summary failed", "correlation_id", correlationID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "audit trail query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"correlationId": correlationID,
		"events":        events,
		"summary":       summary,
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		s.writeError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}
	stats, err := s.engine.Cache().Stats(r.Context(), userID)
	if err != nil {
		s.logger.Error("cache stats query failed", "user_id", userID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "cache stats query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	removed, err := s.engine.Cache().InvalidateUser(r.Context(), userID)
	if err != nil {
		s.logger.Error("cache invalidation failed", "user_id", userID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"userId": userID, "removed": removed})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{"cache": "ok", "database": "ok"}
	status := "ok"
	httpStatus := http.StatusOK
	if err := s.engine.Cache().HealthCheck(r.Context()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			components["cache"] = "ok"
		} else {
			components["cache"] = err.Error()
			components["database"] = err.Error()
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}
	}
	s.writeJSON(w, httpStatus, map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{"error": message})
}
