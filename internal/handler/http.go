package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readyTimeout = 2 * time.Second

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Rebuilder rebuilds the max index on demand
type Rebuilder interface {
	RunOnce(ctx context.Context) error
}

// Handler serves the operational endpoints
type Handler struct {
	checks    map[string]Pinger
	gatherer  prometheus.Gatherer
	rebuilder Rebuilder
	logger    *slog.Logger
}

// NewHandler creates a new HTTP handler. rebuilder may be nil.
func NewHandler(checks map[string]Pinger, gatherer prometheus.Gatherer, rebuilder Rebuilder, logger *slog.Logger) *Handler {
	return &Handler{
		checks:    checks,
		gatherer:  gatherer,
		rebuilder: rebuilder,
		logger:    logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Logger)
		r.Post("/max-index/rebuild", h.RebuildMaxIndex)
	})

	return r
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck pings every dependency and reports the ones that failed
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := make(map[string]string, len(names))
	ready := true
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", "dependency", name, "error", err)
			status[name] = err.Error()
			ready = false
			continue
		}
		status[name] = "ok"
	}

	if !ready {
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Data:    status,
			Error:   "not ready",
		})
		return
	}
	h.writeSuccess(w, status)
}

// RebuildMaxIndex runs a max index rebuild synchronously
func (h *Handler) RebuildMaxIndex(w http.ResponseWriter, r *http.Request) {
	if h.rebuilder == nil {
		h.writeError(w, http.StatusNotFound, errors.New("max index is disabled"))
		return
	}
	if err := h.rebuilder.RunOnce(r.Context()); err != nil {
		h.logger.Error("manual max index rebuild failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "rebuilt"})
}
