// Package handler wires the gateway's inbound HTTP endpoints to the dispatch,
// batch, and registry services. It is a thin layer: envelopes from the
// dispatch path pass through unchanged, and only faults in the gateway's own
// surface become HTTP error statuses.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"interop-gateway/internal/gateway/cache"
	"interop-gateway/internal/gateway/health"
	"interop-gateway/internal/gateway/models"
	"interop-gateway/internal/gateway/registry"
	"interop-gateway/internal/gateway/retry"
	dErrors "interop-gateway/pkg/domain-errors"
	"interop-gateway/pkg/platform/httputil"
	"interop-gateway/pkg/platform/sentinel"
	"interop-gateway/pkg/requestcontext"
)

// Dispatcher is the resilient single-request entry point.
type Dispatcher interface {
	DispatchWithRetry(ctx context.Context, req *models.Request) (*models.Response, error)
	PolicyFor(systemCode string) retry.Policy
}

// Batcher fans a keyed set of requests out concurrently.
type Batcher interface {
	DispatchBatch(ctx context.Context, requests map[string]*models.Request) map[string]*models.Response
}

// HealthChecker probes a partner's health endpoint.
type HealthChecker interface {
	CheckHealth(ctx context.Context, systemCode string) (*models.Response, error)
}

// Handler serves the gateway API.
type Handler struct {
	dispatcher Dispatcher
	batcher    Batcher
	checker    HealthChecker
	registry   *registry.Service
	tracker    *health.Tracker
	cache      cache.ResponseCache
	logger     *slog.Logger
}

// New constructs the handler with its dependencies.
func New(
	dispatcher Dispatcher,
	batcher Batcher,
	checker HealthChecker,
	reg *registry.Service,
	tracker *health.Tracker,
	respCache cache.ResponseCache,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		dispatcher: dispatcher,
		batcher:    batcher,
		checker:    checker,
		registry:   reg,
		tracker:    tracker,
		cache:      respCache,
		logger:     logger,
	}
}

// Register mounts the gateway endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/gateway/route", h.HandleRoute)
	r.Post("/gateway/batch", h.HandleBatch)
	r.Get("/gateway/systems", h.HandleListSystems)
	r.Get("/gateway/systems/{systemCode}/health", h.HandleSystemHealth)
	r.Get("/gateway/systems/{systemCode}/statistics", h.HandleSystemStatistics)
	r.Delete("/gateway/cache", h.HandleInvalidateAll)
	r.Delete("/gateway/cache/{systemCode}", h.HandleInvalidateSystem)
}

// HandleRoute handles POST /gateway/route.
func (h *Handler) HandleRoute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req RouteRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	requestID, correlationID, userID := identityFrom(r)
	resp, err := h.dispatcher.DispatchWithRetry(ctx, req.ToModel(requestID, correlationID, userID))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "route handled",
		"request_id", requestID,
		"system_code", req.SystemCode,
		"endpoint", req.Endpoint,
		"success", resp.Success,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleBatch handles POST /gateway/batch.
func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	var req BatchRequest
	if err := httputil.Decode(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if len(req.Requests) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "requests must not be empty"))
		return
	}

	requestID, correlationID, userID := identityFrom(r)
	domainReqs := make(map[string]*models.Request, len(req.Requests))
	for key, entry := range req.Requests {
		if err := entry.Validate(); err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "entry "+key+" is invalid"))
			return
		}
		domainReqs[key] = entry.ToModel(requestID, correlationID, userID)
	}

	results := h.batcher.DispatchBatch(ctx, domainReqs)

	h.logger.InfoContext(ctx, "batch handled",
		"request_id", requestID,
		"entries", len(results),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

// HandleListSystems handles GET /gateway/systems.
func (h *Handler) HandleListSystems(w http.ResponseWriter, r *http.Request) {
	systems, err := h.registry.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "could not list systems", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "could not list systems"))
		return
	}

	summaries := make([]SystemSummary, 0, len(systems))
	for _, sys := range systems {
		summaries = append(summaries, summaryFrom(sys))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"systems": summaries})
}

// HandleSystemHealth handles GET /gateway/systems/{systemCode}/health.
// ?probe=true dispatches a live health check first; ?detailed=true includes
// the resolved retry policy.
func (h *Handler) HandleSystemHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	systemCode := chi.URLParam(r, "systemCode")

	if r.URL.Query().Get("probe") == "true" {
		if _, err := h.checker.CheckHealth(ctx, systemCode); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	cfg, ok := h.lookup(ctx, w, systemCode)
	if !ok {
		return
	}

	resp := healthFrom(cfg, h.tracker.Snapshot(systemCode))
	if r.URL.Query().Get("detailed") == "true" {
		policy := h.dispatcher.PolicyFor(systemCode)
		resp.RetryPolicy = &policy
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleSystemStatistics handles GET /gateway/systems/{systemCode}/statistics.
func (h *Handler) HandleSystemStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	systemCode := chi.URLParam(r, "systemCode")

	cfg, ok := h.lookup(ctx, w, systemCode)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statisticsFrom(cfg, h.tracker.Snapshot(systemCode)))
}

// HandleInvalidateAll handles DELETE /gateway/cache.
func (h *Handler) HandleInvalidateAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.cache.InvalidateAll(ctx); err != nil {
		h.logger.ErrorContext(ctx, "cache invalidation failed", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "cache invalidation failed"))
		return
	}
	h.logger.InfoContext(ctx, "response cache cleared",
		"request_id", requestcontext.RequestID(ctx))
	w.WriteHeader(http.StatusNoContent)
}

// HandleInvalidateSystem handles DELETE /gateway/cache/{systemCode}.
func (h *Handler) HandleInvalidateSystem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	systemCode := chi.URLParam(r, "systemCode")

	if err := h.cache.Invalidate(ctx, systemCode); err != nil {
		h.logger.ErrorContext(ctx, "cache invalidation failed",
			"system_code", systemCode, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "cache invalidation failed"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// lookup resolves a system or writes the error response itself.
func (h *Handler) lookup(ctx context.Context, w http.ResponseWriter, systemCode string) (*models.SystemConfig, bool) {
	cfg, err := h.registry.Lookup(ctx, systemCode)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "system not registered: "+systemCode))
			return nil, false
		}
		h.logger.ErrorContext(ctx, "registry lookup failed",
			"system_code", systemCode, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "registry unavailable"))
		return nil, false
	}
	return cfg, true
}
