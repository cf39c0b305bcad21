// Package dispatcher is the gateway core: it resolves partner configuration,
// applies the rate gate and response cache, performs the outbound HTTP call,
// and folds the outcome back into registry statistics.
package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"interop-gateway/internal/gateway/audit"
	"interop-gateway/internal/gateway/cache"
	"interop-gateway/internal/gateway/headers"
	"interop-gateway/internal/gateway/metrics"
	"interop-gateway/internal/gateway/models"
	"interop-gateway/internal/gateway/ratelimit"
	"interop-gateway/internal/gateway/registry"
	dErrors "interop-gateway/pkg/domain-errors"
	"interop-gateway/pkg/platform/sentinel"
)

const tracerName = "interop-gateway/dispatcher"

// maxResponseBody caps how much of a partner response is buffered.
const maxResponseBody = 10 << 20

type Dispatcher struct {
	registry *registry.Service
	limiter  *ratelimit.Limiter
	cache    cache.ResponseCache
	headers  *headers.Builder
	client   *http.Client
	logger   *slog.Logger
	metrics  *metrics.Metrics
	audit    *audit.Publisher
	tracer   trace.Tracer
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithAuditPublisher(p *audit.Publisher) Option {
	return func(d *Dispatcher) {
		d.audit = p
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		d.client = client
	}
}

func New(reg *registry.Service, limiter *ratelimit.Limiter, respCache cache.ResponseCache, builder *headers.Builder, opts ...Option) (*Dispatcher, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry service is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if respCache == nil {
		return nil, fmt.Errorf("response cache is required")
	}
	if builder == nil {
		return nil, fmt.Errorf("header builder is required")
	}

	d := &Dispatcher{
		registry: reg,
		limiter:  limiter,
		cache:    respCache,
		headers:  builder,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Route performs one physical dispatch. Partner failures resolve to an error
// envelope; a Go error is returned only for malformed input to the gateway
// itself.
func (d *Dispatcher) Route(ctx context.Context, req *models.Request) (resp *models.Response, err error) {
	if req == nil || req.SystemCode == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "system code is required")
	}

	ctx, span := d.tracer.Start(ctx, "gateway.route",
		trace.WithAttributes(
			attribute.String("system_code", req.SystemCode),
			attribute.String("endpoint", req.Endpoint),
			attribute.String("method", req.Method),
		))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "panic during dispatch",
				"system_code", req.SystemCode, "endpoint", req.Endpoint, "panic", r)
			resp = models.Failure(req.SystemCode, models.ErrInternal, "internal gateway error")
			err = nil
		}
		if resp != nil {
			span.SetAttributes(attribute.String("outcome", outcomeOf(resp)))
		}
	}()

	cfg, err := d.registry.Lookup(ctx, req.SystemCode)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Failure(req.SystemCode, models.ErrSystemNotFound,
				"system not registered: "+req.SystemCode), nil
		}
		d.logger.ErrorContext(ctx, "registry lookup failed",
			"system_code", req.SystemCode, "error", err)
		return models.Failure(req.SystemCode, models.ErrInternal, "registry unavailable"), nil
	}

	if !cfg.Dispatchable() {
		return models.Failure(req.SystemCode, models.ErrSystemInactive,
			"system is deactivated: "+req.SystemCode), nil
	}

	if d.limiter.Exceeded(cfg) {
		if d.metrics != nil {
			d.metrics.RateLimitRejections.WithLabelValues(req.SystemCode).Inc()
		}
		d.emitAudit(req, audit.OutcomeRejected, models.ErrRateLimitExceeded, 0, 0)
		return models.Failure(req.SystemCode, models.ErrRateLimitExceeded,
			"rate limit exceeded for "+req.SystemCode), nil
	}

	if req.Method == http.MethodGet && !req.BypassCache {
		if cached, cacheErr := d.cache.Get(ctx, req.SystemCode, req.Endpoint); cacheErr == nil {
			if d.metrics != nil {
				d.metrics.CacheHits.WithLabelValues(req.SystemCode).Inc()
			}
			cached.Cached = true
			d.emitAudit(req, audit.OutcomeCached, "", cached.StatusCode, 0)
			return cached, nil
		}
		if d.metrics != nil {
			d.metrics.CacheMisses.WithLabelValues(req.SystemCode).Inc()
		}
	}

	d.limiter.Record(req.SystemCode)
	return d.execute(ctx, cfg, req)
}

func (d *Dispatcher) execute(ctx context.Context, cfg *models.SystemConfig, req *models.Request) (*models.Response, error) {
	url := d.headers.BuildURL(cfg, req.Endpoint)
	hdr, err := d.headers.Build(cfg, req)
	if err != nil {
		d.logger.ErrorContext(ctx, "could not build outbound headers",
			"system_code", req.SystemCode, "error", err)
		return models.Failure(req.SystemCode, models.ErrInternal, "could not prepare outbound call"), nil
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid outbound request")
	}
	httpReq.Header = hdr

	start := time.Now()
	httpResp, err := d.client.Do(httpReq)
	latency := time.Since(start)

	if err != nil {
		d.registry.RecordOutcome(ctx, req.SystemCode, false, latency.Milliseconds())
		if d.metrics != nil {
			d.metrics.ObserveDispatch(req.SystemCode, "connection_error", latency)
		}
		d.emitAudit(req, audit.OutcomeFailure, models.ErrConnection, 0, latency)
		d.logger.WarnContext(ctx, "partner unreachable",
			"system_code", req.SystemCode, "endpoint", req.Endpoint,
			"duration_ms", latency.Milliseconds(), "error", err)

		resp := models.Failure(req.SystemCode, models.ErrConnection, err.Error())
		resp.ResponseTimeMs = latency.Milliseconds()
		return resp, nil
	}
	defer httpResp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if readErr != nil {
		d.registry.RecordOutcome(ctx, req.SystemCode, false, latency.Milliseconds())
		d.emitAudit(req, audit.OutcomeFailure, models.ErrConnection, httpResp.StatusCode, latency)
		resp := models.Failure(req.SystemCode, models.ErrConnection, "read response: "+readErr.Error())
		resp.ResponseTimeMs = latency.Milliseconds()
		return resp, nil
	}

	success := httpResp.StatusCode >= 200 && httpResp.StatusCode < 300
	resp := &models.Response{
		Success:        success,
		StatusCode:     httpResp.StatusCode,
		Body:           respBody,
		ResponseTimeMs: latency.Milliseconds(),
		SystemCode:     req.SystemCode,
		Timestamp:      time.Now(),
	}
	if !success {
		resp.ErrorCode = models.ErrHTTP
		resp.ErrorMessage = fmt.Sprintf("partner returned HTTP %d", httpResp.StatusCode)
	}

	d.registry.RecordOutcome(ctx, req.SystemCode, success, latency.Milliseconds())
	if d.metrics != nil {
		d.metrics.ObserveDispatch(req.SystemCode, outcomeOf(resp), latency)
	}
	d.emitAudit(req, terminalOutcome(success), resp.ErrorCode, httpResp.StatusCode, latency)

	if success && req.Method == http.MethodGet {
		if cacheErr := d.cache.Put(ctx, req.SystemCode, req.Endpoint, resp); cacheErr != nil {
			d.logger.WarnContext(ctx, "could not cache response",
				"system_code", req.SystemCode, "endpoint", req.Endpoint, "error", cacheErr)
		}
	}

	d.logger.InfoContext(ctx, "dispatched",
		"system_code", req.SystemCode,
		"endpoint", req.Endpoint,
		"method", req.Method,
		"status_code", httpResp.StatusCode,
		"duration_ms", latency.Milliseconds(),
	)
	return resp, nil
}

// CheckHealth probes the partner's health endpoint and records the result on
// the registry row.
func (d *Dispatcher) CheckHealth(ctx context.Context, systemCode string) (*models.Response, error) {
	strategy := d.headers.Resolve(systemCode)
	resp, err := d.Route(ctx, &models.Request{
		SystemCode: systemCode,
		Endpoint:   strategy.HealthEndpoint,
		Method:     http.MethodGet,
		// A probe answered from the cache would say nothing about the partner.
		BypassCache: true,
	})
	if err != nil {
		return nil, err
	}
	if resp.ErrorCode != models.ErrSystemNotFound && resp.ErrorCode != models.ErrRateLimitExceeded {
		d.registry.RecordHealthCheck(ctx, systemCode, resp.Success)
	}
	return resp, nil
}

func (d *Dispatcher) emitAudit(req *models.Request, outcome, errorCode string, statusCode int, latency time.Duration) {
	if d.audit == nil {
		return
	}
	d.audit.Emit(audit.Event{
		SystemCode:    req.SystemCode,
		Endpoint:      req.Endpoint,
		Method:        req.Method,
		RequestID:     req.RequestID,
		CorrelationID: req.CorrelationID,
		UserID:        req.UserID,
		Outcome:       outcome,
		ErrorCode:     errorCode,
		StatusCode:    statusCode,
		LatencyMs:     latency.Milliseconds(),
	})
}

func terminalOutcome(success bool) string {
	if success {
		return audit.OutcomeSuccess
	}
	return audit.OutcomeFailure
}

func outcomeOf(resp *models.Response) string {
	if resp.Success {
		return "success"
	}
	if resp.ErrorCode != "" {
		return resp.ErrorCode
	}
	return "failure"
}
