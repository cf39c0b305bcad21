// Package retry wraps the dispatcher with per-partner retry, exponential
// backoff with jitter, and per-attempt timeouts. Failures are classified into
// retryable and fatal at the point of failure; the loop branches on that tag
// only.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"interop-gateway/internal/gateway/health"
	"interop-gateway/internal/gateway/metrics"
	"interop-gateway/internal/gateway/models"
)

// Dispatcher is the single-attempt gateway core.
type Dispatcher interface {
	Route(ctx context.Context, req *models.Request) (*models.Response, error)
}

type Service struct {
	dispatcher Dispatcher
	policies   *PolicyResolver
	tracker    *health.Tracker
	logger     *slog.Logger
	metrics    *metrics.Metrics
	sleep      func(ctx context.Context, d time.Duration) error
	jitter     func(d time.Duration) time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithSleep replaces the backoff wait. Tests use it to observe delays without
// actually sleeping.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) {
		s.sleep = sleep
	}
}

// WithJitter replaces the jitter source for deterministic tests.
func WithJitter(jitter func(d time.Duration) time.Duration) Option {
	return func(s *Service) {
		s.jitter = jitter
	}
}

func New(dispatcher Dispatcher, policies *PolicyResolver, tracker *health.Tracker, opts ...Option) (*Service, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if policies == nil {
		return nil, fmt.Errorf("policy resolver is required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("health tracker is required")
	}

	s := &Service{
		dispatcher: dispatcher,
		policies:   policies,
		tracker:    tracker,
		logger:     slog.Default(),
		sleep:      sleepCtx,
		jitter:     addJitter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// PolicyFor exposes the resolved policy for operational queries.
func (s *Service) PolicyFor(systemCode string) Policy {
	return s.policies.Resolve(systemCode)
}

// DispatchWithRetry runs one logical call: sequential attempts under the
// system's policy, backoff between retryable failures, immediate return on
// fatal ones. It always resolves to an envelope; the returned error is
// reserved for malformed input.
func (s *Service) DispatchWithRetry(ctx context.Context, req *models.Request) (*models.Response, error) {
	if req == nil || req.SystemCode == "" {
		resp, err := s.dispatcher.Route(ctx, req)
		// Let the dispatcher produce the canonical bad-input error.
		return resp, err
	}

	policy := s.policies.Resolve(req.SystemCode)
	var last *models.Response

	for attempt := 1; attempt <= policy.MaxRetries; attempt++ {
		resp, err := s.routeOnce(ctx, req, policy.Timeout)
		if err != nil {
			return nil, err
		}

		if resp.Cached || configLevel(resp.ErrorCode) {
			// No physical dispatch happened; no health accounting, no retry.
			return resp, nil
		}

		s.tracker.RecordAttempt(req.SystemCode, time.Duration(resp.ResponseTimeMs)*time.Millisecond)
		last = resp

		if resp.Success {
			s.tracker.RecordSuccess(req.SystemCode)
			return resp, nil
		}

		if !retryable(resp) {
			s.tracker.RecordNonRetryableFailure(req.SystemCode)
			resp.ErrorCode = models.ErrNonRetryable
			return resp, nil
		}

		if attempt == policy.MaxRetries {
			break
		}

		delay := s.jitter(backoffDelay(policy, attempt))
		s.logger.DebugContext(ctx, "retrying after backoff",
			"system_code", req.SystemCode,
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error_code", resp.ErrorCode,
		)
		if s.metrics != nil {
			s.metrics.RetriesTotal.WithLabelValues(req.SystemCode).Inc()
		}
		if err := s.sleep(ctx, delay); err != nil {
			// Caller gave up mid-backoff; the recorded attempts stand.
			s.tracker.RecordFailure(req.SystemCode)
			return last, nil
		}
	}

	s.tracker.RecordFailure(req.SystemCode)
	if s.metrics != nil {
		s.metrics.RetryExhaustionsTotal.WithLabelValues(req.SystemCode).Inc()
	}
	exhausted := models.Failure(req.SystemCode, models.ErrRetryExhausted,
		fmt.Sprintf("all %d attempts failed, last error: %s", policy.MaxRetries, last.ErrorMessage))
	exhausted.StatusCode = last.StatusCode
	exhausted.ResponseTimeMs = last.ResponseTimeMs
	return exhausted, nil
}

func (s *Service) routeOnce(ctx context.Context, req *models.Request, timeout time.Duration) (*models.Response, error) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.dispatcher.Route(attemptCtx, req)
}

// retryable classifies a failed envelope. Transport failures and HTTP 5xx,
// 429, and 408 are worth retrying; everything else is fatal.
func retryable(resp *models.Response) bool {
	switch resp.ErrorCode {
	case models.ErrConnection:
		return true
	case models.ErrHTTP:
		return resp.StatusCode >= 500 ||
			resp.StatusCode == 429 ||
			resp.StatusCode == 408
	default:
		return false
	}
}

// configLevel reports whether the outcome was decided inside the gateway
// rather than by the partner. INTERNAL_ERROR envelopes come from faults like
// an unreachable registry or a header-build failure, none of which reached
// the partner.
func configLevel(errorCode string) bool {
	switch errorCode {
	case models.ErrSystemNotFound, models.ErrSystemInactive,
		models.ErrSystemUnavailable, models.ErrRateLimitExceeded,
		models.ErrInternal:
		return true
	default:
		return false
	}
}

// backoffDelay computes the pre-jitter delay before attempt+1.
func backoffDelay(policy Policy, attempt int) time.Duration {
	delay := float64(policy.BaseDelay) * math.Pow(policy.BackoffMultiplier, float64(attempt-1))
	if capped := float64(policy.MaxDelay); delay > capped {
		delay = capped
	}
	return time.Duration(delay)
}

// addJitter adds up to 10% random spread to avoid synchronized retry storms.
func addJitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Float64()*0.1*float64(d))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
