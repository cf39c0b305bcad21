package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interop-gateway/internal/gateway/health"
	"interop-gateway/internal/gateway/models"
)

// scriptedDispatcher returns canned envelopes in order, repeating the last one.
type scriptedDispatcher struct {
	responses []*models.Response
	calls     int
}

func (d *scriptedDispatcher) Route(_ context.Context, req *models.Request) (*models.Response, error) {
	idx := d.calls
	if idx >= len(d.responses) {
		idx = len(d.responses) - 1
	}
	d.calls++
	resp := *d.responses[idx]
	resp.SystemCode = req.SystemCode
	return &resp, nil
}

func httpFailure(status int) *models.Response {
	return &models.Response{
		Success:      false,
		StatusCode:   status,
		ErrorCode:    models.ErrHTTP,
		ErrorMessage: "partner returned HTTP error",
		Timestamp:    time.Now(),
	}
}

func okResponse() *models.Response {
	return &models.Response{Success: true, StatusCode: 200, Timestamp: time.Now()}
}

func newService(t *testing.T, d Dispatcher, opts ...Option) (*Service, *health.Tracker) {
	t.Helper()
	tracker := health.NewTracker()
	opts = append(opts, WithSleep(func(context.Context, time.Duration) error { return nil }))
	svc, err := New(d, NewPolicyResolver(nil), tracker, opts...)
	require.NoError(t, err)
	return svc, tracker
}

func TestDispatchWithRetry_ExhaustsBudgetOn503(t *testing.T) {
	d := &scriptedDispatcher{responses: []*models.Response{httpFailure(503)}}
	svc, tracker := newService(t, d)

	resp, err := svc.DispatchWithRetry(context.Background(), &models.Request{SystemCode: "GSIS", Endpoint: "/x"})
	require.NoError(t, err)

	assert.Equal(t, DefaultPolicy.MaxRetries, d.calls, "exactly maxRetries physical attempts")
	assert.False(t, resp.Success)
	assert.Equal(t, models.ErrRetryExhausted, resp.ErrorCode)
	assert.Contains(t, resp.ErrorMessage, "partner returned HTTP error")

	snap := tracker.Snapshot("GSIS")
	assert.Equal(t, int64(DefaultPolicy.MaxRetries), snap.TotalAttempts)
	assert.Equal(t, int64(1), snap.TotalFailures, "one terminal outcome per logical call")
	assert.Zero(t, snap.NonRetryableFailures)
}

func TestDispatchWithRetry_NonRetryableShortCircuits(t *testing.T) {
	d := &scriptedDispatcher{responses: []*models.Response{httpFailure(400)}}
	var slept int
	svc, tracker := newService(t, d, WithSleep(func(context.Context, time.Duration) error {
		slept++
		return nil
	}))

	resp, err := svc.DispatchWithRetry(context.Background(), &models.Request{SystemCode: "BIR", Endpoint: "/x"})
	require.NoError(t, err)

	assert.Equal(t, 1, d.calls, "a 400 must not be retried")
	assert.Zero(t, slept, "no backoff before a fatal return")
	assert.Equal(t, models.ErrNonRetryable, resp.ErrorCode)
	assert.Equal(t, 400, resp.StatusCode)

	snap := tracker.Snapshot("BIR")
	assert.Equal(t, int64(1), snap.TotalAttempts)
	assert.Equal(t, int64(1), snap.NonRetryableFailures)
}

func TestDispatchWithRetry_RecoversAfterRetryableFailures(t *testing.T) {
	d := &scriptedDispatcher{responses: []*models.Response{
		httpFailure(503),
		{Success: false, ErrorCode: models.ErrConnection, ErrorMessage: "connection refused"},
		okResponse(),
	}}
	svc, tracker := newService(t, d)

	resp, err := svc.DispatchWithRetry(context.Background(), &models.Request{SystemCode: "SSS", Endpoint: "/x"})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, 3, d.calls)

	snap := tracker.Snapshot("SSS")
	assert.Equal(t, int64(3), snap.TotalAttempts)
	assert.Equal(t, int64(1), snap.TotalSuccesses)
	assert.Zero(t, snap.TotalFailures)
}

func TestDispatchWithRetry_RetryableStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{500, true},
		{502, true},
		{503, true},
		{429, true},
		{408, true},
		{400, false},
		{401, false},
		{404, false},
		{422, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.retryable, retryable(httpFailure(tt.status)), "status %d", tt.status)
	}
}

func TestDispatchWithRetry_CachedResponseSkipsHealthAccounting(t *testing.T) {
	cached := okResponse()
	cached.Cached = true
	d := &scriptedDispatcher{responses: []*models.Response{cached}}
	svc, tracker := newService(t, d)

	resp, err := svc.DispatchWithRetry(context.Background(), &models.Request{SystemCode: "PHILHEALTH", Endpoint: "/x", Method: "GET"})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.True(t, resp.Cached)
	snap := tracker.Snapshot("PHILHEALTH")
	assert.Zero(t, snap.TotalAttempts, "a cache hit is not a physical attempt")
	assert.Zero(t, snap.TotalSuccesses)
}

func TestDispatchWithRetry_ConfigLevelOutcomesPassThrough(t *testing.T) {
	for _, code := range []string{
		models.ErrSystemNotFound,
		models.ErrSystemInactive,
		models.ErrRateLimitExceeded,
		models.ErrInternal,
	} {
		t.Run(code, func(t *testing.T) {
			d := &scriptedDispatcher{responses: []*models.Response{
				{Success: false, ErrorCode: code, ErrorMessage: code},
			}}
			svc, tracker := newService(t, d)

			resp, err := svc.DispatchWithRetry(context.Background(), &models.Request{SystemCode: "X", Endpoint: "/x"})
			require.NoError(t, err)

			assert.Equal(t, 1, d.calls)
			assert.Equal(t, code, resp.ErrorCode)
			assert.Zero(t, tracker.Snapshot("X").TotalAttempts,
				"rejections are not dispatch attempts")
		})
	}
}

func TestBackoffDelay_MonotonicAndCapped(t *testing.T) {
	policy := Policy{
		BaseDelay:         1000 * time.Millisecond,
		MaxDelay:          10000 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		10000 * time.Millisecond,
	}
	for i, expected := range want {
		assert.Equal(t, expected, backoffDelay(policy, i+1), "attempt %d", i+1)
	}
}

func TestAddJitter_Bounds(t *testing.T) {
	base := time.Second
	for i := 0; i < 100; i++ {
		jittered := addJitter(base)
		assert.GreaterOrEqual(t, jittered, base)
		assert.LessOrEqual(t, jittered, base+base/10)
	}
}

func TestDispatchWithRetry_ObservedDelaysFollowPolicy(t *testing.T) {
	d := &scriptedDispatcher{responses: []*models.Response{httpFailure(503)}}
	var delays []time.Duration
	tracker := health.NewTracker()
	svc, err := New(d, NewPolicyResolver(map[string]Policy{
		"SLOW": {MaxRetries: 4, BaseDelay: 100 * time.Millisecond, MaxDelay: 250 * time.Millisecond, BackoffMultiplier: 2.0, Timeout: time.Second},
	}), tracker,
		WithJitter(func(d time.Duration) time.Duration { return d }),
		WithSleep(func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}),
	)
	require.NoError(t, err)

	_, err = svc.DispatchWithRetry(context.Background(), &models.Request{SystemCode: "SLOW", Endpoint: "/x"})
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		250 * time.Millisecond,
	}, delays, "three backoffs between four attempts, capped at max delay")
}

func TestDispatchWithRetry_CancellationStopsRetries(t *testing.T) {
	d := &scriptedDispatcher{responses: []*models.Response{httpFailure(503)}}
	tracker := health.NewTracker()
	svc, err := New(d, NewPolicyResolver(nil), tracker,
		WithSleep(func(ctx context.Context, _ time.Duration) error {
			return context.Canceled
		}),
	)
	require.NoError(t, err)

	resp, err := svc.DispatchWithRetry(context.Background(), &models.Request{SystemCode: "GSIS", Endpoint: "/x"})
	require.NoError(t, err)

	assert.Equal(t, 1, d.calls, "no further attempts after cancellation")
	assert.Equal(t, models.ErrHTTP, resp.ErrorCode, "last failure is returned as-is")
	assert.Equal(t, int64(1), tracker.Snapshot("GSIS").TotalFailures)
}

func TestPolicyResolver_CachesAndOverrides(t *testing.T) {
	r := NewPolicyResolver(map[string]Policy{
		"CUSTOM": {MaxRetries: 7, BaseDelay: time.Second, MaxDelay: time.Minute, BackoffMultiplier: 3.0, Timeout: time.Minute},
	})

	assert.Equal(t, 7, r.Resolve("CUSTOM").MaxRetries)
	assert.Equal(t, DefaultPolicy, r.Resolve("UNKNOWN_X"))
	assert.Equal(t, 5, r.Resolve("PHILSYS").MaxRetries, "national ID gets the generous built-in")

	// Cached resolution is stable.
	assert.Equal(t, r.Resolve("CUSTOM"), r.Resolve("CUSTOM"))
}

func TestPolicyResolver_ClampsMaxRetries(t *testing.T) {
	r := NewPolicyResolver(map[string]Policy{
		"BROKEN": {MaxRetries: 0, BaseDelay: time.Second, MaxDelay: time.Second, BackoffMultiplier: 2.0, Timeout: time.Second},
	})

	assert.Equal(t, 1, r.Resolve("BROKEN").MaxRetries, "every logical call gets at least one attempt")

	d := &scriptedDispatcher{responses: []*models.Response{httpFailure(503)}}
	tracker := health.NewTracker()
	svc, err := New(d, r, tracker, WithSleep(func(context.Context, time.Duration) error { return nil }))
	require.NoError(t, err)

	resp, err := svc.DispatchWithRetry(context.Background(), &models.Request{SystemCode: "BROKEN", Endpoint: "/x"})
	require.NoError(t, err)
	assert.Equal(t, 1, d.calls)
	assert.Equal(t, models.ErrRetryExhausted, resp.ErrorCode)
}

func TestParsePolicyOverrides(t *testing.T) {
	overrides, err := ParsePolicyOverrides(`{"BIR": {"max_retries": 6, "base_delay": "2s"}}`)
	require.NoError(t, err)
	require.Contains(t, overrides, "BIR")

	p := overrides["BIR"]
	assert.Equal(t, 6, p.MaxRetries)
	assert.Equal(t, 2*time.Second, p.BaseDelay)
	assert.Equal(t, DefaultPolicy.MaxDelay, p.MaxDelay, "unset fields fall back to the default policy")
	assert.Equal(t, DefaultPolicy.Timeout, p.Timeout)
	assert.Equal(t, DefaultPolicy.BackoffMultiplier, p.BackoffMultiplier)
}

func TestParsePolicyOverrides_Errors(t *testing.T) {
	empty, err := ParsePolicyOverrides("")
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = ParsePolicyOverrides("{")
	assert.Error(t, err)

	_, err = ParsePolicyOverrides(`{"BIR": {"base_delay": "soon"}}`)
	assert.Error(t, err)
}
