package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interop-gateway/internal/gateway/models"
)

// mapDispatcher answers each system code from a fixed table and records
// concurrency, panicking where instructed.
type mapDispatcher struct {
	mu        sync.Mutex
	responses map[string]*models.Response
	panicOn   map[string]bool
	inFlight  int
	peak      int
}

func (d *mapDispatcher) DispatchWithRetry(_ context.Context, req *models.Request) (*models.Response, error) {
	d.mu.Lock()
	d.inFlight++
	if d.inFlight > d.peak {
		d.peak = d.inFlight
	}
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.inFlight--
		d.mu.Unlock()
	}()

	time.Sleep(time.Millisecond)

	if d.panicOn[req.SystemCode] {
		panic("exploded in dispatch")
	}
	if resp, ok := d.responses[req.SystemCode]; ok {
		out := *resp
		out.SystemCode = req.SystemCode
		return &out, nil
	}
	return models.Failure(req.SystemCode, models.ErrSystemNotFound, "no external system registered"), nil
}

func TestDispatchBatch_PerKeyEnvelopes(t *testing.T) {
	d := &mapDispatcher{responses: map[string]*models.Response{
		"PHILSYS":    {Success: true, StatusCode: 200},
		"PHILHEALTH": {Success: false, StatusCode: 503, ErrorCode: models.ErrRetryExhausted, ErrorMessage: "all 3 attempts failed"},
	}}
	c, err := New(d)
	require.NoError(t, err)

	results := c.DispatchBatch(context.Background(), map[string]*models.Request{
		"identity":  {SystemCode: "PHILSYS", Endpoint: "/api/v1/verify"},
		"insurance": {SystemCode: "PHILHEALTH", Endpoint: "/fhir/R4/Coverage"},
		"unknown":   {SystemCode: "GHOST", Endpoint: "/x"},
	})

	require.Len(t, results, 3)
	assert.True(t, results["identity"].Success)
	assert.Equal(t, models.ErrRetryExhausted, results["insurance"].ErrorCode)
	assert.Equal(t, models.ErrSystemNotFound, results["unknown"].ErrorCode)
}

func TestDispatchBatch_FailureDoesNotAbortSiblings(t *testing.T) {
	d := &mapDispatcher{
		responses: map[string]*models.Response{
			"SSS":  {Success: true, StatusCode: 200},
			"GSIS": {Success: true, StatusCode: 200},
		},
		panicOn: map[string]bool{"BIR": true},
	}
	c, err := New(d)
	require.NoError(t, err)

	results := c.DispatchBatch(context.Background(), map[string]*models.Request{
		"pension-sss":  {SystemCode: "SSS", Endpoint: "/api/members"},
		"pension-gsis": {SystemCode: "GSIS", Endpoint: "/api/members"},
		"tax":          {SystemCode: "BIR", Endpoint: "/ws/v1/tin"},
	})

	require.Len(t, results, 3)
	assert.True(t, results["pension-sss"].Success)
	assert.True(t, results["pension-gsis"].Success)
	assert.Equal(t, models.ErrInternal, results["tax"].ErrorCode)
	assert.Equal(t, "BIR", results["tax"].SystemCode)
}

func TestDispatchBatch_EmptyBatch(t *testing.T) {
	c, err := New(&mapDispatcher{})
	require.NoError(t, err)

	results := c.DispatchBatch(context.Background(), nil)
	assert.Empty(t, results)
}

func TestDispatchBatch_BoundedConcurrency(t *testing.T) {
	d := &mapDispatcher{responses: map[string]*models.Response{}}
	c, err := New(d, WithConcurrency(2))
	require.NoError(t, err)

	requests := make(map[string]*models.Request)
	for _, code := range []string{"A", "B", "C", "D", "E", "F", "G", "H"} {
		requests[code] = &models.Request{SystemCode: code, Endpoint: "/x"}
	}
	results := c.DispatchBatch(context.Background(), requests)

	assert.Len(t, results, len(requests))
	assert.LessOrEqual(t, d.peak, 2)
}

func TestNew_RequiresDispatcher(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
