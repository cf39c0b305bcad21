package httptransport_test

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interop-gateway/internal/gateway/cache"
	"interop-gateway/internal/gateway/handler"
	"interop-gateway/internal/gateway/health"
	"interop-gateway/internal/gateway/models"
	"interop-gateway/internal/gateway/registry"
	"interop-gateway/internal/gateway/registry/store"
	"interop-gateway/internal/gateway/retry"
	httptransport "interop-gateway/internal/transport/http"
	"interop-gateway/pkg/requestcontext"
	"interop-gateway/pkg/testutil"
)

type stubDispatcher struct {
	lastRequest *models.Request
}

func (s *stubDispatcher) DispatchWithRetry(_ context.Context, req *models.Request) (*models.Response, error) {
	s.lastRequest = req
	return &models.Response{Success: true, StatusCode: 200, SystemCode: req.SystemCode, Timestamp: time.Now()}, nil
}

func (s *stubDispatcher) PolicyFor(string) retry.Policy { return retry.DefaultPolicy }

type stubBatcher struct{}

func (stubBatcher) DispatchBatch(_ context.Context, reqs map[string]*models.Request) map[string]*models.Response {
	out := make(map[string]*models.Response, len(reqs))
	for key, req := range reqs {
		out[key] = &models.Response{Success: true, SystemCode: req.SystemCode}
	}
	return out
}

type stubChecker struct{}

func (stubChecker) CheckHealth(_ context.Context, systemCode string) (*models.Response, error) {
	return &models.Response{Success: true, SystemCode: systemCode}, nil
}

func newRouter(t *testing.T) (http.Handler, *stubDispatcher) {
	t.Helper()

	reg, err := registry.New(store.NewInMemory())
	require.NoError(t, err)

	dispatcher := &stubDispatcher{}
	h := handler.New(dispatcher, stubBatcher{}, stubChecker{},
		reg, health.NewTracker(), cache.NewInMemory(time.Minute), slog.Default())
	return httptransport.NewRouter(h, slog.Default()), dispatcher
}

func TestHealthz(t *testing.T) {
	router, _ := newRouter(t)

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := testutil.UnmarshalResponse[map[string]string](t, rr)
	assert.Equal(t, "ok", (*body)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newRouter(t)

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequestIDFlow(t *testing.T) {
	router, dispatcher := newRouter(t)

	t.Run("caller supplied id is threaded through", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/gateway/route",
			handler.RouteRequest{SystemCode: "SSS", Endpoint: "/api/members"})
		req.Header.Set("X-Request-Id", "caller-id-1")
		req.Header.Set("X-User-Id", "caseworker-9")

		rr := testutil.DoRequest(router, req)
		require.Equal(t, http.StatusOK, rr.Code)

		assert.Equal(t, "caller-id-1", rr.Header().Get("X-Request-Id"))
		require.NotNil(t, dispatcher.lastRequest)
		assert.Equal(t, "caller-id-1", dispatcher.lastRequest.RequestID)
		assert.Equal(t, "caseworker-9", dispatcher.lastRequest.UserID)
	})

	t.Run("id is minted when absent", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/gateway/route",
			handler.RouteRequest{SystemCode: "SSS", Endpoint: "/api/members"})

		rr := testutil.DoRequest(router, req)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))
	})
}

func TestBadInputEnvelope(t *testing.T) {
	router, _ := newRouter(t)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/gateway/route",
		handler.RouteRequest{Endpoint: "/x"})
	rr := testutil.DoRequest(router, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	testutil.AssertErrorCode(t, rr, "bad_request")
}

func TestIdentityHelpersMatchMiddleware(t *testing.T) {
	// The testutil identity helper must agree with what the middleware sets.
	req := testutil.NewJSONRequest(t, http.MethodGet, "/x", nil)
	req = testutil.WithIdentity(req, "rid", "cid", "uid")

	ctx := req.Context()
	assert.Equal(t, "rid", requestcontext.RequestID(ctx))
	assert.Equal(t, "cid", requestcontext.CorrelationID(ctx))
	assert.Equal(t, "uid", requestcontext.UserID(ctx))
}
