package dispatcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interop-gateway/internal/gateway/models"
	"interop-gateway/pkg/testutil"
)

func TestScenario_RepeatedLookupServedFromCache(t *testing.T) {
	testutil.Given(t, "an active partner that has answered one GET lookup", func(t *testing.T) {
		var hits atomic.Int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"member_status":"ACTIVE"}`))
		}))
		defer server.Close()

		f := newFixture(t, activeSystem("PAGIBIG", server.URL))
		req := &models.Request{
			SystemCode: "PAGIBIG",
			Endpoint:   "/api/v1/members/2201",
			Method:     http.MethodGet,
			RequestID:  "scenario-1",
		}

		first, err := f.dispatcher.Route(context.Background(), req)
		require.NoError(t, err)
		require.True(t, first.Success)

		testutil.When(t, "the same lookup is routed again", func(t *testing.T) {
			second, err := f.dispatcher.Route(context.Background(), req)
			require.NoError(t, err)

			testutil.Then(t, "the cached envelope is returned without another partner call", func(t *testing.T) {
				assert.True(t, second.Success)
				assert.JSONEq(t, string(first.Body), string(second.Body))
				assert.Equal(t, int64(1), hits.Load())
			})
		})
	})
}
