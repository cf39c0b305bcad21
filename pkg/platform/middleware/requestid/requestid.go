// Package requestid assigns every inbound request a request ID and threads
// caller-supplied correlation and user identifiers into the context.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"interop-gateway/pkg/requestcontext"
)

// Inbound headers. The request ID is echoed back on the response so callers
// can quote it when reporting problems.
const (
	HeaderRequestID     = "X-Request-Id"
	HeaderCorrelationID = "X-Correlation-Id"
	HeaderUserID        = "X-User-Id"
)

// Middleware populates request-scoped identity from headers, minting a
// request ID when the caller did not send one.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		if correlationID := r.Header.Get(HeaderCorrelationID); correlationID != "" {
			ctx = requestcontext.WithCorrelationID(ctx, correlationID)
		}
		if userID := r.Header.Get(HeaderUserID); userID != "" {
			ctx = requestcontext.WithUserID(ctx, userID)
		}

		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
