package testutil

import (
	"net/http"
	"time"

	"interop-gateway/pkg/requestcontext"
)

// WithIdentity threads request, correlation, and user identifiers into a
// request's context, simulating the identity middleware.
func WithIdentity(req *http.Request, requestID, correlationID, userID string) *http.Request {
	ctx := req.Context()
	if requestID != "" {
		ctx = requestcontext.WithRequestID(ctx, requestID)
	}
	if correlationID != "" {
		ctx = requestcontext.WithCorrelationID(ctx, correlationID)
	}
	if userID != "" {
		ctx = requestcontext.WithUserID(ctx, userID)
	}
	return req.WithContext(ctx)
}

// WithRequestTime pins the request-scoped clock, simulating the time
// middleware.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
