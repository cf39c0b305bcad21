package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"interop-gateway/internal/gateway/models"
	dErrors "interop-gateway/pkg/domain-errors"
	"interop-gateway/pkg/requestcontext"
)

// RouteRequest is the wire form of one outbound call.
type RouteRequest struct {
	SystemCode string            `json:"system_code"`
	Endpoint   string            `json:"endpoint"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       json.RawMessage   `json:"body,omitempty"`
}

// BatchRequest carries a keyed set of route requests.
type BatchRequest struct {
	Requests map[string]RouteRequest `json:"requests"`
}

// Validate checks the request and normalizes the method.
func (r *RouteRequest) Validate() error {
	if strings.TrimSpace(r.SystemCode) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "system_code is required")
	}
	if strings.TrimSpace(r.Endpoint) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "endpoint is required")
	}
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	switch r.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return nil
	default:
		return dErrors.New(dErrors.CodeBadRequest, "unsupported method: "+r.Method)
	}
}

// ToModel builds the domain request, carrying identity from the context.
func (r *RouteRequest) ToModel(requestID, correlationID, userID string) *models.Request {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &models.Request{
		SystemCode:    strings.TrimSpace(r.SystemCode),
		Endpoint:      r.Endpoint,
		Method:        r.Method,
		Headers:       r.Headers,
		Body:          []byte(r.Body),
		RequestID:     requestID,
		CorrelationID: correlationID,
		UserID:        userID,
	}
}

func identityFrom(req *http.Request) (requestID, correlationID, userID string) {
	ctx := req.Context()
	return requestcontext.RequestID(ctx), requestcontext.CorrelationID(ctx), requestcontext.UserID(ctx)
}
