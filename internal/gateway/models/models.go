package models

import "time"

// AuthType selects the authentication scheme used for outbound calls to a partner.
type AuthType string

const (
	AuthAPIKey AuthType = "API_KEY"
	AuthBearer AuthType = "BEARER"
	AuthNone   AuthType = "NONE"
)

// SystemStatus reflects the last known operational state of a partner system.
type SystemStatus string

const (
	StatusActive   SystemStatus = "ACTIVE"
	StatusError    SystemStatus = "ERROR"
	StatusInactive SystemStatus = "INACTIVE"
)

// SystemConfig holds configuration and running statistics for one external
// partner system, identified by its unique SystemCode. Administrative processes
// create and update these rows; the gateway mutates only the statistics and
// status fields on call outcomes and health checks.
type SystemConfig struct {
	SystemCode   string
	Name         string
	BaseURL      string
	AuthType     AuthType
	APIKey       string
	ClientID     string
	ClientSecret string

	IsActive        bool
	Status          SystemStatus
	LastHealthCheck time.Time

	MaxCallsPerMinute int
	MaxCallsPerHour   int
	MaxCallsPerDay    int

	TotalSuccessfulCalls  int64
	TotalFailedCalls      int64
	LastSuccessfulCall    time.Time
	LastFailedCall        time.Time
	AverageResponseTimeMs int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Dispatchable reports whether the gateway may attempt calls to this system.
func (c *SystemConfig) Dispatchable() bool {
	return c.IsActive && c.Status != StatusInactive
}

// ApplyOutcome folds one call outcome into the statistics and status fields.
// A failed call moves status toward ERROR; a success restores ACTIVE unless
// the system was administratively deactivated. Stores must call this while
// holding whatever lock makes the read-modify-write atomic.
func (c *SystemConfig) ApplyOutcome(success bool, responseTimeMs int64, at time.Time) {
	if success {
		c.TotalSuccessfulCalls++
		c.LastSuccessfulCall = at
		if c.IsActive {
			c.Status = StatusActive
		}
	} else {
		c.TotalFailedCalls++
		c.LastFailedCall = at
		c.Status = StatusError
	}

	// Rolling average over all completed calls.
	total := c.TotalSuccessfulCalls + c.TotalFailedCalls
	if total > 0 {
		c.AverageResponseTimeMs = ((c.AverageResponseTimeMs * (total - 1)) + responseTimeMs) / total
	}
	c.UpdatedAt = at
}

// ApplyHealthCheck records a partner health probe result.
func (c *SystemConfig) ApplyHealthCheck(healthy bool, at time.Time) {
	c.LastHealthCheck = at
	switch {
	case !c.IsActive:
		c.Status = StatusInactive
	case healthy:
		c.Status = StatusActive
	default:
		c.Status = StatusError
	}
	c.UpdatedAt = at
}

// Request describes one logical outbound call. It is immutable once
// constructed; the resilience layer may issue it physically more than once.
type Request struct {
	SystemCode    string            `json:"system_code"`
	Endpoint      string            `json:"endpoint"`
	Method        string            `json:"method"`
	Headers       map[string]string `json:"headers,omitempty"`
	Body          []byte            `json:"body,omitempty"`
	RequestID     string            `json:"request_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	UserID        string            `json:"user_id,omitempty"`

	// BypassCache forces a fresh dispatch even when a cached GET response
	// exists. Health probes set it so a probe always touches the partner.
	BypassCache bool `json:"bypass_cache,omitempty"`
}

// Response is the uniform envelope every gateway operation resolves to.
// Ordinary partner failures are expressed here, never as Go errors.
type Response struct {
	Success        bool      `json:"success"`
	StatusCode     int       `json:"status_code,omitempty"`
	Body           []byte    `json:"body,omitempty"`
	ErrorCode      string    `json:"error_code,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	SystemCode     string    `json:"system_code"`
	Timestamp      time.Time `json:"timestamp"`

	// Cached marks an envelope served from the response cache. No physical
	// dispatch happened, so health accounting skips it.
	Cached bool `json:"cached,omitempty"`
}

// Envelope error codes. See the error taxonomy in the package documentation.
const (
	ErrSystemNotFound    = "SYSTEM_NOT_FOUND"
	ErrSystemInactive    = "SYSTEM_INACTIVE"
	ErrSystemUnavailable = "SYSTEM_UNAVAILABLE"
	ErrRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrHTTP              = "HTTP_ERROR"
	ErrConnection        = "CONNECTION_ERROR"
	ErrRetryExhausted    = "RETRY_EXHAUSTED"
	ErrNonRetryable      = "NON_RETRYABLE_ERROR"
	ErrInternal          = "INTERNAL_ERROR"
)

// Failure builds an error envelope for a system code.
func Failure(systemCode, errorCode, message string) *Response {
	return &Response{
		Success:      false,
		SystemCode:   systemCode,
		ErrorCode:    errorCode,
		ErrorMessage: message,
		Timestamp:    time.Now(),
	}
}
