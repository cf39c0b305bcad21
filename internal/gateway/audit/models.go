package audit

import "time"

// Event records one terminal dispatch outcome. Keep it transport-agnostic so
// stores and sinks can fan out.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	SystemCode    string    `json:"system_code"`
	Endpoint      string    `json:"endpoint"`
	Method        string    `json:"method"`
	RequestID     string    `json:"request_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	Outcome       string    `json:"outcome"`
	ErrorCode     string    `json:"error_code,omitempty"`
	StatusCode    int       `json:"status_code,omitempty"`
	LatencyMs     int64     `json:"latency_ms"`
}

// Outcome values.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
	OutcomeCached   = "cached"
)
