package handler

import (
	"time"

	"interop-gateway/internal/gateway/health"
	"interop-gateway/internal/gateway/models"
	"interop-gateway/internal/gateway/retry"
)

// SystemSummary is the listing view of a registered system. Credentials are
// never serialized.
type SystemSummary struct {
	SystemCode        string    `json:"system_code"`
	Name              string    `json:"name"`
	BaseURL           string    `json:"base_url"`
	AuthType          string    `json:"auth_type"`
	IsActive          bool      `json:"is_active"`
	Status            string    `json:"status"`
	MaxCallsPerMinute int       `json:"max_calls_per_minute,omitempty"`
	MaxCallsPerHour   int       `json:"max_calls_per_hour,omitempty"`
	MaxCallsPerDay    int       `json:"max_calls_per_day,omitempty"`
	LastHealthCheck   time.Time `json:"last_health_check,omitzero"`
}

// HealthResponse reports a system's operational state with derived rates.
type HealthResponse struct {
	SystemCode            string        `json:"system_code"`
	Status                string        `json:"status"`
	IsActive              bool          `json:"is_active"`
	LastHealthCheck       time.Time     `json:"last_health_check,omitzero"`
	SuccessRate           float64       `json:"success_rate"`
	AverageResponseTimeMs int64         `json:"average_response_time_ms"`
	TotalAttempts         int64         `json:"total_attempts"`
	RetryPolicy           *retry.Policy `json:"retry_policy,omitempty"`
}

// StatisticsResponse exposes the full per-system counters.
type StatisticsResponse struct {
	SystemCode            string    `json:"system_code"`
	Status                string    `json:"status"`
	TotalSuccessfulCalls  int64     `json:"total_successful_calls"`
	TotalFailedCalls      int64     `json:"total_failed_calls"`
	LastSuccessfulCall    time.Time `json:"last_successful_call,omitzero"`
	LastFailedCall        time.Time `json:"last_failed_call,omitzero"`
	AverageResponseTimeMs int64     `json:"average_response_time_ms"`

	TotalAttempts        int64 `json:"total_attempts"`
	NonRetryableFailures int64 `json:"non_retryable_failures"`
}

func summaryFrom(cfg *models.SystemConfig) SystemSummary {
	return SystemSummary{
		SystemCode:        cfg.SystemCode,
		Name:              cfg.Name,
		BaseURL:           cfg.BaseURL,
		AuthType:          string(cfg.AuthType),
		IsActive:          cfg.IsActive,
		Status:            string(cfg.Status),
		MaxCallsPerMinute: cfg.MaxCallsPerMinute,
		MaxCallsPerHour:   cfg.MaxCallsPerHour,
		MaxCallsPerDay:    cfg.MaxCallsPerDay,
		LastHealthCheck:   cfg.LastHealthCheck,
	}
}

func healthFrom(cfg *models.SystemConfig, snap health.Snapshot) HealthResponse {
	return HealthResponse{
		SystemCode:            cfg.SystemCode,
		Status:                string(cfg.Status),
		IsActive:              cfg.IsActive,
		LastHealthCheck:       cfg.LastHealthCheck,
		SuccessRate:           snap.SuccessRate,
		AverageResponseTimeMs: snap.AverageResponseTime.Milliseconds(),
		TotalAttempts:         snap.TotalAttempts,
	}
}

func statisticsFrom(cfg *models.SystemConfig, snap health.Snapshot) StatisticsResponse {
	return StatisticsResponse{
		SystemCode:            cfg.SystemCode,
		Status:                string(cfg.Status),
		TotalSuccessfulCalls:  cfg.TotalSuccessfulCalls,
		TotalFailedCalls:      cfg.TotalFailedCalls,
		LastSuccessfulCall:    cfg.LastSuccessfulCall,
		LastFailedCall:        cfg.LastFailedCall,
		AverageResponseTimeMs: cfg.AverageResponseTimeMs,
		TotalAttempts:         snap.TotalAttempts,
		NonRetryableFailures:  snap.NonRetryableFailures,
	}
}
