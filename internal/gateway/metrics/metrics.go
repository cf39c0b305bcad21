package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the gateway.
type Metrics struct {
	DispatchesTotal       *prometheus.CounterVec
	DispatchDuration      *prometheus.HistogramVec
	RateLimitRejections   *prometheus.CounterVec
	CacheHits             *prometheus.CounterVec
	CacheMisses           *prometheus.CounterVec
	RetriesTotal          *prometheus.CounterVec
	RetryExhaustionsTotal *prometheus.CounterVec
}

// New creates and registers all gateway metrics.
func New() *Metrics {
	return &Metrics{
		DispatchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_dispatches_total",
			Help: "Total outbound dispatches by system and outcome",
		}, []string{"system_code", "outcome"}),
		DispatchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_dispatch_duration_seconds",
			Help:    "Outbound call latency by system",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"system_code"}),
		RateLimitRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_rate_limit_rejections_total",
			Help: "Dispatches rejected by the per-system rate limiter",
		}, []string{"system_code"}),
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_response_cache_hits_total",
			Help: "GET responses served from the response cache",
		}, []string{"system_code"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_response_cache_misses_total",
			Help: "GET cache lookups that required a partner call",
		}, []string{"system_code"}),
		RetriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_retries_total",
			Help: "Retry attempts beyond the first try, by system",
		}, []string{"system_code"}),
		RetryExhaustionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_retry_exhaustions_total",
			Help: "Logical calls that consumed their whole retry budget",
		}, []string{"system_code"}),
	}
}

// ObserveDispatch records one dispatch outcome and its latency.
func (m *Metrics) ObserveDispatch(systemCode, outcome string, latency time.Duration) {
	m.DispatchesTotal.WithLabelValues(systemCode, outcome).Inc()
	m.DispatchDuration.WithLabelValues(systemCode).Observe(latency.Seconds())
}
