// Package health accumulates per-partner attempt and outcome counters in
// memory. Counters reset on process restart; durable statistics live on the
// system registry rows.
package health

import (
	"sync"
	"time"
)

// Tracker aggregates metrics per system code. Each system's counters are
// synchronized independently so concurrent batch dispatches do not contend
// across partners.
type Tracker struct {
	mu      sync.RWMutex
	systems map[string]*systemMetrics
}

type systemMetrics struct {
	mu sync.Mutex

	attempts             int64
	successes            int64
	failures             int64
	nonRetryableFailures int64
	totalResponseTime    time.Duration

	lastAttempt time.Time
	lastSuccess time.Time
	lastFailure time.Time
}

// Snapshot is a point-in-time copy of one system's counters with derived
// rates.
type Snapshot struct {
	SystemCode           string        `json:"system_code"`
	TotalAttempts        int64         `json:"total_attempts"`
	TotalSuccesses       int64         `json:"total_successes"`
	TotalFailures        int64         `json:"total_failures"`
	NonRetryableFailures int64         `json:"non_retryable_failures"`
	SuccessRate          float64       `json:"success_rate"`
	AverageResponseTime  time.Duration `json:"average_response_time"`
	LastAttempt          time.Time     `json:"last_attempt,omitzero"`
	LastSuccess          time.Time     `json:"last_success,omitzero"`
	LastFailure          time.Time     `json:"last_failure,omitzero"`
}

func NewTracker() *Tracker {
	return &Tracker{systems: make(map[string]*systemMetrics)}
}

// RecordAttempt counts one physical dispatch try and its wall-clock latency.
func (t *Tracker) RecordAttempt(systemCode string, latency time.Duration) {
	m := t.getOrCreate(systemCode)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	m.totalResponseTime += latency
	m.lastAttempt = time.Now()
}

// RecordSuccess counts one logical call that ended successfully.
func (t *Tracker) RecordSuccess(systemCode string) {
	m := t.getOrCreate(systemCode)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successes++
	m.lastSuccess = time.Now()
}

// RecordFailure counts one logical call that ended in a retryable failure
// (including retry exhaustion).
func (t *Tracker) RecordFailure(systemCode string) {
	m := t.getOrCreate(systemCode)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
	m.lastFailure = time.Now()
}

// RecordNonRetryableFailure counts one logical call that was classified fatal
// and short-circuited.
func (t *Tracker) RecordNonRetryableFailure(systemCode string) {
	m := t.getOrCreate(systemCode)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
	m.nonRetryableFailures++
	m.lastFailure = time.Now()
}

// Snapshot returns a copy of the counters for one system. Unknown systems
// yield a zero snapshot rather than an error so operational queries never
// fail.
func (t *Tracker) Snapshot(systemCode string) Snapshot {
	t.mu.RLock()
	m, ok := t.systems[systemCode]
	t.mu.RUnlock()
	if !ok {
		return Snapshot{SystemCode: systemCode}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		SystemCode:           systemCode,
		TotalAttempts:        m.attempts,
		TotalSuccesses:       m.successes,
		TotalFailures:        m.failures,
		NonRetryableFailures: m.nonRetryableFailures,
		LastAttempt:          m.lastAttempt,
		LastSuccess:          m.lastSuccess,
		LastFailure:          m.lastFailure,
	}
	if m.attempts > 0 {
		snap.SuccessRate = float64(m.successes) / float64(m.attempts)
	}
	if terminal := m.successes + m.failures; terminal > 0 {
		snap.AverageResponseTime = m.totalResponseTime / time.Duration(terminal)
	}
	return snap
}

func (t *Tracker) getOrCreate(systemCode string) *systemMetrics {
	t.mu.RLock()
	m, ok := t.systems[systemCode]
	t.mu.RUnlock()
	if ok {
		return m
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok = t.systems[systemCode]; ok {
		return m
	}
	m = &systemMetrics{}
	t.systems[systemCode] = m
	return m
}
