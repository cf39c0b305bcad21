// Package ratelimit gates outbound dispatch with an approximate sliding-window
// limiter per partner system. Bursts at window boundaries are tolerated by
// design; the long-run averages respect the configured caps.
package ratelimit

import (
	"sync"
	"time"

	"interop-gateway/internal/gateway/models"
)

const retention = 24 * time.Hour

// Limiter tracks recent dispatch timestamps per system code. Each window is
// synchronized independently so partners do not contend with one another.
type Limiter struct {
	mu      sync.RWMutex
	windows map[string]*window
}

// window holds the recorded call timestamps for one system, oldest first.
type window struct {
	mu         sync.Mutex
	timestamps []time.Time
}

func New() *Limiter {
	return &Limiter{windows: make(map[string]*window)}
}

// Exceeded reports whether dispatching one more call to the system would
// violate any of its configured per-minute, per-hour, or per-day thresholds.
// A zero threshold means unlimited for that window.
func (l *Limiter) Exceeded(cfg *models.SystemConfig) bool {
	return l.exceededAt(cfg, time.Now())
}

// Record appends the current timestamp for a system. Called exactly once per
// physical dispatch decision; rejections and cache hits are not recorded.
func (l *Limiter) Record(systemCode string) {
	l.recordAt(systemCode, time.Now())
}

// Reset drops all recorded timestamps for a system.
func (l *Limiter) Reset(systemCode string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, systemCode)
}

func (l *Limiter) exceededAt(cfg *models.SystemConfig, now time.Time) bool {
	w := l.getOrCreate(cfg.SystemCode)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now)

	var lastMinute, lastHour int
	day := len(w.timestamps)
	minuteCutoff := now.Add(-time.Minute)
	hourCutoff := now.Add(-time.Hour)
	for i := day - 1; i >= 0; i-- {
		ts := w.timestamps[i]
		if ts.After(hourCutoff) {
			lastHour++
			if ts.After(minuteCutoff) {
				lastMinute++
			}
			continue
		}
		break
	}

	if cfg.MaxCallsPerMinute > 0 && lastMinute >= cfg.MaxCallsPerMinute {
		return true
	}
	if cfg.MaxCallsPerHour > 0 && lastHour >= cfg.MaxCallsPerHour {
		return true
	}
	if cfg.MaxCallsPerDay > 0 && day >= cfg.MaxCallsPerDay {
		return true
	}
	return false
}

func (l *Limiter) recordAt(systemCode string, at time.Time) {
	w := l.getOrCreate(systemCode)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timestamps = append(w.timestamps, at)
}

func (l *Limiter) getOrCreate(systemCode string) *window {
	l.mu.RLock()
	w, ok := l.windows[systemCode]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[systemCode]; ok {
		return w
	}
	w = &window{}
	l.windows[systemCode] = w
	return w
}

// prune discards entries older than the retention horizon.
// Must be called while holding w.mu.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-retention)
	i := 0
	for ; i < len(w.timestamps); i++ {
		if w.timestamps[i].After(cutoff) {
			break
		}
	}
	w.timestamps = w.timestamps[i:]
}
