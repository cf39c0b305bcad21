package retry

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Policy bounds the retry behavior for one partner system. Immutable once
// resolved for a call.
type Policy struct {
	// MaxRetries is the total number of physical attempts for a logical call.
	MaxRetries        int           `json:"max_retries"`
	BaseDelay         time.Duration `json:"base_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	// Timeout applies per attempt, not per logical call.
	Timeout time.Duration `json:"timeout"`
}

// DefaultPolicy is the conservative fallback for unconfigured partners.
var DefaultPolicy = Policy{
	MaxRetries:        3,
	BaseDelay:         time.Second,
	MaxDelay:          10 * time.Second,
	BackoffMultiplier: 2.0,
	Timeout:           20 * time.Second,
}

// builtinPolicies configures high-value partners more generously than the
// default.
var builtinPolicies = map[string]Policy{
	// National ID lookups gate most downstream flows; give them more room.
	"PHILSYS": {
		MaxRetries:        5,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		Timeout:           40 * time.Second,
	},
	"SSS": {
		MaxRetries:        4,
		BaseDelay:         time.Second,
		MaxDelay:          15 * time.Second,
		BackoffMultiplier: 2.0,
		Timeout:           30 * time.Second,
	},
}

// policyOverride is the wire form of a per-partner override. Durations are
// time.ParseDuration strings so operators can write "2s" instead of
// nanosecond counts.
type policyOverride struct {
	MaxRetries        int     `json:"max_retries"`
	BaseDelay         string  `json:"base_delay"`
	MaxDelay          string  `json:"max_delay"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
	Timeout           string  `json:"timeout"`
}

// ParsePolicyOverrides decodes a JSON object of system code to override, as
// carried by GATEWAY_RETRY_OVERRIDES. Unset fields fall back to
// DefaultPolicy. An empty input yields no overrides.
func ParsePolicyOverrides(raw string) (map[string]Policy, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var wire map[string]policyOverride
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("parse retry overrides: %w", err)
	}

	out := make(map[string]Policy, len(wire))
	for code, o := range wire {
		p := DefaultPolicy
		if o.MaxRetries > 0 {
			p.MaxRetries = o.MaxRetries
		}
		if o.BackoffMultiplier > 0 {
			p.BackoffMultiplier = o.BackoffMultiplier
		}
		var err error
		if p.BaseDelay, err = overrideDuration(o.BaseDelay, p.BaseDelay); err != nil {
			return nil, fmt.Errorf("retry override for %s: base_delay: %w", code, err)
		}
		if p.MaxDelay, err = overrideDuration(o.MaxDelay, p.MaxDelay); err != nil {
			return nil, fmt.Errorf("retry override for %s: max_delay: %w", code, err)
		}
		if p.Timeout, err = overrideDuration(o.Timeout, p.Timeout); err != nil {
			return nil, fmt.Errorf("retry override for %s: timeout: %w", code, err)
		}
		out[code] = p
	}
	return out, nil
}

func overrideDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	return time.ParseDuration(raw)
}

// PolicyResolver resolves a policy per system code once and caches it for the
// process lifetime.
type PolicyResolver struct {
	mu        sync.RWMutex
	overrides map[string]Policy
	resolved  map[string]Policy
}

// NewPolicyResolver builds a resolver. Overrides take precedence over the
// built-in table; both fall back to DefaultPolicy.
func NewPolicyResolver(overrides map[string]Policy) *PolicyResolver {
	return &PolicyResolver{
		overrides: overrides,
		resolved:  make(map[string]Policy),
	}
}

// Resolve returns the policy for a system code.
func (r *PolicyResolver) Resolve(systemCode string) Policy {
	r.mu.RLock()
	p, ok := r.resolved[systemCode]
	r.mu.RUnlock()
	if ok {
		return p
	}

	p = DefaultPolicy
	if builtin, ok := builtinPolicies[systemCode]; ok {
		p = builtin
	}
	if override, ok := r.overrides[systemCode]; ok {
		p = override
	}
	// A logical call always gets at least one physical attempt.
	if p.MaxRetries < 1 {
		p.MaxRetries = 1
	}

	r.mu.Lock()
	r.resolved[systemCode] = p
	r.mu.Unlock()
	return p
}
