// Package headers assembles outbound URLs and headers per partner convention.
// Partner quirks live in a strategy table keyed by system-code prefix, with a
// generic fallback for unknown partners, instead of string-contains chains.
package headers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"interop-gateway/internal/gateway/models"
)

// Strategy captures one partner family's API conventions.
type Strategy struct {
	// PathPrefix is inserted between the base URL and the endpoint, e.g. a
	// version segment. Empty means the endpoint is joined directly.
	PathPrefix string

	// ContentType and Accept override the plain-JSON defaults.
	ContentType string
	Accept      string

	// ClientIDHeader names the partner's client identifier header.
	ClientIDHeader string

	// APIKeyHeader names the partner's API key header for AuthAPIKey systems.
	APIKeyHeader string

	// HealthEndpoint is the partner-relative path probed by health checks.
	HealthEndpoint string
}

const (
	defaultContentType    = "application/json"
	defaultClientIDHeader = "X-Client-Id"
	defaultAPIKeyHeader   = "X-Api-Key"
	defaultHealthEndpoint = "/actuator/health"
)

// defaultStrategy serves unknown system codes: bearer-or-configured auth, a
// generic client header, no path prefix.
var defaultStrategy = Strategy{
	ContentType:    defaultContentType,
	Accept:         defaultContentType,
	ClientIDHeader: defaultClientIDHeader,
	APIKeyHeader:   defaultAPIKeyHeader,
	HealthEndpoint: defaultHealthEndpoint,
}

// Builder resolves strategies and assembles request headers.
type Builder struct {
	// strategies maps a system-code prefix to its conventions. Longest
	// matching prefix wins, so "LGU" can cover LGU-QC, LGU-MNL, etc.
	strategies map[string]Strategy
	assertions *assertionSigner
	now        func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithStrategy registers or replaces the conventions for a system-code prefix.
func WithStrategy(codePrefix string, s Strategy) Option {
	return func(b *Builder) {
		b.strategies[codePrefix] = normalize(s)
	}
}

// WithClock overrides the timestamp source for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
		b.assertions.now = now
	}
}

// NewBuilder constructs a Builder preloaded with the known partner table.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		strategies: knownPartners(),
		assertions: newAssertionSigner(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// knownPartners is the hard-coded table of partner conventions. New partners
// that follow the generic convention need no entry at all.
func knownPartners() map[string]Strategy {
	return map[string]Strategy{
		// National ID authority.
		"PHILSYS": normalize(Strategy{
			PathPrefix:     "/api/v1",
			ClientIDHeader: "X-PhilSys-Client-Id",
			APIKeyHeader:   "X-PhilSys-Api-Key",
		}),
		// Health insurance exposes a FHIR R4 surface.
		"PHILHEALTH": normalize(Strategy{
			PathPrefix:     "/fhir/R4",
			ContentType:    "application/fhir+json",
			Accept:         "application/fhir+json",
			ClientIDHeader: "X-PhilHealth-Client",
			HealthEndpoint: "/fhir/R4/metadata",
		}),
		// Social security.
		"SSS": normalize(Strategy{
			PathPrefix:     "/api",
			ClientIDHeader: "X-SSS-App-Id",
			APIKeyHeader:   "X-SSS-App-Key",
		}),
		// Government service insurance.
		"GSIS": normalize(Strategy{
			ClientIDHeader: "X-GSIS-Client",
		}),
		// Housing fund.
		"PAGIBIG": normalize(Strategy{
			PathPrefix:     "/api/v2",
			ClientIDHeader: "X-Pagibig-Client-Id",
		}),
		// Tax authority.
		"BIR": normalize(Strategy{
			PathPrefix:     "/ws/v1",
			ClientIDHeader: "X-BIR-Client-Key",
			APIKeyHeader:   "X-BIR-Access-Token",
		}),
		// Banking regulator.
		"BSP": normalize(Strategy{
			ClientIDHeader: "X-BSP-Institution-Id",
		}),
		// Local government units share one convention under the LGU- family.
		"LGU": normalize(Strategy{
			ClientIDHeader: "X-LGU-Client",
		}),
	}
}

func normalize(s Strategy) Strategy {
	if s.ContentType == "" {
		s.ContentType = defaultContentType
	}
	if s.Accept == "" {
		s.Accept = s.ContentType
	}
	if s.ClientIDHeader == "" {
		s.ClientIDHeader = defaultClientIDHeader
	}
	if s.APIKeyHeader == "" {
		s.APIKeyHeader = defaultAPIKeyHeader
	}
	if s.HealthEndpoint == "" {
		s.HealthEndpoint = defaultHealthEndpoint
	}
	return s
}

// Resolve returns the strategy for a system code, falling back to the generic
// convention. Longest registered prefix wins.
func (b *Builder) Resolve(systemCode string) Strategy {
	var (
		best    Strategy
		bestLen = -1
	)
	for prefix, s := range b.strategies {
		if strings.HasPrefix(systemCode, prefix) && len(prefix) > bestLen {
			best, bestLen = s, len(prefix)
		}
	}
	if bestLen < 0 {
		return defaultStrategy
	}
	return best
}

// BuildURL joins base URL, partner path prefix, and endpoint with exactly one
// separator at each seam.
func (b *Builder) BuildURL(cfg *models.SystemConfig, endpoint string) string {
	s := b.Resolve(cfg.SystemCode)
	return joinPath(joinPath(cfg.BaseURL, s.PathPrefix), endpoint)
}

// Build assembles the full outbound header set: baseline headers, caller
// overrides, then auth and client identification. Caller headers may override
// the baseline but never the auth headers.
func (b *Builder) Build(cfg *models.SystemConfig, req *models.Request) (http.Header, error) {
	s := b.Resolve(cfg.SystemCode)
	h := http.Header{}

	h.Set("Content-Type", s.ContentType)
	h.Set("Accept", s.Accept)
	h.Set("X-Request-ID", orGenerated(req.RequestID))
	if req.CorrelationID != "" {
		h.Set("X-Correlation-ID", req.CorrelationID)
	}
	if req.UserID != "" {
		h.Set("X-User-ID", req.UserID)
	}
	h.Set("X-Timestamp", b.now().UTC().Format(time.RFC3339))

	for name, value := range req.Headers {
		h.Set(name, value)
	}

	if err := b.applyAuth(&s, cfg, h); err != nil {
		return nil, err
	}
	if cfg.ClientID != "" {
		h.Set(s.ClientIDHeader, cfg.ClientID)
	}
	return h, nil
}

func (b *Builder) applyAuth(s *Strategy, cfg *models.SystemConfig, h http.Header) error {
	switch cfg.AuthType {
	case models.AuthAPIKey:
		h.Set(s.APIKeyHeader, cfg.APIKey)
	case models.AuthBearer:
		token := cfg.APIKey
		if token == "" {
			// No static token configured; mint a short-lived client assertion.
			minted, err := b.assertions.sign(cfg)
			if err != nil {
				return err
			}
			token = minted
		}
		h.Set("Authorization", "Bearer "+token)
	case models.AuthNone:
	}
	return nil
}

func orGenerated(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func joinPath(left, right string) string {
	if right == "" {
		return left
	}
	return strings.TrimRight(left, "/") + "/" + strings.TrimLeft(right, "/")
}
