// Package cache keeps recent successful GET responses so slow or metered
// partners are not asked the same question twice within the TTL.
package cache

import (
	"context"

	"interop-gateway/internal/gateway/models"
)

// ResponseCache stores successful GET envelopes keyed by systemCode:endpoint.
// Implementations return sentinel.ErrNotFound on a miss or an expired entry.
type ResponseCache interface {
	Get(ctx context.Context, systemCode, endpoint string) (*models.Response, error)
	Put(ctx context.Context, systemCode, endpoint string, resp *models.Response) error
	Invalidate(ctx context.Context, systemCode string) error
	InvalidateAll(ctx context.Context) error
}

func key(systemCode, endpoint string) string {
	return systemCode + ":" + endpoint
}
