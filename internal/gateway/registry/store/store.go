package store

import (
	"context"
	"time"

	"interop-gateway/internal/gateway/models"
)

// Store is the persistence abstraction for partner system configuration.
// The gateway treats it as a key-value store keyed by system code; schema and
// migrations belong to the administrative process that owns the rows.
//
// RecordOutcome and RecordHealthCheck mutate the statistics and status fields
// atomically in the store, so concurrent recorders never overwrite each
// other's increments. A read-modify-write through FindBySystemCode and Save
// does not have that guarantee.
type Store interface {
	FindBySystemCode(ctx context.Context, systemCode string) (*models.SystemConfig, error)
	Save(ctx context.Context, cfg *models.SystemConfig) error
	FindAll(ctx context.Context) ([]*models.SystemConfig, error)
	RecordOutcome(ctx context.Context, systemCode string, success bool, responseTimeMs int64, at time.Time) error
	RecordHealthCheck(ctx context.Context, systemCode string, healthy bool, at time.Time) error
}
