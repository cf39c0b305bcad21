package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"interop-gateway/internal/gateway/models"
	"interop-gateway/pkg/platform/secrets"
	"interop-gateway/pkg/platform/sentinel"
)

// PostgresStore persists system configurations in PostgreSQL. Partner
// credentials are sealed before they hit the row and opened on load when a
// Sealer is configured.
type PostgresStore struct {
	pool   *pgxpool.Pool
	sealer *secrets.Sealer
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithSealer enables credential sealing at rest.
func WithSealer(sealer *secrets.Sealer) PostgresOption {
	return func(s *PostgresStore) {
		s.sealer = sealer
	}
}

// NewPostgres constructs a PostgreSQL-backed system configuration store.
func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{pool: pool}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const systemColumns = `system_code, name, base_url, auth_type, api_key, client_id, client_secret,
	is_active, status, last_health_check,
	max_calls_per_minute, max_calls_per_hour, max_calls_per_day,
	total_successful_calls, total_failed_calls, last_successful_call, last_failed_call,
	average_response_time_ms, created_at, updated_at`

func (s *PostgresStore) FindBySystemCode(ctx context.Context, systemCode string) (*models.SystemConfig, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+systemColumns+` FROM external_systems WHERE system_code = $1`, systemCode)

	cfg, err := s.scanSystem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find system %s: %w", systemCode, err)
	}
	return cfg, nil
}

func (s *PostgresStore) Save(ctx context.Context, cfg *models.SystemConfig) error {
	apiKey, clientSecret, err := s.sealCredentials(cfg)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO external_systems (`+systemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (system_code) DO UPDATE SET
			name = EXCLUDED.name,
			base_url = EXCLUDED.base_url,
			auth_type = EXCLUDED.auth_type,
			api_key = EXCLUDED.api_key,
			client_id = EXCLUDED.client_id,
			client_secret = EXCLUDED.client_secret,
			is_active = EXCLUDED.is_active,
			status = EXCLUDED.status,
			last_health_check = EXCLUDED.last_health_check,
			max_calls_per_minute = EXCLUDED.max_calls_per_minute,
			max_calls_per_hour = EXCLUDED.max_calls_per_hour,
			max_calls_per_day = EXCLUDED.max_calls_per_day,
			total_successful_calls = EXCLUDED.total_successful_calls,
			total_failed_calls = EXCLUDED.total_failed_calls,
			last_successful_call = EXCLUDED.last_successful_call,
			last_failed_call = EXCLUDED.last_failed_call,
			average_response_time_ms = EXCLUDED.average_response_time_ms,
			updated_at = EXCLUDED.updated_at`,
		cfg.SystemCode, cfg.Name, cfg.BaseURL, string(cfg.AuthType), apiKey, cfg.ClientID, clientSecret,
		cfg.IsActive, string(cfg.Status), nullTime(cfg.LastHealthCheck),
		cfg.MaxCallsPerMinute, cfg.MaxCallsPerHour, cfg.MaxCallsPerDay,
		cfg.TotalSuccessfulCalls, cfg.TotalFailedCalls, nullTime(cfg.LastSuccessfulCall), nullTime(cfg.LastFailedCall),
		cfg.AverageResponseTimeMs, cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save system %s: %w", cfg.SystemCode, err)
	}
	return nil
}

// RecordOutcome folds one call outcome into the row in a single UPDATE. The
// counter arithmetic runs in the database, so concurrent recorders and other
// gateway instances never overwrite each other's increments.
func (s *PostgresStore) RecordOutcome(ctx context.Context, systemCode string, success bool, responseTimeMs int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE external_systems SET
			total_successful_calls = total_successful_calls + CASE WHEN $2 THEN 1 ELSE 0 END,
			total_failed_calls = total_failed_calls + CASE WHEN $2 THEN 0 ELSE 1 END,
			last_successful_call = CASE WHEN $2 THEN $3 ELSE last_successful_call END,
			last_failed_call = CASE WHEN $2 THEN last_failed_call ELSE $3 END,
			status = CASE
				WHEN NOT $2 THEN 'ERROR'
				WHEN is_active THEN 'ACTIVE'
				ELSE status END,
			average_response_time_ms = (average_response_time_ms * (total_successful_calls + total_failed_calls) + $4)
				/ (total_successful_calls + total_failed_calls + 1),
			updated_at = $3
		WHERE system_code = $1`,
		systemCode, success, at, responseTimeMs,
	)
	if err != nil {
		return fmt.Errorf("record outcome for %s: %w", systemCode, err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// RecordHealthCheck stamps a probe result on the row in one UPDATE.
func (s *PostgresStore) RecordHealthCheck(ctx context.Context, systemCode string, healthy bool, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE external_systems SET
			last_health_check = $3,
			status = CASE
				WHEN NOT is_active THEN 'INACTIVE'
				WHEN $2 THEN 'ACTIVE'
				ELSE 'ERROR' END,
			updated_at = $3
		WHERE system_code = $1`,
		systemCode, healthy, at,
	)
	if err != nil {
		return fmt.Errorf("record health check for %s: %w", systemCode, err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindAll(ctx context.Context) ([]*models.SystemConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+systemColumns+` FROM external_systems ORDER BY system_code`)
	if err != nil {
		return nil, fmt.Errorf("list systems: %w", err)
	}
	defer rows.Close()

	var out []*models.SystemConfig
	for rows.Next() {
		cfg, err := s.scanSystem(rows)
		if err != nil {
			return nil, fmt.Errorf("list systems: %w", err)
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list systems: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) sealCredentials(cfg *models.SystemConfig) (apiKey, clientSecret string, err error) {
	apiKey, clientSecret = cfg.APIKey, cfg.ClientSecret
	if s.sealer == nil {
		return apiKey, clientSecret, nil
	}
	if apiKey, err = s.sealer.Seal(cfg.APIKey); err != nil {
		return "", "", fmt.Errorf("seal api key: %w", err)
	}
	if clientSecret, err = s.sealer.Seal(cfg.ClientSecret); err != nil {
		return "", "", fmt.Errorf("seal client secret: %w", err)
	}
	return apiKey, clientSecret, nil
}

func (s *PostgresStore) scanSystem(row pgx.Row) (*models.SystemConfig, error) {
	var (
		cfg                                         models.SystemConfig
		authType, status                            string
		lastHealthCheck, lastSuccessful, lastFailed *time.Time
	)
	err := row.Scan(
		&cfg.SystemCode, &cfg.Name, &cfg.BaseURL, &authType, &cfg.APIKey, &cfg.ClientID, &cfg.ClientSecret,
		&cfg.IsActive, &status, &lastHealthCheck,
		&cfg.MaxCallsPerMinute, &cfg.MaxCallsPerHour, &cfg.MaxCallsPerDay,
		&cfg.TotalSuccessfulCalls, &cfg.TotalFailedCalls, &lastSuccessful, &lastFailed,
		&cfg.AverageResponseTimeMs, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cfg.AuthType = models.AuthType(authType)
	cfg.Status = models.SystemStatus(status)
	cfg.LastHealthCheck = derefTime(lastHealthCheck)
	cfg.LastSuccessfulCall = derefTime(lastSuccessful)
	cfg.LastFailedCall = derefTime(lastFailed)

	if s.sealer != nil {
		if cfg.APIKey, err = s.sealer.Open(cfg.APIKey); err != nil {
			return nil, fmt.Errorf("open api key for %s: %w", cfg.SystemCode, err)
		}
		if cfg.ClientSecret, err = s.sealer.Open(cfg.ClientSecret); err != nil {
			return nil, fmt.Errorf("open client secret for %s: %w", cfg.SystemCode, err)
		}
	}
	return &cfg, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
