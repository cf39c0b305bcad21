// Package registry resolves partner system configuration and keeps its
// running statistics current. Every dispatch re-reads the store so that
// administrative deactivation takes effect on the next call.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"interop-gateway/internal/gateway/models"
	"interop-gateway/internal/gateway/registry/store"
	"interop-gateway/pkg/platform/sentinel"
	"interop-gateway/pkg/requestcontext"
)

type Service struct {
	store  store.Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(st store.Store, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("registry store is required")
	}

	svc := &Service{store: st, logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Lookup returns the current configuration for a system code.
// Returns sentinel.ErrNotFound when the system is not registered.
func (s *Service) Lookup(ctx context.Context, systemCode string) (*models.SystemConfig, error) {
	if systemCode == "" {
		return nil, sentinel.ErrNotFound
	}
	return s.store.FindBySystemCode(ctx, systemCode)
}

// List returns all registered systems.
func (s *Service) List(ctx context.Context) ([]*models.SystemConfig, error) {
	return s.store.FindAll(ctx)
}

// RecordOutcome folds one call outcome into the stored statistics. The store
// applies the increment atomically, so concurrent dispatchers never lose
// counts. A failed call moves status toward ERROR; a success restores ACTIVE
// unless the system was administratively deactivated. Configs are never
// deleted here.
func (s *Service) RecordOutcome(ctx context.Context, systemCode string, success bool, responseTimeMs int64) {
	err := s.store.RecordOutcome(ctx, systemCode, success, responseTimeMs, requestcontext.Now(ctx))
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "could not persist call outcome",
			"system_code", systemCode, "error", err)
	}
}

// RecordHealthCheck stores the result of a partner health probe.
func (s *Service) RecordHealthCheck(ctx context.Context, systemCode string, healthy bool) {
	err := s.store.RecordHealthCheck(ctx, systemCode, healthy, requestcontext.Now(ctx))
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "could not persist health check",
			"system_code", systemCode, "error", err)
	}
}
