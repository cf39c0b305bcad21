package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"interop-gateway/internal/gateway/models"
	"interop-gateway/pkg/platform/sentinel"
)

// InMemoryStore keeps system configurations in process memory. It is the
// default for tests and single-node development; production deployments use
// the Postgres store.
type InMemoryStore struct {
	mu      sync.RWMutex
	systems map[string]*models.SystemConfig
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{systems: make(map[string]*models.SystemConfig)}
}

func (s *InMemoryStore) FindBySystemCode(_ context.Context, systemCode string) (*models.SystemConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.systems[systemCode]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *cfg
	return &clone, nil
}

func (s *InMemoryStore) Save(_ context.Context, cfg *models.SystemConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *cfg
	s.systems[cfg.SystemCode] = &clone
	return nil
}

// RecordOutcome mutates the stored config under the write lock, so concurrent
// recorders each land their increment.
func (s *InMemoryStore) RecordOutcome(_ context.Context, systemCode string, success bool, responseTimeMs int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.systems[systemCode]
	if !ok {
		return sentinel.ErrNotFound
	}
	cfg.ApplyOutcome(success, responseTimeMs, at)
	return nil
}

func (s *InMemoryStore) RecordHealthCheck(_ context.Context, systemCode string, healthy bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.systems[systemCode]
	if !ok {
		return sentinel.ErrNotFound
	}
	cfg.ApplyHealthCheck(healthy, at)
	return nil
}

func (s *InMemoryStore) FindAll(_ context.Context) ([]*models.SystemConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.SystemConfig, 0, len(s.systems))
	for _, cfg := range s.systems {
		clone := *cfg
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SystemCode < out[j].SystemCode })
	return out, nil
}
