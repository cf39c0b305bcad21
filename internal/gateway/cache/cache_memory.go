package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"interop-gateway/internal/gateway/models"
	"interop-gateway/pkg/platform/sentinel"
)

// InMemoryCache is the default single-node response cache. Entries expire
// after the configured TTL and are purged lazily on read.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	response *models.Response
	storedAt time.Time
}

// MemoryOption configures an InMemoryCache.
type MemoryOption func(*InMemoryCache)

// WithClock overrides the cache clock. Tests use it to age entries without
// sleeping.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *InMemoryCache) {
		c.now = now
	}
}

func NewInMemory(ttl time.Duration, opts ...MemoryOption) *InMemoryCache {
	c := &InMemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *InMemoryCache) Get(_ context.Context, systemCode, endpoint string) (*models.Response, error) {
	k := key(systemCode, endpoint)

	c.mu.RLock()
	entry, ok := c.entries[k]
	c.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	if c.now().Sub(entry.storedAt) > c.ttl {
		c.mu.Lock()
		// Re-check under the write lock; a fresh Put may have raced the expiry.
		if stale, ok := c.entries[k]; ok && stale.storedAt.Equal(entry.storedAt) {
			delete(c.entries, k)
		}
		c.mu.Unlock()
		return nil, sentinel.ErrNotFound
	}

	clone := *entry.response
	return &clone, nil
}

func (c *InMemoryCache) Put(_ context.Context, systemCode, endpoint string, resp *models.Response) error {
	clone := *resp
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key(systemCode, endpoint)] = memoryEntry{response: &clone, storedAt: c.now()}
	return nil
}

func (c *InMemoryCache) Invalidate(_ context.Context, systemCode string) error {
	prefix := systemCode + ":"
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

func (c *InMemoryCache) InvalidateAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	return nil
}
