package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interop-gateway/internal/gateway/models"
	"interop-gateway/pkg/platform/sentinel"
)

func cachedResponse(systemCode string, body string) *models.Response {
	return &models.Response{
		Success:    true,
		StatusCode: 200,
		Body:       []byte(body),
		SystemCode: systemCode,
		Timestamp:  time.Now(),
	}
}

func TestInMemoryCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(5 * time.Minute)

	_, err := c.Get(ctx, "PHILHEALTH", "/members/123")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, c.Put(ctx, "PHILHEALTH", "/members/123", cachedResponse("PHILHEALTH", `{"ok":true}`)))

	got, err := c.Get(ctx, "PHILHEALTH", "/members/123")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"ok":true}`), got.Body)
	assert.True(t, got.Success)
}

func TestInMemoryCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := &now
	c := NewInMemory(5*time.Minute, WithClock(func() time.Time { return *clock }))

	require.NoError(t, c.Put(ctx, "BIR", "/taxpayer/42", cachedResponse("BIR", "v1")))

	// Four minutes in: still fresh.
	later := now.Add(4 * time.Minute)
	clock = &later
	_, err := c.Get(ctx, "BIR", "/taxpayer/42")
	require.NoError(t, err)

	// Six minutes in: expired and purged.
	expired := now.Add(6 * time.Minute)
	clock = &expired
	_, err = c.Get(ctx, "BIR", "/taxpayer/42")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryCache_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(5 * time.Minute)

	require.NoError(t, c.Put(ctx, "SSS", "/pensions", cachedResponse("SSS", "original")))

	first, err := c.Get(ctx, "SSS", "/pensions")
	require.NoError(t, err)
	first.Success = false

	second, err := c.Get(ctx, "SSS", "/pensions")
	require.NoError(t, err)
	assert.True(t, second.Success, "mutating a returned envelope must not poison the cache")
}

func TestInMemoryCache_InvalidateSystem(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(5 * time.Minute)

	require.NoError(t, c.Put(ctx, "GSIS", "/a", cachedResponse("GSIS", "a")))
	require.NoError(t, c.Put(ctx, "GSIS", "/b", cachedResponse("GSIS", "b")))
	require.NoError(t, c.Put(ctx, "LGU-QC", "/c", cachedResponse("LGU-QC", "c")))

	require.NoError(t, c.Invalidate(ctx, "GSIS"))

	_, err := c.Get(ctx, "GSIS", "/a")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = c.Get(ctx, "GSIS", "/b")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	_, err = c.Get(ctx, "LGU-QC", "/c")
	assert.NoError(t, err, "invalidation is scoped to one system")
}

func TestInMemoryCache_InvalidateAll(t *testing.T) {
	ctx := context.Background()
	c := NewInMemory(5 * time.Minute)

	require.NoError(t, c.Put(ctx, "GSIS", "/a", cachedResponse("GSIS", "a")))
	require.NoError(t, c.Put(ctx, "SSS", "/b", cachedResponse("SSS", "b")))

	require.NoError(t, c.InvalidateAll(ctx))

	for _, probe := range []struct{ system, endpoint string }{{"GSIS", "/a"}, {"SSS", "/b"}} {
		_, err := c.Get(ctx, probe.system, probe.endpoint)
		if !errors.Is(err, sentinel.ErrNotFound) {
			t.Fatalf("expected miss for %s%s after InvalidateAll, got %v", probe.system, probe.endpoint, err)
		}
	}
}
