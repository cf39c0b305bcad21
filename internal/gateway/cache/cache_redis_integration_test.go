//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"interop-gateway/internal/gateway/cache"
	"interop-gateway/internal/gateway/models"
	"interop-gateway/pkg/platform/sentinel"
	"interop-gateway/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *cache.RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.cache = cache.NewRedis(s.redis.Client, 5*time.Minute)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func envelope(systemCode string, body string) *models.Response {
	return &models.Response{
		Success:    true,
		StatusCode: 200,
		Body:       []byte(body),
		SystemCode: systemCode,
		Timestamp:  time.Now().UTC().Truncate(time.Millisecond),
	}
}

func (s *RedisCacheSuite) TestPutAndGet() {
	ctx := context.Background()
	want := envelope("PHILSYS", `{"verified":true}`)

	s.Require().NoError(s.cache.Put(ctx, "PHILSYS", "/api/v1/verify", want))

	got, err := s.cache.Get(ctx, "PHILSYS", "/api/v1/verify")
	s.Require().NoError(err)
	s.True(got.Success)
	s.JSONEq(`{"verified":true}`, string(got.Body))
	s.Equal("PHILSYS", got.SystemCode)
}

func (s *RedisCacheSuite) TestMiss() {
	_, err := s.cache.Get(context.Background(), "PHILSYS", "/never-stored")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisCacheSuite) TestExpiry() {
	ctx := context.Background()
	short := cache.NewRedis(s.redis.Client, 150*time.Millisecond)

	s.Require().NoError(short.Put(ctx, "SSS", "/api/members", envelope("SSS", `{}`)))

	_, err := short.Get(ctx, "SSS", "/api/members")
	s.Require().NoError(err)

	time.Sleep(300 * time.Millisecond)

	_, err = short.Get(ctx, "SSS", "/api/members")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisCacheSuite) TestScopedInvalidation() {
	ctx := context.Background()

	s.Require().NoError(s.cache.Put(ctx, "BIR", "/ws/v1/tin/1", envelope("BIR", `{}`)))
	s.Require().NoError(s.cache.Put(ctx, "BIR", "/ws/v1/tin/2", envelope("BIR", `{}`)))
	s.Require().NoError(s.cache.Put(ctx, "BSP", "/api/banks", envelope("BSP", `{}`)))

	s.Require().NoError(s.cache.Invalidate(ctx, "BIR"))

	_, err := s.cache.Get(ctx, "BIR", "/ws/v1/tin/1")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.cache.Get(ctx, "BIR", "/ws/v1/tin/2")
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.cache.Get(ctx, "BSP", "/api/banks")
	s.NoError(err, "other systems keep their entries")
}

func (s *RedisCacheSuite) TestInvalidateAll() {
	ctx := context.Background()

	s.Require().NoError(s.cache.Put(ctx, "BIR", "/a", envelope("BIR", `{}`)))
	s.Require().NoError(s.cache.Put(ctx, "BSP", "/b", envelope("BSP", `{}`)))

	s.Require().NoError(s.cache.InvalidateAll(ctx))

	_, err := s.cache.Get(ctx, "BIR", "/a")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.cache.Get(ctx, "BSP", "/b")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
