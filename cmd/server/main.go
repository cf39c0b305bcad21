// Command server runs the external system integration gateway: it resolves
// partner configuration, applies rate limits and caching, and dispatches
// outbound calls with retry on behalf of the registry services.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"interop-gateway/internal/gateway/audit"
	"interop-gateway/internal/gateway/batch"
	"interop-gateway/internal/gateway/cache"
	"interop-gateway/internal/gateway/dispatcher"
	"interop-gateway/internal/gateway/handler"
	"interop-gateway/internal/gateway/headers"
	"interop-gateway/internal/gateway/health"
	"interop-gateway/internal/gateway/metrics"
	"interop-gateway/internal/gateway/ratelimit"
	"interop-gateway/internal/gateway/registry"
	"interop-gateway/internal/gateway/registry/store"
	"interop-gateway/internal/gateway/retry"
	"interop-gateway/internal/platform/config"
	"interop-gateway/internal/platform/httpserver"
	"interop-gateway/internal/platform/logger"
	"interop-gateway/internal/platform/postgres"
	platformredis "interop-gateway/internal/platform/redis"
	httptransport "interop-gateway/internal/transport/http"
	"interop-gateway/pkg/platform/secrets"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Registry store: postgres when configured, in-memory otherwise.
	var regStore store.Store = store.NewInMemory()
	if cfg.PostgresURL != "" {
		pool, err := postgres.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("postgres connection failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		var storeOpts []store.PostgresOption
		if cfg.SealingKey != "" {
			sealer, err := secrets.NewSealer(cfg.SealingKey)
			if err != nil {
				log.Error("invalid sealing key", "error", err)
				os.Exit(1)
			}
			storeOpts = append(storeOpts, store.WithSealer(sealer))
		}
		regStore = store.NewPostgres(pool, storeOpts...)
	}

	reg, err := registry.New(regStore, registry.WithLogger(log))
	if err != nil {
		log.Error("registry init failed", "error", err)
		os.Exit(1)
	}

	// Response cache: redis when configured, in-memory otherwise.
	var respCache cache.ResponseCache = cache.NewInMemory(config.ResponseCacheTTL)
	redisClient, err := platformredis.New(config.RedisFromEnv())
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		respCache = cache.NewRedis(redisClient.Client, config.ResponseCacheTTL)
	}

	// Audit pipeline: kafka sink when brokers are configured.
	var sink audit.Sink = audit.NewInMemorySink()
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		if err != nil {
			log.Error("kafka audit sink init failed", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	}
	publisher := audit.NewPublisher(0)
	go func() {
		if err := audit.NewWorker(sink, publisher.Inbox()).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit worker stopped", "error", err)
		}
	}()

	gatewayMetrics := metrics.New()
	tracker := health.NewTracker()

	core, err := dispatcher.New(reg, ratelimit.New(), respCache, headers.NewBuilder(),
		dispatcher.WithLogger(log),
		dispatcher.WithMetrics(gatewayMetrics),
		dispatcher.WithAuditPublisher(publisher),
		dispatcher.WithHTTPClient(&http.Client{Timeout: cfg.HTTPClientTimeout}),
	)
	if err != nil {
		log.Error("dispatcher init failed", "error", err)
		os.Exit(1)
	}

	retryOverrides, err := retry.ParsePolicyOverrides(cfg.RetryOverrides)
	if err != nil {
		log.Error("invalid retry overrides", "error", err)
		os.Exit(1)
	}

	resilient, err := retry.New(core, retry.NewPolicyResolver(retryOverrides), tracker,
		retry.WithLogger(log),
		retry.WithMetrics(gatewayMetrics),
	)
	if err != nil {
		log.Error("retry service init failed", "error", err)
		os.Exit(1)
	}

	batcher, err := batch.New(resilient, batch.WithLogger(log))
	if err != nil {
		log.Error("batch coordinator init failed", "error", err)
		os.Exit(1)
	}

	h := handler.New(resilient, batcher, core, reg, tracker, respCache, log)
	router := httptransport.NewRouter(h, log)
	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("gateway listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
