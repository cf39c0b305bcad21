package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration so main stays lean.
type Server struct {
	Addr     string
	LogLevel string

	PostgresURL string
	RedisURL    string

	KafkaBrokers    []string
	KafkaAuditTopic string

	// Base64-encoded 256-bit key for sealing partner credentials at rest.
	// Empty disables sealing (development only).
	SealingKey string

	// JSON object of system code to retry policy override, decoded by
	// retry.ParsePolicyOverrides.
	RetryOverrides string

	HTTPClientTimeout time.Duration
}

// ResponseCacheTTL bounds how long a successful GET response may be served
// without contacting the partner again.
var ResponseCacheTTL = 5 * time.Minute

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	return Server{
		Addr:              envOr("GATEWAY_ADDR", ":8080"),
		LogLevel:          envOr("GATEWAY_LOG_LEVEL", "info"),
		PostgresURL:       os.Getenv("GATEWAY_POSTGRES_URL"),
		RedisURL:          os.Getenv("GATEWAY_REDIS_URL"),
		KafkaBrokers:      splitList(os.Getenv("GATEWAY_KAFKA_BROKERS")),
		KafkaAuditTopic:   envOr("GATEWAY_KAFKA_AUDIT_TOPIC", "gateway.dispatch.audit"),
		SealingKey:        os.Getenv("GATEWAY_SEALING_KEY"),
		RetryOverrides:    os.Getenv("GATEWAY_RETRY_OVERRIDES"),
		HTTPClientTimeout: envDurationOr("GATEWAY_HTTP_CLIENT_TIMEOUT", 30*time.Second),
	}
}

// RedisConfig tunes the shared Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisFromEnv builds Redis settings with development defaults.
func RedisFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("GATEWAY_REDIS_URL"),
		PoolSize:     envIntOr("GATEWAY_REDIS_POOL_SIZE", 10),
		MinIdleConns: envIntOr("GATEWAY_REDIS_MIN_IDLE", 2),
		DialTimeout:  envDurationOr("GATEWAY_REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDurationOr("GATEWAY_REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDurationOr("GATEWAY_REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
