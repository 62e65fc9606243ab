// Package config reads service configuration from the environment. A .env file
// in the working directory is loaded first when present; variables already set
// in the environment take precedence over it.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EventBackendRedis = "redis"
	EventBackendKafka = "kafka"
)

type Config struct {
	Port     string
	LogLevel string

	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBAutoSchema      bool
	StoreTimeout      time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
	CacheTTL      time.Duration
	CacheTimeout  time.Duration

	EventBackend      string
	EventTopic        string
	EventStreamMaxLen int64
	KafkaBrokers      []string
	KafkaGroupID      string

	PublishMaxAttempts    int
	PublishInitialBackoff time.Duration
	PublishMaxBackoff     time.Duration
	PublishAttemptTimeout time.Duration
	EmitterShards         int
	EmitterBuffer         int
	RedriveInterval       time.Duration
	RedriveBatch          int
}

// Load reads the configuration. It returns every malformed variable at once.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	p := &parser{}
	cfg := Config{
		Port:     getEnv("PORT", "8084"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:       databaseURL(),
		DBMaxOpenConns:    p.int("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    p.int("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: p.duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		DBAutoSchema:      p.bool("DB_AUTO_SCHEMA", true),
		StoreTimeout:      p.duration("STORE_TIMEOUT", 5*time.Second),

		RedisAddr:     redisAddr(),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       p.int("REDIS_DB", 0),
		RedisPoolSize: p.int("REDIS_POOL_SIZE", 10),
		CacheTTL:      p.duration("CACHE_TTL", 5*time.Minute),
		CacheTimeout:  p.duration("CACHE_TIMEOUT", 500*time.Millisecond),

		EventBackend:      strings.ToLower(getEnv("EVENT_BACKEND", EventBackendRedis)),
		EventTopic:        getEnv("EVENT_TOPIC", "transaction.events"),
		EventStreamMaxLen: int64(p.int("EVENT_STREAM_MAXLEN", 100000)),
		KafkaBrokers:      splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "transaction-consumer"),

		PublishMaxAttempts:    p.int("PUBLISH_MAX_ATTEMPTS", 5),
		PublishInitialBackoff: p.duration("PUBLISH_INITIAL_BACKOFF", 100*time.Millisecond),
		PublishMaxBackoff:     p.duration("PUBLISH_MAX_BACKOFF", 2*time.Second),
		PublishAttemptTimeout: p.duration("PUBLISH_ATTEMPT_TIMEOUT", 3*time.Second),
		EmitterShards:         p.int("EMITTER_SHARDS", 8),
		EmitterBuffer:         p.int("EMITTER_BUFFER", 256),
		RedriveInterval:       p.duration("REDRIVE_INTERVAL", 30*time.Second),
		RedriveBatch:          p.int("REDRIVE_BATCH", 100),
	}

	switch cfg.EventBackend {
	case EventBackendRedis, EventBackendKafka:
	default:
		p.errs = append(p.errs, fmt.Errorf("EVENT_BACKEND: unsupported backend %q", cfg.EventBackend))
	}
	if cfg.EventBackend == EventBackendKafka && len(cfg.KafkaBrokers) == 0 {
		p.errs = append(p.errs, errors.New("KAFKA_BROKERS: at least one broker is required"))
	}

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// databaseURL prefers DATABASE_URL and otherwise assembles a URL from the
// individual DB_* variables.
func databaseURL() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("DB_USERNAME", "postgres"), getEnv("DB_PASSWORD", "postgres")),
		Host:     net.JoinHostPort(getEnv("DB_HOST", "localhost"), getEnv("DB_PORT", "5432")),
		Path:     "/" + getEnv("DB_NAME", "transactions"),
		RawQuery: "sslmode=" + getEnv("DB_SSLMODE", "disable"),
	}
	return u.String()
}

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return net.JoinHostPort(getEnv("REDIS_HOST", "localhost"), getEnv("REDIS_PORT", "6379"))
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser collects conversion errors so Load can report them together.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		p.errs = append(p.errs, fmt.Errorf("%s: expected a non-negative integer, got %q", key, raw))
		return fallback
	}
	return v
}

func (p *parser) bool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: expected a boolean, got %q", key, raw))
		return fallback
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		p.errs = append(p.errs, fmt.Errorf("%s: expected a positive duration, got %q", key, raw))
		return fallback
	}
	return v
}
