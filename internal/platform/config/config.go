package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything main needs to wire the service. Values come
// from the environment so deployments stay twelve-factor; FromEnv keeps
// main lean.
type Config struct {
	Addr     string
	LogLevel string

	// PostgresDSN selects the durable credential store. Empty means the
	// in-memory store (single instance, development).
	PostgresDSN string
	// RedisURL selects Redis-backed session and attempt stores. Empty means
	// the in-memory stores.
	RedisURL string

	// KafkaBrokers enables the Kafka event sink when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	// Capture pipeline tunables.
	QualityFloor        float64
	FastRejectThreshold float64
	SessionTTL          time.Duration
	SweepInterval       time.Duration

	// Failure lockout tunables.
	SoftLockThreshold int
	SoftLockWindow    time.Duration
	HardLockThreshold int
	HardLockWindow    time.Duration

	Redis RedisConfig
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

// FromEnv builds a Config from environment variables, applying the capture
// protocol's default thresholds where nothing is set.
func FromEnv() Config {
	redisURL := getenv("BIOBIND_REDIS_URL", "")
	return Config{
		Addr:        getenv("BIOBIND_ADDR", ":8080"),
		LogLevel:    getenv("BIOBIND_LOG_LEVEL", "info"),
		PostgresDSN: getenv("BIOBIND_POSTGRES_DSN", ""),
		RedisURL:    redisURL,

		KafkaBrokers: splitList(getenv("BIOBIND_KAFKA_BROKERS", "")),
		KafkaTopic:   getenv("BIOBIND_KAFKA_TOPIC", "biobind.credential.events"),

		QualityFloor:        getfloat("BIOBIND_QUALITY_FLOOR", 0.6),
		FastRejectThreshold: getfloat("BIOBIND_FAST_REJECT_THRESHOLD", 0.7),
		SessionTTL:          getduration("BIOBIND_SESSION_TTL", 10*time.Minute),
		SweepInterval:       getduration("BIOBIND_SWEEP_INTERVAL", 30*time.Second),

		SoftLockThreshold: getint("BIOBIND_SOFT_LOCK_THRESHOLD", 5),
		SoftLockWindow:    getduration("BIOBIND_SOFT_LOCK_WINDOW", 5*time.Minute),
		HardLockThreshold: getint("BIOBIND_HARD_LOCK_THRESHOLD", 10),
		HardLockWindow:    getduration("BIOBIND_HARD_LOCK_WINDOW", 15*time.Minute),

		Redis: RedisConfig{
			URL:          redisURL,
			PoolSize:     getint("BIOBIND_REDIS_POOL_SIZE", 10),
			MinIdleConns: getint("BIOBIND_REDIS_MIN_IDLE", 2),
			DialTimeout:  getduration("BIOBIND_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getduration("BIOBIND_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getduration("BIOBIND_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getfloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
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
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
