package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Lifecycle LifecycleConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level   string
	Format  string
	Service string
	Env     string
}

// Ticket number backends.
const (
	NumberBackendPostgres = "postgres"
	NumberBackendRedis    = "redis"
	NumberBackendMemory   = "memory"
)

// LifecycleConfig tunes the ticket lifecycle engine.
type LifecycleConfig struct {
	NumberBackend           string
	NumberPrefix            string
	NumberWidth             int
	AssignReopensClosed     bool
	StrictStatusTransitions bool
	HistorySummaryLimit     int
	SweepLockTTLSeconds     int
	SweepBatchLimit         int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	appName := getEnv("APP_NAME", "ticket-lifecycle-service")
	appEnv := getEnv("APP_ENV", "development")

	cfg := &Config{
		App: AppConfig{
			Name:                  appName,
			Env:                   appEnv,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Format:  getEnv("LOG_FORMAT", "json"),
			Service: appName,
			Env:     appEnv,
		},
		Lifecycle: LifecycleConfig{
			NumberBackend:           strings.ToLower(getEnv("TICKET_NUMBER_BACKEND", NumberBackendPostgres)),
			NumberPrefix:            getEnv("TICKET_NUMBER_PREFIX", "TCKT"),
			NumberWidth:             getEnvAsInt("TICKET_NUMBER_WIDTH", 6),
			AssignReopensClosed:     getEnvAsBool("ASSIGN_REOPENS_CLOSED", true),
			StrictStatusTransitions: getEnvAsBool("STRICT_STATUS_TRANSITIONS", false),
			HistorySummaryLimit:     getEnvAsInt("HISTORY_SUMMARY_LIMIT", 200),
			SweepLockTTLSeconds:     getEnvAsInt("SWEEP_LOCK_TTL_SECONDS", 240),
			SweepBatchLimit:         getEnvAsInt("SWEEP_BATCH_LIMIT", 0),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// SweepLockTTL returns how long a sweep holds the cross-instance lock.
func (l LifecycleConfig) SweepLockTTL() time.Duration {
	if l.SweepLockTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(l.SweepLockTTLSeconds) * time.Second
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
