package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env     string
	ApiPort string

	DBUser  string
	DBPass  string
	DBHost  string
	DBPort  string
	DBName  string
	SSLMode string

	RedisHost string
	RedisPort string

	NatsHost string
	NatsPort string

	// Tuning knobs, documented with their defaults in README/env.
	PoolSize           int
	ConnectionTimeout  time.Duration
	QueryTimeout       time.Duration
	CreditOpTimeout    time.Duration
	MaxRetries         int
	RetryBaseDelay     time.Duration
	SlowQueryThreshold time.Duration
}

// New loads and validates configuration from environment variables.
// Redis and NATS are optional: when their hosts are unset the balance cache
// and the event bus/worker are simply not wired.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:     getEnv("CREDITS_ENV", "development"),
		ApiPort: getEnv("CREDITS_API_PORT", "8080"),

		DBUser:  os.Getenv("CREDITS_POSTGRES_USER"),
		DBPass:  os.Getenv("CREDITS_POSTGRES_PASSWORD"),
		DBHost:  os.Getenv("CREDITS_POSTGRES_HOST"),
		DBPort:  getEnv("CREDITS_POSTGRES_PORT", "5432"),
		DBName:  os.Getenv("CREDITS_POSTGRES_DB"),
		SSLMode: getEnv("CREDITS_POSTGRES_SSLMODE", "disable"),

		RedisHost: os.Getenv("CREDITS_REDIS_HOST"),
		RedisPort: getEnv("CREDITS_REDIS_PORT", "6379"),

		NatsHost: os.Getenv("CREDITS_NATS_HOST"),
		NatsPort: getEnv("CREDITS_NATS_PORT", "4222"),

		PoolSize:           getEnvInt("DATABASE_POOL_SIZE", 10),
		ConnectionTimeout:  getEnvMillis("DATABASE_CONNECTION_TIMEOUT", 10000),
		QueryTimeout:       getEnvMillis("DATABASE_QUERY_TIMEOUT", 5000),
		CreditOpTimeout:    getEnvMillis("CREDIT_OPERATION_TIMEOUT", 3000),
		MaxRetries:         getEnvInt("DATABASE_MAX_RETRIES", 3),
		RetryBaseDelay:     getEnvMillis("DATABASE_RETRY_DELAY_MS", 1000),
		SlowQueryThreshold: getEnvMillis("SLOW_QUERY_THRESHOLD_MS", 1000),
	}

	if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" {
		return nil, fmt.Errorf("missing required env for database: CREDITS_POSTGRES_USER/HOST/DB")
	}
	if cfg.Env != "development" && cfg.Env != "production" {
		return nil, fmt.Errorf("invalid CREDITS_ENV %q, must be 'development' or 'production'", cfg.Env)
	}
	if cfg.PoolSize < 1 {
		return nil, fmt.Errorf("DATABASE_POOL_SIZE must be positive, got %d", cfg.PoolSize)
	}
	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("DATABASE_MAX_RETRIES must be positive, got %d", cfg.MaxRetries)
	}

	return cfg, nil
}

func (c *Config) Development() bool {
	return c.Env != "production"
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

// RedisAddr returns the cache address, or "" when the cache is disabled.
func (c *Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// NatsAddr returns the bus address, or "" when the bus is disabled.
func (c *Config) NatsAddr() string {
	if c.NatsHost == "" {
		return ""
	}
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

func (c *Config) ApiAddr() string {
	return ":" + c.ApiPort
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Millisecond
}
