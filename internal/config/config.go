package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the collector service configuration.
type Config struct {
	API        APIConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Ingest     IngestConfig
	RateLimit  RateLimitConfig
	Security   SecurityConfig
	Monitoring MonitoringConfig
}

type APIConfig struct {
	Port        string
	Host        string
	Environment string
	BodyLimit   int
}

type DatabaseConfig struct {
	URL          string
	MaxConns     int
	MaxIdleConns int
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	// MetricsTTL bounds how long per-day ingest counters are kept.
	MetricsTTL time.Duration
}

type IngestConfig struct {
	MaxBatchSize int
	// MaxClockSkew is how far in the future an event timestamp may be.
	MaxClockSkew time.Duration
}

type RateLimitConfig struct {
	Requests         int
	Window           time.Duration
	RequestsByDevice int
	DeviceWindow     time.Duration
}

type SecurityConfig struct {
	CORSOrigins    []string
	TrustedProxies []string
	AnonymizeIP    bool
}

type MonitoringConfig struct {
	EnableMetrics bool
	LogLevel      string
}

func Load() (*Config, error) {
	cfg := &Config{
		API: APIConfig{
			Port:        getEnv("API_PORT", "7070"),
			Host:        getEnv("API_HOST", "0.0.0.0"),
			Environment: getEnv("ENVIRONMENT", "development"),
			BodyLimit:   getEnvInt("API_BODY_LIMIT", 1024*1024),
		},
		Database: DatabaseConfig{
			URL:          getEnv("DATABASE_URL", "postgresql://beacon:@localhost:5432/beacon?sslmode=disable"),
			MaxConns:     getEnvInt("DB_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			URL:        getEnv("REDIS_URL", "redis://localhost:6379"),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvInt("REDIS_DB", 0),
			MetricsTTL: getEnvDuration("REDIS_METRICS_TTL", 48*time.Hour),
		},
		Ingest: IngestConfig{
			MaxBatchSize: getEnvInt("INGEST_MAX_BATCH_SIZE", 500),
			MaxClockSkew: getEnvDuration("INGEST_MAX_CLOCK_SKEW", 24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Requests:         getEnvInt("RATE_LIMIT_REQUESTS", 1000),
			Window:           getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
			RequestsByDevice: getEnvInt("RATE_LIMIT_BY_DEVICE", 2000),
			DeviceWindow:     getEnvDuration("RATE_LIMIT_DEVICE_WINDOW", 1*time.Hour),
		},
		Security: SecurityConfig{
			CORSOrigins:    getEnvSlice("CORS_ORIGINS", []string{"*"}),
			TrustedProxies: getEnvSlice("TRUSTED_PROXIES", []string{}),
			AnonymizeIP:    getEnvBool("ANONYMIZE_IP", true),
		},
		Monitoring: MonitoringConfig{
			EnableMetrics: getEnvBool("ENABLE_METRICS", true),
			LogLevel:      getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Ingest.MaxBatchSize <= 0 {
		return fmt.Errorf("INGEST_MAX_BATCH_SIZE must be positive")
	}
	if c.API.BodyLimit <= 0 {
		return fmt.Errorf("API_BODY_LIMIT must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				result = append(result, item)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
