package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/iamgideonidoko/beacon/pkg/fingerprint"
)

// ClientConfig configures the tracking client. Durations are whole
// milliseconds so files read the same as the wire format.
type ClientConfig struct {
	ProjectID          string   `toml:"project_id"`
	Endpoint           string   `toml:"endpoint"`
	Debug              bool     `toml:"debug"`
	LogLevel           string   `toml:"log_level"`
	SamplingRate       float64  `toml:"sampling_rate"`
	BatchSize          int      `toml:"batch_size"`
	BatchTimeoutMs     int      `toml:"batch_timeout_ms"`
	RetryAttempts      int      `toml:"retry_attempts"`
	RetryBackoffMs     int      `toml:"retry_backoff_ms"`
	MaxRetryBackoffMs  int      `toml:"max_retry_backoff_ms"`
	PrivacyMode        string   `toml:"privacy_mode"`
	ExcludeComponents  []string `toml:"exclude_components"`
	AudioTimeoutMs     int      `toml:"audio_timeout_ms"`
	AllowedDomains     []string `toml:"allowed_domains"`
	BlockedDomains     []string `toml:"blocked_domains"`
	UserIDKey          string   `toml:"user_id_key"`
	SessionTimeoutMs   int      `toml:"session_timeout_ms"`
	MaxEventsPerPage   int      `toml:"max_events_per_page"`
	CompressionEnabled bool     `toml:"compression_enabled"`

	EventFilters EventFiltersConfig `toml:"event_filters"`
	Fingerprint  FingerprintConfig  `toml:"fingerprint"`
	Storage      StorageConfig      `toml:"storage"`
}

type EventFiltersConfig struct {
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
}

// FingerprintConfig tunes fingerprint drift detection.
type FingerprintConfig struct {
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	HardwareWeight      float64 `toml:"hardware_weight"`
	EnvironmentWeight   float64 `toml:"environment_weight"`
	SoftwareWeight      float64 `toml:"software_weight"`
}

// StorageConfig selects where the session and failed events live.
// Driver is one of memory, sqlite or redis.
type StorageConfig struct {
	Driver        string `toml:"driver"`
	Path          string `toml:"path"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Prefix        string `toml:"prefix"`
}

func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Endpoint:          "http://localhost:7070/events",
		LogLevel:          "info",
		SamplingRate:      1,
		BatchSize:         10,
		BatchTimeoutMs:    2000,
		RetryAttempts:     3,
		RetryBackoffMs:    1000,
		MaxRetryBackoffMs: 30000,
		PrivacyMode:       string(fingerprint.PrivacyBalanced),
		AudioTimeoutMs:    1000,
		UserIDKey:         "user_id",
		SessionTimeoutMs:  30 * 60 * 1000,
		MaxEventsPerPage:  100,
		Fingerprint: FingerprintConfig{
			SimilarityThreshold: 0.75,
			HardwareWeight:      0.8,
			EnvironmentWeight:   0.5,
			SoftwareWeight:      0.2,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "beacon.db",
			Prefix: "beacon",
		},
	}
}

// LoadClient reads the client configuration with ReadClient and
// validates it.
func LoadClient(path string) (*ClientConfig, error) {
	cfg, err := ReadClient(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadClient builds the client configuration from defaults, then the
// TOML file at path when one exists, then BEACON_* environment
// variables. Callers layering further overrides validate afterwards.
func ReadClient(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *ClientConfig) applyEnv() {
	c.ProjectID = getEnv("BEACON_PROJECT_ID", c.ProjectID)
	c.Endpoint = getEnv("BEACON_ENDPOINT", c.Endpoint)
	c.Debug = getEnvBool("BEACON_DEBUG", c.Debug)
	c.LogLevel = getEnv("BEACON_LOG_LEVEL", c.LogLevel)
	c.SamplingRate = getEnvFloat("BEACON_SAMPLING_RATE", c.SamplingRate)
	c.BatchSize = getEnvInt("BEACON_BATCH_SIZE", c.BatchSize)
	c.BatchTimeoutMs = getEnvInt("BEACON_BATCH_TIMEOUT_MS", c.BatchTimeoutMs)
	c.RetryAttempts = getEnvInt("BEACON_RETRY_ATTEMPTS", c.RetryAttempts)
	c.RetryBackoffMs = getEnvInt("BEACON_RETRY_BACKOFF_MS", c.RetryBackoffMs)
	c.MaxRetryBackoffMs = getEnvInt("BEACON_MAX_RETRY_BACKOFF_MS", c.MaxRetryBackoffMs)
	c.PrivacyMode = getEnv("BEACON_PRIVACY_MODE", c.PrivacyMode)
	c.ExcludeComponents = getEnvSlice("BEACON_EXCLUDE_COMPONENTS", c.ExcludeComponents)
	c.AudioTimeoutMs = getEnvInt("BEACON_AUDIO_TIMEOUT_MS", c.AudioTimeoutMs)
	c.CompressionEnabled = getEnvBool("BEACON_COMPRESSION_ENABLED", c.CompressionEnabled)
	c.Storage.Driver = getEnv("BEACON_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.Path = getEnv("BEACON_STORAGE_PATH", c.Storage.Path)
	c.Storage.RedisAddr = getEnv("BEACON_REDIS_ADDR", c.Storage.RedisAddr)
	c.Storage.RedisPassword = getEnv("BEACON_REDIS_PASSWORD", c.Storage.RedisPassword)
}

func (c *ClientConfig) Validate() error {
	if c.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling_rate must be between 0 and 1")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.RetryAttempts <= 0 {
		return fmt.Errorf("retry_attempts must be positive")
	}
	if c.MaxRetryBackoffMs < c.RetryBackoffMs {
		return fmt.Errorf("max_retry_backoff_ms must be at least retry_backoff_ms")
	}
	if c.BatchTimeoutMs <= 0 || c.RetryBackoffMs < 0 || c.AudioTimeoutMs <= 0 {
		return fmt.Errorf("batch_timeout_ms and audio_timeout_ms must be positive, retry_backoff_ms non-negative")
	}
	if _, ok := fingerprint.ParsePrivacyMode(c.PrivacyMode); !ok {
		return fmt.Errorf("privacy_mode must be strict, balanced or full, got %q", c.PrivacyMode)
	}
	if c.Fingerprint.SimilarityThreshold < 0 || c.Fingerprint.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be between 0 and 1")
	}
	switch c.Storage.Driver {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("storage driver must be memory, sqlite or redis, got %q", c.Storage.Driver)
	}
	return nil
}

func (c *ClientConfig) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutMs) * time.Millisecond
}

func (c *ClientConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

func (c *ClientConfig) MaxRetryBackoff() time.Duration {
	return time.Duration(c.MaxRetryBackoffMs) * time.Millisecond
}

func (c *ClientConfig) AudioTimeout() time.Duration {
	return time.Duration(c.AudioTimeoutMs) * time.Millisecond
}

func (c *ClientConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMs) * time.Millisecond
}

func (c *ClientConfig) Weights() fingerprint.Weights {
	return fingerprint.Weights{
		Hardware:    c.Fingerprint.HardwareWeight,
		Environment: c.Fingerprint.EnvironmentWeight,
		Software:    c.Fingerprint.SoftwareWeight,
	}
}
