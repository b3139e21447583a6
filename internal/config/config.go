// Package config loads the service configuration from YAML with environment
// overrides for deployment-sensitive values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry"`
	Cache     CacheConfig     `yaml:"cache"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Sync      SyncConfig      `yaml:"sync"`
	LogLevel  string          `yaml:"log_level"`
	Dev       bool            `yaml:"dev"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// UpstreamConfig holds the quote provider settings.
type UpstreamConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	RPS            float64       `yaml:"rps"`
	Burst          int           `yaml:"burst"`
}

// RateLimitConfig holds the per-client inbound limits.
type RateLimitConfig struct {
	APIRequests  int           `yaml:"api_requests"`
	APIWindow    time.Duration `yaml:"api_window"`
	SearchLimit  int           `yaml:"search_requests"`
	SearchWindow time.Duration `yaml:"search_window"`
}

// RetryConfig holds the bounded-retry settings for store operations.
type RetryConfig struct {
	StoreAttempts int           `yaml:"store_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
}

// CacheConfig selects the response cache backend.
type CacheConfig struct {
	RedisAddr string `yaml:"redis_addr"` // empty selects the in-memory cache
}

// PostgresConfig holds the ledger store settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// SyncConfig holds the quote sync engine settings.
type SyncConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	MaxAttempts     int           `yaml:"max_attempts"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	MaxBackoff      time.Duration `yaml:"max_backoff"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Upstream: UpstreamConfig{
			BaseURL:        "https://query1.finance.yahoo.com",
			RequestTimeout: 10 * time.Second,
			CacheTTL:       5 * time.Second,
			RPS:            2,
			Burst:          4,
		},
		RateLimit: RateLimitConfig{
			APIRequests:  100,
			APIWindow:    15 * time.Minute,
			SearchLimit:  10,
			SearchWindow: time.Minute,
		},
		Retry: RetryConfig{
			StoreAttempts: 5,
			BaseDelay:     500 * time.Millisecond,
			MaxDelay:      8 * time.Second,
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    10 * time.Second,
		},
		Sync: SyncConfig{
			RefreshInterval: 10 * time.Second,
			FetchTimeout:    15 * time.Second,
			MaxAttempts:     3,
			BaseDelay:       time.Second,
			MaxBackoff:      10 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load reads the config file at path, applies environment overrides, and
// validates the result. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if cfg.Dev {
		// Dev profile lowers the store retry budget and, absent a DSN,
		// runs on the in-memory store.
		cfg.Retry.StoreAttempts = 3
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PG_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if c.Retry.StoreAttempts < 1 {
		return fmt.Errorf("retry.store_attempts must be at least 1")
	}
	if c.Sync.RefreshInterval <= 0 {
		return fmt.Errorf("sync.refresh_interval must be positive")
	}
	if c.RateLimit.APIRequests < 1 || c.RateLimit.SearchLimit < 1 {
		return fmt.Errorf("rate_limit budgets must be at least 1")
	}
	return nil
}
