// Package config loads the engine configuration from a YAML file with
// environment-variable overrides. Every knob has a sane default so an
// empty configuration boots a fully in-memory engine.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/agui/internal/observability"
)

// ServerConfig tunes the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the storage backend. An empty DSN keeps all
// state in memory.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig tunes the result cache.
type CacheConfig struct {
	// TTLHours for completed responses, clamped into [1,168]. Default 24.
	TTLHours int `yaml:"ttl_hours"`
}

// RateLimitConfig tunes the in-memory limiter.
type RateLimitConfig struct {
	// MemoryTTL evicts per-user counters untouched for this long. Default 1h.
	MemoryTTL time.Duration `yaml:"memory_ttl"`
	// CleanupInterval is the sweeper period. Default 10m.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// RetentionConfig sets the per-tier audit retention in days.
type RetentionConfig struct {
	FreeDays       int `yaml:"free_days"`
	ProDays        int `yaml:"pro_days"`
	EnterpriseDays int `yaml:"enterprise_days"`
	// SweepInterval is the deletion period. Default 1h.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// LLMConfig selects and tunes the model provider.
type LLMConfig struct {
	// Provider is "openai" or "mock". Default "openai" when an API key is
	// present, "mock" otherwise.
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	// MaxRetries is the retry budget for transient model errors. Default 3.
	MaxRetries int `yaml:"max_retries"`
	// BaseDelay seeds the exponential backoff. Default 1s.
	BaseDelay time.Duration `yaml:"base_delay"`
}

// Config is the full engine configuration.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Log       observability.LogConfig   `yaml:"log"`
	Trace     observability.TraceConfig `yaml:"trace"`
	Database  DatabaseConfig            `yaml:"database"`
	Cache     CacheConfig               `yaml:"cache"`
	RateLimit RateLimitConfig           `yaml:"rate_limit"`
	Retention RetentionConfig           `yaml:"retention"`
	LLM       LLMConfig                 `yaml:"llm"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: observability.LogConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Cache: CacheConfig{TTLHours: 24},
		RateLimit: RateLimitConfig{
			MemoryTTL:       time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		Retention: RetentionConfig{
			FreeDays:       7,
			ProDays:        30,
			EnterpriseDays: 90,
			SweepInterval:  time.Hour,
		},
		LLM: LLMConfig{
			Model:      "gpt-4o-mini",
			MaxRetries: 3,
			BaseDelay:  time.Second,
		},
	}
}

// Load reads the YAML file at path into the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values from the environment. AGUI_* variables
// win over the file; OPENAI_API_KEY is honored for the key alone.
func (c *Config) applyEnv() {
	if v := os.Getenv("AGUI_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("AGUI_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("AGUI_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("AGUI_CACHE_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.TTLHours = n
		}
	}
	if v := os.Getenv("AGUI_OTLP_ENDPOINT"); v != "" {
		c.Trace.Endpoint = v
	}
	if v := os.Getenv("AGUI_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("AGUI_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}

	if c.LLM.Provider == "" {
		if c.LLM.APIKey != "" {
			c.LLM.Provider = "openai"
		} else {
			c.LLM.Provider = "mock"
		}
	}
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for the openai provider")
		}
	case "mock":
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	if c.Cache.TTLHours < 0 {
		return fmt.Errorf("cache.ttl_hours must not be negative")
	}
	return nil
}
