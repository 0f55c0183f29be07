package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	PublisherURLs string `mapstructure:"PUBLISHER_URLS"`

	Storage     string `mapstructure:"STORAGE"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	SyncInterval    time.Duration `mapstructure:"SYNC_INTERVAL"`
	SyncTimeout     time.Duration `mapstructure:"SYNC_TIMEOUT"`
	FetchTimeout    time.Duration `mapstructure:"FETCH_TIMEOUT"`
	SyncConcurrency int           `mapstructure:"SYNC_CONCURRENCY"`

	EnrichmentURL      string `mapstructure:"ENRICHMENT_URL"`
	EnrichmentPageSize int    `mapstructure:"ENRICHMENT_PAGE_SIZE"`
	DemoMode           bool   `mapstructure:"DEMO_MODE"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	OTelExporterEndpoint string `mapstructure:"OTEL_EXPORTER_ENDPOINT"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "PUBLISHER_URLS",
	"STORAGE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"SYNC_INTERVAL", "SYNC_TIMEOUT", "FETCH_TIMEOUT", "SYNC_CONCURRENCY",
	"ENRICHMENT_URL", "ENRICHMENT_PAGE_SIZE", "DEMO_MODE",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"OTEL_EXPORTER_ENDPOINT",
}

// Load reads configuration from the environment and an optional .env file
// in the working directory. Environment variables win.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORAGE", StorageMemory)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("SYNC_INTERVAL", "5m")
	v.SetDefault("SYNC_TIMEOUT", "2m")
	v.SetDefault("FETCH_TIMEOUT", "30s")
	v.SetDefault("SYNC_CONCURRENCY", 4)
	v.SetDefault("ENRICHMENT_PAGE_SIZE", 200)
	v.SetDefault("DEMO_MODE", false)
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// PublisherList returns the configured publisher base URLs in order, without
// trailing slashes or duplicates.
func (c *Config) PublisherList() []string {
	var out []string
	seen := map[string]bool{}
	for _, u := range splitList(c.PublisherURLs) {
		u = strings.TrimRight(u, "/")
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// SandboxEnabled reports whether the built-in demo publisher is mounted.
func (c *Config) SandboxEnabled() bool {
	return c.DemoMode || len(c.PublisherList()) == 0
}

// SandboxURL is the base URL of the built-in demo publisher on this process.
func (c *Config) SandboxURL() string {
	return "http://127.0.0.1:" + c.Port + "/sandbox"
}

// ResolvedPublishers is PublisherList, falling back to the sandbox.
func (c *Config) ResolvedPublishers() []string {
	if list := c.PublisherList(); len(list) > 0 {
		return list
	}
	return []string{c.SandboxURL()}
}

// ResolvedEnrichmentURL is ENRICHMENT_URL, or the sandbox directory in demo
// mode. Empty disables enrichment.
func (c *Config) ResolvedEnrichmentURL() string {
	if c.EnrichmentURL != "" {
		return strings.TrimRight(c.EnrichmentURL, "/")
	}
	if c.DemoMode {
		return c.SandboxURL()
	}
	return ""
}

func (c *Config) ZerologLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE=%s", StoragePostgres)
		}
		if c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
		}
	default:
		return fmt.Errorf("STORAGE must be %q or %q, got %q", StorageMemory, StoragePostgres, c.Storage)
	}

	for _, u := range c.PublisherList() {
		if err := checkURL("PUBLISHER_URLS", u); err != nil {
			return err
		}
	}
	if c.EnrichmentURL != "" {
		if err := checkURL("ENRICHMENT_URL", c.EnrichmentURL); err != nil {
			return err
		}
	}

	if c.SyncInterval < 0 {
		return fmt.Errorf("SYNC_INTERVAL must not be negative")
	}
	if c.SyncTimeout <= 0 {
		return fmt.Errorf("SYNC_TIMEOUT must be positive")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	if c.SyncConcurrency < 1 {
		return fmt.Errorf("SYNC_CONCURRENCY must be at least 1, got %d", c.SyncConcurrency)
	}
	if c.EnrichmentPageSize < 1 {
		return fmt.Errorf("ENRICHMENT_PAGE_SIZE must be at least 1, got %d", c.EnrichmentPageSize)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

func checkURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s: %q is not an absolute http(s) URL", key, raw)
	}
	return nil
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
