package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func loadEnv(t *testing.T, env map[string]string) *Config {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := load(filepath.Join(t.TempDir(), ".env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadEnv(t, nil)

	if cfg.Port != "8080" || cfg.Env != "development" || cfg.Storage != StorageMemory {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.SyncInterval != 5*time.Minute || cfg.SyncTimeout != 2*time.Minute || cfg.FetchTimeout != 30*time.Second {
		t.Errorf("durations: %v %v %v", cfg.SyncInterval, cfg.SyncTimeout, cfg.FetchTimeout)
	}
	if cfg.SyncConcurrency != 4 || cfg.EnrichmentPageSize != 200 {
		t.Errorf("concurrency=%d page=%d", cfg.SyncConcurrency, cfg.EnrichmentPageSize)
	}
	if cfg.DBMaxConns != 10 || cfg.DBMinConns != 2 {
		t.Errorf("pool sizing %d/%d", cfg.DBMaxConns, cfg.DBMinConns)
	}
	if !reflect.DeepEqual(cfg.CORSOrigins, []string{"*"}) {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	cfg := loadEnv(t, map[string]string{
		"PORT":             "9000",
		"PUBLISHER_URLS":   "https://a.example.org/, https://b.example.org,https://a.example.org",
		"STORAGE":          "Postgres",
		"DATABASE_URL":     "postgres://u:p@localhost:5432/slots",
		"SYNC_INTERVAL":    "90s",
		"SYNC_CONCURRENCY": "8",
		"DEMO_MODE":        "true",
		"CORS_ORIGINS":     "https://app.example.org, https://admin.example.org",
	})

	if cfg.Port != "9000" || cfg.Storage != StoragePostgres || !cfg.DemoMode {
		t.Errorf("unexpected: %+v", cfg)
	}
	if cfg.SyncInterval != 90*time.Second || cfg.SyncConcurrency != 8 {
		t.Errorf("interval=%v concurrency=%d", cfg.SyncInterval, cfg.SyncConcurrency)
	}
	want := []string{"https://a.example.org", "https://b.example.org"}
	if got := cfg.PublisherList(); !reflect.DeepEqual(got, want) {
		t.Errorf("PublisherList = %v", got)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://admin.example.org" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PORT=7001\nLOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "7001" || cfg.LogLevel != "debug" {
		t.Errorf("env file not applied: port=%s level=%s", cfg.Port, cfg.LogLevel)
	}
}

func TestConfig_SandboxResolution(t *testing.T) {
	c := &Config{Port: "8080"}
	if !c.SandboxEnabled() {
		t.Error("sandbox should be enabled without publishers")
	}
	if got := c.ResolvedPublishers(); !reflect.DeepEqual(got, []string{"http://127.0.0.1:8080/sandbox"}) {
		t.Errorf("ResolvedPublishers = %v", got)
	}
	if c.ResolvedEnrichmentURL() != "" {
		t.Error("enrichment should be off outside demo mode")
	}

	c.DemoMode = true
	if c.ResolvedEnrichmentURL() != "http://127.0.0.1:8080/sandbox" {
		t.Errorf("demo enrichment = %q", c.ResolvedEnrichmentURL())
	}

	c = &Config{Port: "8080", PublisherURLs: "https://pub.example.org", EnrichmentURL: "https://npi.example.org/fhir/"}
	if c.SandboxEnabled() {
		t.Error("sandbox should be off with publishers and no demo mode")
	}
	if c.ResolvedEnrichmentURL() != "https://npi.example.org/fhir" {
		t.Errorf("ResolvedEnrichmentURL = %q", c.ResolvedEnrichmentURL())
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Storage: StorageMemory, LogLevel: "info",
			SyncTimeout: time.Minute, FetchTimeout: time.Second,
			SyncConcurrency: 1, EnrichmentPageSize: 10,
			DBMaxConns: 10, DBMinConns: 2,
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errHas string
	}{
		{"ok", func(c *Config) {}, ""},
		{"bad storage", func(c *Config) { c.Storage = "sqlite" }, "STORAGE"},
		{"postgres needs url", func(c *Config) { c.Storage = StoragePostgres }, "DATABASE_URL"},
		{"pool sizing", func(c *Config) {
			c.Storage, c.DatabaseURL, c.DBMinConns = StoragePostgres, "postgres://x", 20
		}, "DB_MIN_CONNS"},
		{"relative publisher", func(c *Config) { c.PublisherURLs = "pub.example.org" }, "PUBLISHER_URLS"},
		{"bad enrichment url", func(c *Config) { c.EnrichmentURL = "ftp://npi" }, "ENRICHMENT_URL"},
		{"zero timeout", func(c *Config) { c.FetchTimeout = 0 }, "FETCH_TIMEOUT"},
		{"zero concurrency", func(c *Config) { c.SyncConcurrency = 0 }, "SYNC_CONCURRENCY"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.errHas == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errHas) {
				t.Fatalf("error = %v, want mention of %s", err, tt.errHas)
			}
		})
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() || c.IsProduction() {
		t.Error("development misclassified")
	}
	c.Env = "production"
	if c.IsDev() || !c.IsProduction() {
		t.Error("production misclassified")
	}
}
