package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/smartsched/slotfinder/internal/config"
	"github.com/smartsched/slotfinder/internal/domain/enrichment"
	"github.com/smartsched/slotfinder/internal/domain/search"
)

// startApp serves a demo-mode app on a loopback port so its sandbox is
// reachable by its own sync engine.
func startApp(t *testing.T) *app {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		Port:               strconv.Itoa(ln.Addr().(*net.TCPAddr).Port),
		Env:                "test",
		LogLevel:           "info",
		Storage:            config.StorageMemory,
		SyncTimeout:        time.Minute,
		FetchTimeout:       10 * time.Second,
		SyncConcurrency:    2,
		EnrichmentPageSize: 100,
		DemoMode:           true,
		CORSOrigins:        []string{"*"},
		RateLimitRPS:       1000,
		RateLimitBurst:     1000,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}

	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		ln.Close()
		t.Fatalf("newApp: %v", err)
	}
	srv := httptest.NewUnstartedServer(a.echo)
	srv.Listener.Close()
	srv.Listener = ln
	srv.Start()
	t.Cleanup(func() {
		srv.Close()
		a.close(context.Background())
	})
	return a
}

func get(t *testing.T, a *app, path string, out interface{}) int {
	t.Helper()
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rec.Code
}

func TestApp_SyncsSandboxEndToEnd(t *testing.T) {
	a := startApp(t)

	res := a.engine.Sync(context.Background())
	if res.PublishersSucceeded != 1 || res.PublishersFailed != 0 {
		t.Fatalf("unexpected sync result: %+v", res)
	}
	if res.Resources["Slot"] == 0 || res.Resources["Location"] == 0 {
		t.Fatalf("nothing ingested: %v", res.Resources)
	}
	rep, ok := res.Hooks["enrichment"].(enrichment.Report)
	if !ok {
		t.Fatalf("enrichment hook report missing: %#v", res.Hooks)
	}
	if rep.Matched == 0 && !rep.Seeded {
		t.Errorf("enrichment did nothing: %+v", rep)
	}

	var result search.Result
	if code := get(t, a, "/api/search", &result); code != http.StatusOK {
		t.Fatalf("search status %d", code)
	}
	if result.Counts.Locations == 0 || result.Counts.AvailableSlots == 0 {
		t.Errorf("empty search after sync: %+v", result.Counts)
	}

	var manifest map[string]interface{}
	if code := get(t, a, "/fhir/$bulk-publish", &manifest); code != http.StatusOK {
		t.Fatalf("manifest status %d", code)
	}
	if outputs, _ := manifest["output"].([]interface{}); len(outputs) != 4 {
		t.Errorf("manifest outputs = %v", manifest["output"])
	}

	var health map[string]interface{}
	if code := get(t, a, "/health", &health); code != http.StatusOK || health["lastSync"] == nil {
		t.Errorf("health = %d %v", code, health)
	}
}

func TestApp_Routes(t *testing.T) {
	a := startApp(t)

	tests := []struct {
		path   string
		status int
	}{
		{"/health", http.StatusOK},
		{"/api/sync/status", http.StatusOK},
		{"/api/stats", http.StatusOK},
		{"/sandbox/$bulk-publish", http.StatusOK},
		{"/sandbox/Practitioner", http.StatusOK},
		{"/fhir/data/Patient.ndjson", http.StatusNotFound},
		{"/health/db", http.StatusNotFound},
	}
	for _, tt := range tests {
		if got := get(t, a, tt.path, nil); got != tt.status {
			t.Errorf("GET %s = %d, want %d", tt.path, got, tt.status)
		}
	}
}

func TestSourceName(t *testing.T) {
	tests := map[string]string{
		"":                              "demo",
		"https://npi.example.org/fhir":  "npi.example.org",
		"http://127.0.0.1:8080/sandbox": "127.0.0.1:8080",
	}
	for in, want := range tests {
		if got := sourceName(in); got != want {
			t.Errorf("sourceName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()
	for _, name := range []string{"serve", "sync", "migrate"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("missing subcommand %s", name)
		}
	}
	if cmd, _, err := root.Find([]string{"migrate", "status"}); err != nil || cmd.Name() != "status" {
		t.Error("missing migrate status")
	}
}
