package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentry.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Store.Path != "agentry.db" {
		t.Errorf("expected default store path, got %s", cfg.Store.Path)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Dispatch.HistoryLimit != 50 {
		t.Errorf("expected history limit 50, got %d", cfg.Dispatch.HistoryLimit)
	}
	if cfg.Review.MinConfidence != 0.7 || cfg.Review.CriticalSeverity != "critical" {
		t.Errorf("unexpected review defaults: %+v", cfg.Review)
	}
	if cfg.Metrics.Enabled || cfg.Tracing.Enabled {
		t.Error("metrics and tracing must default to disabled")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
store:
  path: /var/lib/agentry/audit.db
logging:
  level: debug
  format: json
dispatch:
  max_parallel: 4
  timeout: 30s
review:
  min_confidence: 0.85
  critical_severity: sev1
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Store.Path != "/var/lib/agentry/audit.db" {
		t.Errorf("expected store path from file, got %s", cfg.Store.Path)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
	if cfg.Dispatch.MaxParallel != 4 {
		t.Errorf("expected max_parallel 4, got %d", cfg.Dispatch.MaxParallel)
	}
	if cfg.Dispatch.Timeout != 30*time.Second {
		t.Errorf("expected timeout 30s, got %s", cfg.Dispatch.Timeout)
	}
	if cfg.Review.MinConfidence != 0.85 || cfg.Review.CriticalSeverity != "sev1" {
		t.Errorf("unexpected review config: %+v", cfg.Review)
	}

	// Unset sections keep their defaults.
	if cfg.Store.MaxOpenConns != 25 {
		t.Errorf("expected default max_open_conns, got %d", cfg.Store.MaxOpenConns)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad log level", "logging:\n  level: loud\n"},
		{"bad log format", "logging:\n  format: xml\n"},
		{"bad exporter", "tracing:\n  exporter: carrier-pigeon\n"},
		{"sampling out of range", "tracing:\n  sampling_rate: 1.5\n"},
		{"negative confidence", "review:\n  min_confidence: -0.2\n"},
		{"oversized history limit", "dispatch:\n  history_limit: 100000\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for an explicitly named missing file")
	}
}

func TestTelemetryMapping(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: warn
  format: json
metrics:
  enabled: true
  listen_address: ":9191"
tracing:
  enabled: true
  exporter: otlp
  endpoint: collector:4317
  sampling_rate: 0.25
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	tc := cfg.Telemetry("1.2.3", "production")
	if tc.ServiceVersion != "1.2.3" || tc.Environment != "production" {
		t.Errorf("unexpected service metadata: %+v", tc)
	}
	if tc.Logging.Level != "warn" || tc.Logging.Format != "json" {
		t.Errorf("unexpected logging mapping: %+v", tc.Logging)
	}
	if !tc.Metrics.Enabled || tc.Metrics.ListenAddress != ":9191" {
		t.Errorf("unexpected metrics mapping: %+v", tc.Metrics)
	}
	if !tc.Tracing.Enabled || tc.Tracing.Exporter != "otlp" || tc.Tracing.SamplingRate != 0.25 {
		t.Errorf("unexpected tracing mapping: %+v", tc.Tracing)
	}
	if err := tc.Validate(); err != nil {
		t.Errorf("mapped telemetry config must validate: %v", err)
	}
}
