package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func useMissingConfigFile(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing-config.yaml"))
	t.Setenv("TIMEZONE", "UTC")
}

func TestLoadDefaults(t *testing.T) {
	useMissingConfigFile(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ConsistentThreshold != 6 {
		t.Fatalf("unexpected consistent threshold default: %d", cfg.ConsistentThreshold)
	}
	if cfg.CoreThresholds.Cost != 1000 || cfg.CoreThresholds.Rank != 2 {
		t.Fatalf("unexpected core thresholds: %+v", cfg.CoreThresholds)
	}
	if cfg.TrendThresholds.Cost != 500 || cfg.TrendThresholds.MTBFDays != 0.2 {
		t.Fatalf("unexpected trend thresholds: %+v", cfg.TrendThresholds)
	}
	if !cfg.ShowIndicators || cfg.ExcludeRegional {
		t.Fatalf("unexpected flag defaults: show=%v exclude=%v", cfg.ShowIndicators, cfg.ExcludeRegional)
	}
	if cfg.SnapshotBackend != BackendSQLite {
		t.Fatalf("unexpected backend default: %q", cfg.SnapshotBackend)
	}
	if cfg.SnapshotDir != filepath.Join("./final_output", "snapshots") {
		t.Fatalf("unexpected snapshot dir default: %q", cfg.SnapshotDir)
	}
	if cfg.Location == nil || cfg.Location.String() != "UTC" {
		t.Fatalf("unexpected location: %v", cfg.Location)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
consistent_threshold: 8
exclude_regional: true
core_thresholds:
  tickets: 7
  cost: 2000
  availability_pct: 4
  mtbf_days: 1
  rank: 3
trend_thresholds:
  cost: 250
output_dir: "/tmp/yaml-out"
snapshot_backend: "files"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", cfgPath)
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("MR_CONSISTENT_THRESHOLD", "9")
	t.Setenv("MR_THRESH_AVAIL_PCT", "3.5")
	t.Setenv("MR_TREND_THRESH_RANK", "2")
	t.Setenv("MR_SHOW_INDICATORS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ConsistentThreshold != 9 {
		t.Fatalf("env should override yaml threshold, got %d", cfg.ConsistentThreshold)
	}
	if cfg.CoreThresholds.Cost != 2000 || cfg.CoreThresholds.AvailabilityPct != 3.5 {
		t.Fatalf("unexpected core thresholds: %+v", cfg.CoreThresholds)
	}
	if cfg.TrendThresholds.Cost != 250 || cfg.TrendThresholds.Rank != 2 {
		t.Fatalf("unexpected trend thresholds: %+v", cfg.TrendThresholds)
	}
	if cfg.TrendThresholds.AvailabilityPct != 2 {
		t.Fatalf("core alias must not touch trend availability, got %v", cfg.TrendThresholds.AvailabilityPct)
	}
	if !cfg.ExcludeRegional || cfg.ShowIndicators {
		t.Fatalf("unexpected flags: exclude=%v show=%v", cfg.ExcludeRegional, cfg.ShowIndicators)
	}
	if cfg.SnapshotBackend != BackendFiles || cfg.SnapshotDir != "/tmp/yaml-out/snapshots" {
		t.Fatalf("unexpected snapshot settings: %q %q", cfg.SnapshotBackend, cfg.SnapshotDir)
	}
}

func TestLoadRejectsInvalidThresholds(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"non-numeric consistent", map[string]string{"MR_CONSISTENT_THRESHOLD": "six"}},
		{"negative core cost", map[string]string{"MR_CORE_THRESH_COST": "-5"}},
		{"non-numeric trend mtbf", map[string]string{"MR_TREND_THRESH_MTBF_DAYS": "soon"}},
		{"negative rank", map[string]string{"MR_CORE_THRESH_RANK": "-1"}},
		{"zero window", map[string]string{"MR_WINDOW_MONTHS": "0"}},
		{"bad bool", map[string]string{"MR_EXCLUDE_REGIONAL": "maybe"}},
		{"unknown backend", map[string]string{"SNAPSHOT_BACKEND": "redis"}},
		{"bad schedule", map[string]string{"SCHEDULE": "every day"}},
		{"bad pattern", map[string]string{"MR_MEDIA_PATTERN": "(unclosed"}},
		{"bad timezone", map[string]string{"TIMEZONE": "Mars/Olympus"}},
		{"short http timeout", map[string]string{"EXTERNAL_HTTP_TIMEOUT_SECONDS": "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useMissingConfigFile(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("core_thresholds: [1, 2"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", cfgPath)
	if _, err := Load(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestConfiguredHelpers(t *testing.T) {
	cfg := Defaults()
	if cfg.SlackConfigured() || cfg.LLMConfigured() {
		t.Fatalf("defaults should not enable integrations")
	}
	cfg.SlackBotToken = "xoxb-test"
	cfg.SlackChannelID = "C123"
	cfg.AnthropicAPIKey = "sk-test"
	if !cfg.SlackConfigured() || !cfg.LLMConfigured() {
		t.Fatalf("expected integrations enabled")
	}
}
