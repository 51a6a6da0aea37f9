package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParsesOverridesOntoDefaults(t *testing.T) {
	path := writeTempConfig(t, `
polling_interval_ms: 2500
ml:
  enabled: true
  confidence_threshold: 0.8
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollingIntervalMs != 2500 {
		t.Fatalf("expected overridden polling interval, got %d", cfg.PollingIntervalMs)
	}
	if !cfg.ML.Enabled || cfg.ML.ConfidenceThreshold != 0.8 {
		t.Fatalf("expected ml overrides applied, got %+v", cfg.ML)
	}
	// Untouched fields keep their defaults.
	if cfg.MaxCandidates != Default().MaxCandidates {
		t.Fatalf("expected max_candidates to keep its default, got %d", cfg.MaxCandidates)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeTempConfig(t, "polling_interval_ms: [this is not a number]")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error for malformed YAML")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidateRejectsNonPositivePollingInterval(t *testing.T) {
	cfg := Default()
	cfg.PollingIntervalMs = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for zero polling interval")
	}
}

func TestValidateRejectsOutOfRangePercentile(t *testing.T) {
	cfg := Default()
	cfg.Thresholds.InteractivePercentile = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for out-of-range percentile")
	}
}

func TestValidateRejectsMinTTLAboveBaseTTL(t *testing.T) {
	cfg := Default()
	cfg.Cache.MinTTLSeconds = 10
	cfg.Cache.CacheTTLSeconds = 5
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for min_ttl exceeding base ttl")
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got %v", err)
	}
}
