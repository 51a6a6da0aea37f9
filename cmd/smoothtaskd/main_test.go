package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunReturnsConfigErrorOnMissingFile(t *testing.T) {
	got := run([]string{"--config", "/nonexistent/config.yaml"})
	if got != exitConfigError {
		t.Fatalf("expected exitConfigError for a missing config, got %d", got)
	}
}

func TestRunReturnsConfigErrorOnMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("polling_interval_ms: [oops]"), 0o644); err != nil {
		t.Fatal(err)
	}
	got := run([]string{"--config", path})
	if got != exitConfigError {
		t.Fatalf("expected exitConfigError for malformed YAML, got %d", got)
	}
}

func TestRunReturnsConfigErrorOnUnknownFlag(t *testing.T) {
	got := run([]string{"--not-a-real-flag"})
	if got != exitConfigError {
		t.Fatalf("expected exitConfigError for an unparseable flag set, got %d", got)
	}
}
