package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/smoothtask/smoothtaskd/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.PatternsDir = "" // no pattern file on disk for this test
	cfg.Paths.SnapshotDBPath = filepath.Join(dir, "snapshots.jsonl")
	return cfg
}

func TestNewWiresAllCollaborators(t *testing.T) {
	d, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.assembler == nil || d.cache == nil || d.latency == nil || d.pressure == nil || d.scheduler == nil {
		t.Fatalf("expected every collaborator wired, got %+v", d)
	}
}

func TestTickPublishesASnapshot(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	d.tick(context.Background())

	data, err := os.ReadFile(cfg.Paths.SnapshotDBPath)
	if err != nil {
		t.Fatalf("expected a published snapshot file: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty published snapshot")
	}
}

func TestTickRecordsALatencySample(t *testing.T) {
	d, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.latency.Len() != 0 {
		t.Fatalf("expected empty latency ring before any tick")
	}
	d.tick(context.Background())
	if d.latency.Len() != 1 {
		t.Fatalf("expected exactly one latency sample after one tick, got %d", d.latency.Len())
	}
}

func TestTickSkipsPublishOnCancelledContext(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d.tick(ctx)

	if _, err := os.Stat(cfg.Paths.SnapshotDBPath); err == nil {
		t.Fatalf("expected no snapshot published when the tick's context was already cancelled")
	}
}
