package pressure

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRotateShiftsBacklogAndTruncatesActive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	if err := os.WriteFile(path, []byte("active content"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path+".1", []byte("old 1"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewLogRotator(RotatorConfig{Path: path, MaxSizeBytes: 1, MaxFiles: 3})
	if err := r.Rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected active file renamed away, stat err=%v", err)
	}
	data, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatalf("expected new .1 backup: %v", err)
	}
	if string(data) != "active content" {
		t.Fatalf("expected .1 to hold the just-rotated active content, got %q", data)
	}
	data2, err := os.ReadFile(path + ".2")
	if err != nil {
		t.Fatalf("expected old .1 shifted to .2: %v", err)
	}
	if string(data2) != "old 1" {
		t.Fatalf("expected .2 to hold the previous .1 content, got %q", data2)
	}
}

func TestRotatePrunesBeyondMaxFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	if err := os.WriteFile(path, []byte("active"), 0o644); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 2; i++ {
		if err := os.WriteFile(backlogPath(path, i, false), []byte("old"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	r := NewLogRotator(RotatorConfig{Path: path, MaxSizeBytes: 1, MaxFiles: 2})
	if err := r.Rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	if _, err := os.Stat(backlogPath(path, 3, false)); !os.IsNotExist(err) {
		t.Fatalf("expected backlog beyond max_files pruned")
	}
	if _, err := os.Stat(backlogPath(path, 2, false)); err != nil {
		t.Fatalf("expected .2 retained: %v", err)
	}
}

func TestShouldRotateComparesCurrentSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewLogRotator(RotatorConfig{Path: path, MaxSizeBytes: 5})
	if !r.ShouldRotate() {
		t.Fatalf("expected rotation needed, file exceeds max size")
	}

	r2 := NewLogRotator(RotatorConfig{Path: path, MaxSizeBytes: 100})
	if r2.ShouldRotate() {
		t.Fatalf("expected no rotation needed under max size")
	}
}
