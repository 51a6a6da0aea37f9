package daemon

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/smoothtask/smoothtaskd/model"
)

// compactSnapshot is a minimal per-tick record appended to the publish
// sink — enough to eyeball daemon health without replaying a full Snapshot.
type compactSnapshot struct {
	TickID      uint64    `json:"tick_id"`
	CapturedAt  time.Time `json:"captured_at"`
	ProcessN    int       `json:"process_count"`
	GroupN      int       `json:"group_count"`
	MemPSISome  float64   `json:"mem_psi_some_avg10"`
	CPUPSISome  float64   `json:"cpu_psi_some_avg10"`
	LatencyP50  *float64  `json:"latency_p50_ms,omitempty"`
	LatencyP95  *float64  `json:"latency_p95_ms,omitempty"`
	LatencyP99  *float64  `json:"latency_p99_ms,omitempty"`
	Degraded    []string  `json:"degraded,omitempty"`
}

// Publisher appends one compact JSON line per snapshot to path, rotating
// the file once it crosses maxSizeBytes. This is the in-process "emitted
// to subscribers" side of publication; the full snapshot database is a
// separate downstream collaborator this daemon does not implement.
type Publisher struct {
	path         string
	maxSizeBytes int64
}

// NewPublisher builds a Publisher writing to path. An empty path disables
// publication (Publish becomes a no-op) — useful for tests and for a
// dry-run daemon that should not touch disk.
func NewPublisher(path string) *Publisher {
	return &Publisher{path: path, maxSizeBytes: 10 << 20}
}

// Publish appends one compact line for snap.
func (p *Publisher) Publish(snap model.Snapshot) error {
	if p.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return err
	}
	if info, err := os.Stat(p.path); err == nil && info.Size() > p.maxSizeBytes {
		_ = os.Rename(p.path, p.path+".old")
	}

	f, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	cs := compactSnapshot{
		TickID:     snap.TickID,
		CapturedAt: snap.CapturedAt,
		ProcessN:   len(snap.Processes),
		GroupN:     len(snap.Groups),
		MemPSISome: snap.Pressure.Memory.Some.Avg10,
		CPUPSISome: snap.Pressure.CPU.Some.Avg10,
		LatencyP50: snap.Latency.P50,
		LatencyP95: snap.Latency.P95,
		LatencyP99: snap.Latency.P99,
		Degraded:   snap.Degraded,
	}
	return json.NewEncoder(f).Encode(cs)
}
