package model

import "time"

// PSILine is one "some" or "full" record from a /proc/pressure/* file.
type PSILine struct {
	Avg10  float64
	Avg60  float64
	Avg300 float64
	Total  uint64
}

// PSIResource holds the some/full pair for one resource. CPU has no "full"
// line on most kernels, so Full is left zero.
type PSIResource struct {
	Some PSILine
	Full PSILine
}

// PressureSnapshot carries PSI data for all three resources.
type PressureSnapshot struct {
	CPU    PSIResource
	IO     PSIResource
	Memory PSIResource
}

// CPUTimes mirrors /proc/stat's per-CPU jiffy counters.
type CPUTimes struct {
	User, Nice, System, Idle, IOWait, IRQ, SoftIRQ, Steal, Guest, GuestNice uint64
}

// LoadAvg mirrors /proc/loadavg.
type LoadAvg struct {
	Load1, Load5, Load15 float64
	Running, Total       uint64
}

// DiskStats is per-device IO counters from /proc/diskstats.
type DiskStats struct {
	Name                                          string
	ReadsCompleted, SectorsRead, ReadTimeMs       uint64
	WritesCompleted, SectorsWritten, WriteTimeMs  uint64
	IOsInProgress, IOTimeMs, WeightedIOMs         uint64
}

// NetworkStats is per-interface counters from /proc/net/dev.
type NetworkStats struct {
	Name                                 string
	RxBytes, RxPackets, RxErrors, RxDrops uint64
	TxBytes, TxPackets, TxErrors, TxDrops uint64
}

// SystemMetrics is the aggregated system-wide metric snapshot.
type SystemMetrics struct {
	CPUTotal   CPUTimes
	CPUPerCore []CPUTimes
	NumCPUs    int
	LoadAvg    LoadAvg

	MemTotal, MemFree, MemAvailable, MemSwapTotal, MemSwapFree uint64

	Disks   []DiskStats
	Network []NetworkStats

	TemperaturesC map[string]float64
	PowerWatts    float64
}

// AudioClientInfo is one PipeWire client extracted from pw-dump, keyed by
// the PID that owns it.
type AudioClientInfo struct {
	PID               int
	BufferSizeSamples *uint32
	SampleRateHz      *uint32
}

// WindowInfo is one top-level window from the X11 or Wayland introspector.
type WindowInfo struct {
	PID     int
	Title   string
	Focused bool
}

// LatencySummary is the published view of component F's percentile
// estimates for the current tick.
type LatencySummary struct {
	P50, P95, P99 *float64 // nil if the window was empty
	SampleCount   int
}

// CgroupMetricsV2 holds accounting data read from one cgroup v2 directory.
type CgroupMetricsV2 struct {
	UsageUsec, ThrottledUsec, NrThrottled, NrPeriods uint64
	CPUWeight                                        uint64
	MemCurrent, MemMax                               uint64
	OOMKills                                          uint64
	IOWeight                                          uint64
	IOReadBytes, IOWriteBytes                         uint64
}

// CacheEntry is one entry of the metrics cache (component B). Exported so
// callers can inspect provenance for debugging/tests; the cache package
// itself stores a richer internal representation.
type CacheEntry struct {
	Value       interface{}
	SourcePaths []string
	CacheKey    string
	CreatedAt   time.Time
	LastAccess  time.Time
	AccessCount uint64
	TTL         time.Duration
}

// Snapshot is the immutable value published once per tick.
type Snapshot struct {
	TickID      uint64
	CapturedAt  time.Time
	System      SystemMetrics
	Pressure    PressureSnapshot
	Processes   []ProcessRecord
	Groups      []AppGroupRecord
	Input       InputMetrics
	Audio       []AudioClientInfo
	Windows     []WindowInfo
	Latency     LatencySummary
	// Degraded lists reader names whose section fell back to defaults this
	// tick (transient failure with a retry exhausted, or malformed input). A
	// transient failure answered from the cache's last-known-good value is
	// not listed.
	Degraded []string
}

// InputMetrics is the published view of component A's evdev tracker.
type InputMetrics struct {
	UserActive            bool
	TimeSinceLastInputMs  *uint64 // nil before any input event has arrived
}
