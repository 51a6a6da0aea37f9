// Package config loads the daemon's YAML configuration file, covering tick
// period, scheduling thresholds, ML and cache tuning, and eBPF feature
// flags. Unlike a user-facing tool that silently falls back to defaults on
// a bad config, an invalid config here is a start-up error: the daemon
// must not run with thresholds it cannot parse.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Thresholds mirrors the §6 thresholds block.
type Thresholds struct {
	PSICPUSomeHigh            float64 `yaml:"psi_cpu_some_high"`
	PSIIOSomeHigh             float64 `yaml:"psi_io_some_high"`
	UserIdleTimeoutSec        float64 `yaml:"user_idle_timeout_sec"`
	InteractiveBuildGraceSec  float64 `yaml:"interactive_build_grace_sec"`
	NoisyNeighbourCPUShare    float64 `yaml:"noisy_neighbour_cpu_share"`
	CritInteractivePercentile float64 `yaml:"crit_interactive_percentile"`
	InteractivePercentile     float64 `yaml:"interactive_percentile"`
	NormalPercentile          float64 `yaml:"normal_percentile"`
	BackgroundPercentile      float64 `yaml:"background_percentile"`
}

// Paths mirrors the §6 paths block.
type Paths struct {
	SnapshotDBPath string `yaml:"snapshot_db_path"`
	PatternsDir    string `yaml:"patterns_dir"`
}

// ML mirrors the §6 ml block.
type ML struct {
	Enabled             bool    `yaml:"enabled"`
	ModelPath           string  `yaml:"model_path"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	ModelType           string  `yaml:"model_type"`
}

// Cache mirrors the §6 cache block.
type Cache struct {
	MaxCacheSize              int     `yaml:"max_cache_size"`
	CacheTTLSeconds           float64 `yaml:"cache_ttl_seconds"`
	EnableCaching             bool    `yaml:"enable_caching"`
	MaxMemoryBytes            int64   `yaml:"max_memory_bytes"`
	EnableCompression         bool    `yaml:"enable_compression"`
	AutoCleanupEnabled        bool    `yaml:"auto_cleanup_enabled"`
	MinTTLSeconds             float64 `yaml:"min_ttl_seconds"`
	AdaptiveTTLEnabled        bool    `yaml:"adaptive_ttl_enabled"`
	IntelligentTTLEnabled     bool    `yaml:"intelligent_ttl_enabled"`
	MaxFrequentAccessTTL      float64 `yaml:"max_frequent_access_ttl"`
	FrequentAccessTTLFactor   float64 `yaml:"frequent_access_ttl_factor"`
	FrequentAccessThreshold   int     `yaml:"frequent_access_threshold"`
}

// EBPF mirrors the §6 ebpf block.
type EBPF struct {
	EnableCPUMetrics        bool    `yaml:"enable_cpu_metrics"`
	EnableMemoryMetrics     bool    `yaml:"enable_memory_metrics"`
	EnableSyscallMonitoring bool    `yaml:"enable_syscall_monitoring"`
	CollectionInterval      float64 `yaml:"collection_interval"`
}

// Config is the top-level daemon configuration, loaded from YAML.
type Config struct {
	PollingIntervalMs int64  `yaml:"polling_interval_ms"`
	MaxCandidates     int    `yaml:"max_candidates"`
	DryRunDefault     bool   `yaml:"dry_run_default"`
	Thresholds        Thresholds `yaml:"thresholds"`
	Paths             Paths      `yaml:"paths"`
	ML                ML         `yaml:"ml"`
	Cache             Cache      `yaml:"cache"`
	EBPF              EBPF       `yaml:"ebpf"`
}

// PollingInterval is PollingIntervalMs as a time.Duration.
func (c Config) PollingInterval() time.Duration {
	return time.Duration(c.PollingIntervalMs) * time.Millisecond
}

// Default returns a Config with the documented defaults.
func Default() Config {
	return Config{
		PollingIntervalMs: 1000,
		MaxCandidates:      64,
		DryRunDefault:      true,
		Thresholds: Thresholds{
			PSICPUSomeHigh:            60.0,
			PSIIOSomeHigh:             40.0,
			UserIdleTimeoutSec:        120,
			InteractiveBuildGraceSec:  30,
			NoisyNeighbourCPUShare:    0.8,
			CritInteractivePercentile: 0.99,
			InteractivePercentile:     0.95,
			NormalPercentile:          0.50,
			BackgroundPercentile:      0.10,
		},
		Paths: Paths{
			SnapshotDBPath: "/var/lib/smoothtaskd/snapshots.db",
			PatternsDir:    "/etc/smoothtaskd/patterns.d",
		},
		ML: ML{
			Enabled:             false,
			ConfidenceThreshold: 0.75,
			ModelType:           "tree",
		},
		Cache: Cache{
			MaxCacheSize:            2048,
			CacheTTLSeconds:         5,
			EnableCaching:           true,
			MaxMemoryBytes:          64 << 20,
			AutoCleanupEnabled:      true,
			MinTTLSeconds:           1,
			AdaptiveTTLEnabled:      true,
			IntelligentTTLEnabled:   true,
			MaxFrequentAccessTTL:    60,
			FrequentAccessTTLFactor: 4.0,
			FrequentAccessThreshold: 5,
		},
		EBPF: EBPF{
			CollectionInterval: 1.0,
		},
	}
}

// Path returns the default config path: $XDG_CONFIG_HOME/smoothtaskd/config.yaml,
// falling back to ~/.config. Returns empty string if no home directory can
// be determined.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "smoothtaskd", "config.yaml")
}

// Load reads and parses the YAML config at path, starting from Default()
// so unset fields keep sensible values, then validates it. A parse or
// validation failure is returned to the caller rather than silently
// swallowed: per the daemon's error taxonomy, a bad config must prevent
// start-up, not run with guessed thresholds.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the handful of fields whose out-of-range values would
// otherwise surface as confusing runtime behaviour rather than a clear
// start-up error.
func (c Config) Validate() error {
	if c.PollingIntervalMs <= 0 {
		return fmt.Errorf("polling_interval_ms must be positive, got %d", c.PollingIntervalMs)
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("max_candidates must be positive, got %d", c.MaxCandidates)
	}
	if c.ML.Enabled && (c.ML.ConfidenceThreshold < 0 || c.ML.ConfidenceThreshold > 1) {
		return fmt.Errorf("ml.confidence_threshold must be in [0,1], got %v", c.ML.ConfidenceThreshold)
	}
	for _, p := range []struct {
		name string
		val  float64
	}{
		{"thresholds.crit_interactive_percentile", c.Thresholds.CritInteractivePercentile},
		{"thresholds.interactive_percentile", c.Thresholds.InteractivePercentile},
		{"thresholds.normal_percentile", c.Thresholds.NormalPercentile},
		{"thresholds.background_percentile", c.Thresholds.BackgroundPercentile},
	} {
		if p.val < 0 || p.val > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", p.name, p.val)
		}
	}
	if c.Cache.EnableCaching && c.Cache.MinTTLSeconds > c.Cache.CacheTTLSeconds {
		return fmt.Errorf("cache.min_ttl_seconds (%v) must not exceed cache.cache_ttl_seconds (%v)",
			c.Cache.MinTTLSeconds, c.Cache.CacheTTLSeconds)
	}
	return nil
}
