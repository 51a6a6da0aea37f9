// Package daemon wires the collection pipeline (assembler, grouper,
// classifier, latency estimator, pressure controller) to the tick
// scheduler and a publish sink.
package daemon

import (
	"context"
	"log"
	"time"

	"github.com/smoothtask/smoothtaskd/assembler"
	"github.com/smoothtask/smoothtaskd/cache"
	"github.com/smoothtask/smoothtaskd/classify"
	"github.com/smoothtask/smoothtaskd/config"
	"github.com/smoothtask/smoothtaskd/grouper"
	"github.com/smoothtask/smoothtaskd/latency"
	"github.com/smoothtask/smoothtaskd/model"
	"github.com/smoothtask/smoothtaskd/pressure"
	"github.com/smoothtask/smoothtaskd/scheduler"
)

// Daemon owns every long-lived collaborator and drives one tick of the
// pipeline end to end: assemble -> group -> classify -> latency update ->
// pressure observation -> publish.
type Daemon struct {
	cfg config.Config

	assembler  *assembler.Assembler
	cache      *cache.Cache
	patterns   *classify.Loader
	ml         classify.Model
	latency    *latency.Ring
	pressure   *pressure.Controller
	rotator    *pressure.LogRotator
	scheduler  *scheduler.Scheduler
	publisher  *Publisher

	tickDurationsMs chan float64
}

// New builds a Daemon from cfg. It does not start the tick loop; call Run
// for that. The returned error is always nil: a pattern database or ML
// model that fails to load is logged, and the daemon runs without rule
// patterns or with the stub model instead.
func New(cfg config.Config) (*Daemon, error) {
	metricsCache := cache.New(cache.Config{
		Enabled:               cfg.Cache.EnableCaching,
		MaxEntries:            cfg.Cache.MaxCacheSize,
		TTL:                   time.Duration(cfg.Cache.CacheTTLSeconds * float64(time.Second)),
		MinTTL:                time.Duration(cfg.Cache.MinTTLSeconds * float64(time.Second)),
		AdaptiveTTLEnabled:    cfg.Cache.AdaptiveTTLEnabled,
		AdaptiveFactorK:       0.2,
		FrequentAccessFactor:  cfg.Cache.FrequentAccessTTLFactor,
		MaxFrequentAccessTTL:  time.Duration(cfg.Cache.MaxFrequentAccessTTL * float64(time.Second)),
		IntelligentTTLEnabled: cfg.Cache.IntelligentTTLEnabled,
		PressureShrinkFactor:  0.5,
		MaxMemoryBytes:        cfg.Cache.MaxMemoryBytes,
		EnableCompression:     cfg.Cache.EnableCompression,
	})

	var patternsLoader *classify.Loader
	if cfg.Paths.PatternsDir != "" {
		if loaded, err := classify.NewLoader(cfg.Paths.PatternsDir); err != nil {
			log.Printf("daemon: no pattern database at %s, classifying by rule will be a no-op: %v", cfg.Paths.PatternsDir, err)
		} else {
			patternsLoader = loaded
		}
	}

	var ml classify.Model = classify.StubModel{}
	if cfg.ML.Enabled && cfg.ML.ModelPath != "" {
		if tree, err := classify.LoadTreeModel(cfg.ML.ModelPath); err == nil {
			ml = tree
		} else {
			log.Printf("daemon: ml enabled but model %s failed to load, falling back to stub: %v", cfg.ML.ModelPath, err)
		}
	}

	rotator := pressure.NewLogRotator(pressure.RotatorConfig{
		Path:         cfg.Paths.SnapshotDBPath,
		MaxSizeBytes: 10 << 20,
		MaxFiles:     5,
	})
	pressureController := pressure.NewController(pressure.Config{
		HighWaterMark:     cfg.Thresholds.PSICPUSomeHigh,
		LowWaterMark:      cfg.Thresholds.PSICPUSomeHigh / 2,
		HysteresisSeconds: 30,
	}, metricsCache, rotator)

	asm := assembler.New(assembler.Config{
		Cache:         metricsCache,
		PWDumpBinary:  "pw-dump",
		PWDumpTimeout: 100 * time.Millisecond,
		EnableRAPL:    cfg.EBPF.EnableCPUMetrics,
		EnableAMDGPU:  true,
		ReaderTimeout: 250 * time.Millisecond,
	})

	d := &Daemon{
		cfg:        cfg,
		assembler:  asm,
		cache:      metricsCache,
		patterns:   patternsLoader,
		ml:         ml,
		latency:    latency.NewRing(5000, 10*time.Second),
		pressure:   pressureController,
		rotator:    rotator,
		publisher:  NewPublisher(cfg.Paths.SnapshotDBPath),
	}
	d.scheduler = scheduler.New(cfg.PollingInterval(), d.tick)
	return d, nil
}

// Run blocks, driving the tick loop until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	log.Printf("smoothtaskd: starting (polling_interval=%s)", d.cfg.PollingInterval())
	d.scheduler.Run(ctx)
	log.Printf("smoothtaskd: shut down")
	return nil
}

// tick runs one full pipeline pass: assemble, group, classify, record
// latency, observe pressure, publish. It is the scheduler.Pipeline for
// this daemon.
func (d *Daemon) tick(ctx context.Context) {
	start := time.Now()

	snap := d.assembler.Assemble(ctx)
	if ctx.Err() != nil {
		return // cancelled mid-assembly: never publish a partial snapshot
	}

	snap.Groups = grouper.GroupAll(snap.Processes)

	var patterns *classify.PatternDatabase
	if d.patterns != nil {
		patterns = d.patterns.Current()
	}
	if patterns == nil {
		patterns, _ = classify.ParsePatternDatabase([]byte("patterns: []"))
	}
	classify.ClassifyAll(snap.Processes, snap.Groups, patterns, d.ml, d.cfg.ML.ConfidenceThreshold)

	elapsedMs := time.Since(start).Seconds() * 1000
	d.latency.AddSample(elapsedMs)
	snap.Latency = d.summarizeLatency()

	d.pressure.Observe(snap.Pressure.Memory.Some.Avg10, time.Now())

	if d.publisher != nil {
		if err := d.publisher.Publish(snap); err != nil {
			log.Printf("smoothtaskd: publish failed: %v", err)
		}
	}

	if d.patterns != nil {
		if changed, err := d.patterns.PollForChanges(); err != nil {
			log.Printf("smoothtaskd: pattern reload failed: %v", err)
		} else if changed {
			log.Printf("smoothtaskd: pattern database reloaded")
		}
	}

	if d.rotator.ShouldRotate() {
		if err := d.rotator.Rotate(); err != nil {
			log.Printf("smoothtaskd: log rotation failed: %v", err)
		}
	}
}

func (d *Daemon) summarizeLatency() model.LatencySummary {
	summary := model.LatencySummary{SampleCount: d.latency.Len()}
	if p50, ok := d.latency.Percentile(0.50); ok {
		summary.P50 = &p50
	}
	if p95, ok := d.latency.Percentile(0.95); ok {
		summary.P95 = &p95
	}
	if p99, ok := d.latency.Percentile(0.99); ok {
		summary.P99 = &p99
	}
	return summary
}
