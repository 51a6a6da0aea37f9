// Package pressure implements the memory-pressure controller: it watches
// PSI mem_some.avg10 and, when it reaches the high-water mark, shrinks the metrics
// cache and tightens log rotation; it restores both once pressure has
// stayed low for a hysteresis window.
package pressure

import "time"

// CacheShrinker is the subset of the cache's control surface the pressure
// controller drives. Implemented by *cache.Cache in production and a fake
// in tests.
type CacheShrinker interface {
	SetMemoryPressure(underPressure bool)
	ShrinkCapacity()
	RestoreCapacity()
}

// Config mirrors the pressure-related fields of the daemon configuration.
type Config struct {
	HighWaterMark     float64 // mem_some.avg10 percentage that triggers shrink
	LowWaterMark      float64 // avg10 level pressure must fall below to restore
	HysteresisSeconds float64
}

// DefaultConfig matches the documented thresholds.
func DefaultConfig() Config {
	return Config{HighWaterMark: 60.0, LowWaterMark: 30.0, HysteresisSeconds: 30}
}

// Controller tracks whether the daemon is currently in the shrunk
// ("under pressure") state and for how long pressure has been low, so it
// can apply the hysteresis rule on recovery.
type Controller struct {
	cfg     Config
	cache   CacheShrinker
	rotator *LogRotator

	underPressure  bool
	lowSince       time.Time
	lowSinceValid  bool
}

// NewController wires the controller to the cache and log rotator it
// drives.
func NewController(cfg Config, cache CacheShrinker, rotator *LogRotator) *Controller {
	return &Controller{cfg: cfg, cache: cache, rotator: rotator}
}

// Observe feeds one tick's mem_some.avg10 reading and applies or lifts the
// shrink state accordingly. now is passed in explicitly so the hysteresis
// timer is testable without a real clock.
func (c *Controller) Observe(avg10 float64, now time.Time) {
	if !c.underPressure {
		if avg10 >= c.cfg.HighWaterMark {
			c.enterPressure()
		}
		return
	}

	if avg10 < c.cfg.LowWaterMark {
		if !c.lowSinceValid {
			c.lowSince = now
			c.lowSinceValid = true
		}
		if now.Sub(c.lowSince).Seconds() >= c.cfg.HysteresisSeconds {
			c.exitPressure()
		}
		return
	}

	c.lowSinceValid = false
}

// UnderPressure reports the controller's current state.
func (c *Controller) UnderPressure() bool {
	return c.underPressure
}

func (c *Controller) enterPressure() {
	c.underPressure = true
	c.lowSinceValid = false
	if c.cache != nil {
		c.cache.ShrinkCapacity()
		c.cache.SetMemoryPressure(true)
	}
	if c.rotator != nil {
		c.rotator.Shrink()
	}
}

func (c *Controller) exitPressure() {
	c.underPressure = false
	c.lowSinceValid = false
	if c.cache != nil {
		c.cache.SetMemoryPressure(false)
		c.cache.RestoreCapacity()
	}
	if c.rotator != nil {
		c.rotator.Restore()
	}
}
