package pressure

import (
	"testing"
	"time"
)

type fakeCache struct {
	underPressure  bool
	calls          int
	shrinkCalls    int
	restoreCalls   int
}

func (f *fakeCache) SetMemoryPressure(underPressure bool) {
	f.underPressure = underPressure
	f.calls++
}

func (f *fakeCache) ShrinkCapacity()  { f.shrinkCalls++ }
func (f *fakeCache) RestoreCapacity() { f.restoreCalls++ }

func TestControllerEntersPressureAboveHighWaterMark(t *testing.T) {
	cache := &fakeCache{}
	c := NewController(Config{HighWaterMark: 60, LowWaterMark: 30, HysteresisSeconds: 10}, cache, nil)

	now := time.Now()
	c.Observe(70, now)

	if !c.UnderPressure() {
		t.Fatalf("expected controller to enter pressure state")
	}
	if !cache.underPressure {
		t.Fatalf("expected cache told about memory pressure")
	}
}

func TestControllerShrinksAndRestoresCacheCapacity(t *testing.T) {
	cache := &fakeCache{}
	c := NewController(Config{HighWaterMark: 60, LowWaterMark: 30, HysteresisSeconds: 10}, cache, nil)

	now := time.Now()
	c.Observe(70, now)
	if cache.shrinkCalls != 1 {
		t.Fatalf("expected ShrinkCapacity called once on entering pressure, got %d", cache.shrinkCalls)
	}

	c.Observe(10, now.Add(5*time.Second))
	c.Observe(10, now.Add(16*time.Second))
	if cache.restoreCalls != 1 {
		t.Fatalf("expected RestoreCapacity called once on exiting pressure, got %d", cache.restoreCalls)
	}
}

func TestControllerRequiresHysteresisBeforeRestoring(t *testing.T) {
	cache := &fakeCache{}
	c := NewController(Config{HighWaterMark: 60, LowWaterMark: 30, HysteresisSeconds: 10}, cache, nil)

	now := time.Now()
	c.Observe(70, now)
	c.Observe(10, now.Add(5*time.Second)) // below low-water but hysteresis not elapsed
	if !c.UnderPressure() {
		t.Fatalf("expected still under pressure before hysteresis elapses")
	}

	c.Observe(10, now.Add(16*time.Second)) // 11s after low-water first observed
	if c.UnderPressure() {
		t.Fatalf("expected pressure lifted after hysteresis window elapsed")
	}
	if cache.underPressure {
		t.Fatalf("expected cache told pressure lifted")
	}
}

func TestControllerResetsLowTimerOnBounceBackAboveLowWater(t *testing.T) {
	cache := &fakeCache{}
	c := NewController(Config{HighWaterMark: 60, LowWaterMark: 30, HysteresisSeconds: 5}, cache, nil)

	now := time.Now()
	c.Observe(70, now)
	c.Observe(10, now.Add(1*time.Second))
	c.Observe(40, now.Add(2*time.Second)) // between low and high: resets the low-timer
	c.Observe(10, now.Add(3*time.Second)) // low-timer restarts here

	if !c.UnderPressure() {
		t.Fatalf("expected still under pressure")
	}

	// 4s since the t=3s restart: not enough if the timer truly reset, but
	// would have been enough (6s) had it still been running from t=1s.
	c.Observe(10, now.Add(7*time.Second))
	if !c.UnderPressure() {
		t.Fatalf("expected low-timer to have restarted at t=3s, not yet satisfied at t=7s")
	}

	// 6s since the t=3s restart: now satisfied.
	c.Observe(10, now.Add(9*time.Second))
	if c.UnderPressure() {
		t.Fatalf("expected hysteresis window elapsed by t=9s, pressure should lift")
	}
}

func TestShrinkHalvesBudgetsAndIsIdempotent(t *testing.T) {
	r := NewLogRotator(RotatorConfig{MaxSizeBytes: 100, MaxFiles: 4, RotationIntervalSec: 60})
	r.Shrink()
	if r.current.MaxSizeBytes != 50 || r.current.MaxFiles != 2 || r.current.RotationIntervalSec != 30 {
		t.Fatalf("unexpected shrink result: %+v", r.current)
	}
	r.Shrink()
	if r.current.MaxSizeBytes != 50 {
		t.Fatalf("expected shrink to be idempotent")
	}
}

func TestRestoreRevertsToBase(t *testing.T) {
	r := NewLogRotator(RotatorConfig{MaxSizeBytes: 100, MaxFiles: 4, RotationIntervalSec: 60})
	r.Shrink()
	r.Restore()
	if r.current.MaxSizeBytes != 100 || r.current.MaxFiles != 4 {
		t.Fatalf("expected restore to revert to base config, got %+v", r.current)
	}
}
