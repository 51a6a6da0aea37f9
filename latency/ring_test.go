package latency

import (
	"math"
	"testing"
	"time"
)

func TestPercentileScenario(t *testing.T) {
	r := NewRing(5000, time.Second)
	for i := 0; i < 5000; i++ {
		r.AddSample(0.02 * float64(i))
	}

	check := func(p, want float64) {
		t.Helper()
		got, ok := r.Percentile(p)
		if !ok {
			t.Fatalf("percentile(%v): expected a value", p)
		}
		if math.Abs(got-want) > 0.02 {
			t.Fatalf("percentile(%v) = %v, want within 0.02 of %v", p, got, want)
		}
	}
	check(0.95, 95.0)
	check(0.99, 99.0)
	check(0.50, 50.0)
}

func TestPercentileEmptyRingReturnsNone(t *testing.T) {
	r := NewRing(10, 0)
	if _, ok := r.Percentile(0.5); ok {
		t.Fatalf("expected no value for empty ring")
	}
}

func TestRingEvictsOldestKeepingMostRecent(t *testing.T) {
	r := NewRing(3, 0)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		r.AddSample(v)
	}
	if r.Len() != 3 {
		t.Fatalf("expected ring size 3, got %d", r.Len())
	}
	got := r.Snapshot()
	want := []float64{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRingHoldsMinKW(t *testing.T) {
	r := NewRing(10, 0)
	for i := 0; i < 4; i++ {
		r.AddSample(float64(i))
	}
	if r.Len() != 4 {
		t.Fatalf("expected 4 samples held, got %d", r.Len())
	}
}

func TestPercentileMatchesNearestRankDefinition(t *testing.T) {
	r := NewRing(10, 0)
	for _, v := range []float64{5, 1, 4, 2, 3} {
		r.AddSample(v)
	}
	// sorted: [1,2,3,4,5], N=5. p=0.5 -> rank = ceil(2.5)-1 = 2 -> value 3.
	got, ok := r.Percentile(0.5)
	if !ok || got != 3 {
		t.Fatalf("expected median 3, got %v (ok=%v)", got, ok)
	}
	// p=0.2 -> rank = ceil(1.0)-1 = 0 -> value 1.
	got, ok = r.Percentile(0.2)
	if !ok || got != 1 {
		t.Fatalf("expected p20=1, got %v (ok=%v)", got, ok)
	}
}

func TestPercentileCacheInvalidatedByNewSample(t *testing.T) {
	r := NewRing(10, time.Minute)
	for _, v := range []float64{1, 2, 3} {
		r.AddSample(v)
	}
	first, _ := r.Percentile(0.5)
	r.AddSample(0)
	second, _ := r.Percentile(0.5)
	if first == second {
		t.Fatalf("expected percentile to change after new sample shifted the median")
	}
}
