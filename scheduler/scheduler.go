// Package scheduler drives the snapshot pipeline at a fixed period,
// enforcing a hard per-tick deadline and clean cancellation on shutdown.
package scheduler

import (
	"context"
	"log"
	"time"
)

// Pipeline is the per-tick unit of work the scheduler drives. It must
// respect ctx cancellation: when the deadline fires, the scheduler cancels
// ctx and expects the pipeline to return promptly.
type Pipeline func(ctx context.Context)

// Scheduler runs Pipeline on a fixed period with a hard deadline of
// 2x the period. No catch-up is attempted for a tick that overran its
// deadline; the next tick still fires on the regular period boundary.
type Scheduler struct {
	Interval time.Duration
	Pipeline Pipeline

	// OnTickOverrun is called (if non-nil) whenever a tick is cancelled for
	// exceeding its deadline. Exposed so callers can increment a metric
	// without the scheduler depending on a metrics package.
	OnTickOverrun func()

	// now and after are overridable for tests.
	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// New builds a Scheduler with the given interval and pipeline.
func New(interval time.Duration, pipeline Pipeline) *Scheduler {
	return &Scheduler{
		Interval: interval,
		Pipeline: pipeline,
		now:      time.Now,
		after:    time.After,
	}
}

// Run blocks, firing one tick every Interval, until ctx is cancelled. On
// cancellation, the in-flight tick's context (derived from ctx) is
// cancelled as well, and Run waits for the pipeline to return before it
// returns.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOneTick(ctx)
		}
	}
}

// runOneTick runs the pipeline with a hard deadline of 2x the tick
// interval. If the deadline fires first, the tick's context is cancelled
// and a skipped-tick warning is logged; the pipeline is expected to return
// promptly once its context is done. Skipped ticks are never recovered.
func (s *Scheduler) runOneTick(parent context.Context) {
	deadline := s.Interval * 2
	tickCtx, cancel := context.WithTimeout(parent, deadline)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Pipeline(tickCtx)
		close(done)
	}()

	select {
	case <-done:
		return
	case <-tickCtx.Done():
		<-done // the pipeline must still observe cancellation and return
		if tickCtx.Err() == context.DeadlineExceeded {
			log.Printf("scheduler: tick exceeded %s deadline, skipping", deadline)
			if s.OnTickOverrun != nil {
				s.OnTickOverrun()
			}
		}
	}
}
