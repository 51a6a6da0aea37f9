// Package input tracks user input activity from evdev devices.
package input

import (
	"sync"
	"time"

	"github.com/smoothtask/smoothtaskd/model"
)

// Linux input event types (include/uapi/linux/input-event-codes.h). Stable
// kernel ABI values, not expected to change.
const (
	evSyn   = 0x00
	evKey   = 0x01
	evRel   = 0x02
	evAbs   = 0x03
	evMsc   = 0x04
	evSw    = 0x05
	keyReserved = 0
)

// Event is one decoded evdev input_event.
type Event struct {
	Type  uint16
	Code  uint16
	Value int32
}

// Tracker records the most recent user-activity event and answers whether
// the user is currently active relative to an idle threshold.
type Tracker struct {
	mu           sync.Mutex
	lastEvent    time.Time
	idleThreshold time.Duration
}

// NewTracker builds a tracker with the given idle threshold.
func NewTracker(idleThreshold time.Duration) *Tracker {
	return &Tracker{idleThreshold: idleThreshold}
}

// RegisterActivity records an activity timestamp directly.
func (t *Tracker) RegisterActivity(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastEvent = now
}

// IngestEvents updates tracker state from a batch of decoded events and
// returns the resulting metrics. Every event except EV_SYN, and EV_KEY with
// code KEY_RESERVED, counts as activity.
func (t *Tracker) IngestEvents(events []Event, now time.Time) model.InputMetrics {
	t.mu.Lock()
	for _, ev := range events {
		if isUserActivityEvent(ev) {
			t.lastEvent = now
		}
	}
	last := t.lastEvent
	t.mu.Unlock()
	return t.metricsAt(last, now)
}

// Metrics returns the current metrics as of now, without ingesting events.
func (t *Tracker) Metrics(now time.Time) model.InputMetrics {
	t.mu.Lock()
	last := t.lastEvent
	t.mu.Unlock()
	return t.metricsAt(last, now)
}

func (t *Tracker) metricsAt(last, now time.Time) model.InputMetrics {
	if last.IsZero() {
		return model.InputMetrics{UserActive: false, TimeSinceLastInputMs: nil}
	}
	elapsed := now.Sub(last)
	if elapsed < 0 {
		elapsed = 0
	}
	ms := uint64(elapsed.Milliseconds())
	return model.InputMetrics{
		UserActive:           elapsed <= t.idleThreshold,
		TimeSinceLastInputMs: &ms,
	}
}

func isUserActivityEvent(ev Event) bool {
	switch ev.Type {
	case evSyn:
		return false
	case evKey:
		return ev.Code != keyReserved
	case evRel, evAbs, evSw, evMsc:
		return true
	default:
		return false
	}
}
