package assembler

import (
	"context"
	"testing"
	"time"

	"github.com/smoothtask/smoothtaskd/cache"
	"github.com/smoothtask/smoothtaskd/model"
	"github.com/smoothtask/smoothtaskd/source/energy"
	"github.com/smoothtask/smoothtaskd/source/input"
	"github.com/smoothtask/smoothtaskd/source/procfs"
)

type fakeWindows struct {
	windows []model.WindowInfo
	err     error
}

func (f fakeWindows) Windows() ([]model.WindowInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.windows, nil
}

func newTestAssembler(windows []model.WindowInfo) *Assembler {
	return New(Config{
		Enumerator:   procfs.NewEnumerator(),
		Cache:        cache.New(cache.DefaultConfig()),
		Windows:      fakeWindows{windows: windows},
		InputTracker: input.NewTracker(time.Minute),
		Fuser:        energy.NewFuser(),
	})
}

func TestCrossLinkWindowsSetsGUIAndFocusFlags(t *testing.T) {
	a := newTestAssembler(nil)
	procs := []model.ProcessRecord{{PID: 1}, {PID: 2}}
	windows := []model.WindowInfo{
		{PID: 1, Title: "editor", Focused: true},
	}
	a.crossLinkWindows(procs, windows)

	if !procs[0].HasGUIWindow || !procs[0].IsFocused {
		t.Fatalf("expected pid 1 tagged GUI+focused, got %+v", procs[0])
	}
	if procs[1].HasGUIWindow || procs[1].IsFocused {
		t.Fatalf("expected pid 2 untouched, got %+v", procs[1])
	}
}

func TestTagAudioClientsSetsFlags(t *testing.T) {
	a := newTestAssembler(nil)
	rate := uint32(44100)
	procs := []model.ProcessRecord{{PID: 5}, {PID: 6}}
	clients := []model.AudioClientInfo{{PID: 5, SampleRateHz: &rate}}
	a.tagAudioClients(procs, clients)

	if !procs[0].IsAudioClient || !procs[0].HasActiveStream {
		t.Fatalf("expected pid 5 tagged as audio client, got %+v", procs[0])
	}
	if procs[1].IsAudioClient {
		t.Fatalf("expected pid 6 untouched, got %+v", procs[1])
	}
}

func TestApplyCPUSharesDiffsConsecutiveTicks(t *testing.T) {
	a := newTestAssembler(nil)
	t0 := time.Now()
	procs := []model.ProcessRecord{{PID: 9, UTimeTicks: 100, STimeTicks: 0}}
	a.applyCPUShares(procs, t0)
	if procs[0].CPUShare1s != 0 {
		t.Fatalf("expected no share on the first-ever observation, got %v", procs[0].CPUShare1s)
	}

	procs2 := []model.ProcessRecord{{PID: 9, UTimeTicks: 200, STimeTicks: 0}}
	t1 := t0.Add(1 * time.Second)
	a.applyCPUShares(procs2, t1)

	// 100 ticks of work (at 100 ticks/sec = 1 CPU-second) over 1 wall second = 100% share.
	if procs2[0].CPUShare1s < 0.99 || procs2[0].CPUShare1s > 1.01 {
		t.Fatalf("expected ~1.0 CPU share, got %v", procs2[0].CPUShare1s)
	}
}

func TestApplyCPUSharesForgetsExitedProcesses(t *testing.T) {
	a := newTestAssembler(nil)
	t0 := time.Now()
	a.applyCPUShares([]model.ProcessRecord{{PID: 1, UTimeTicks: 10}}, t0)
	if _, ok := a.prevCPU[1]; !ok {
		t.Fatalf("expected pid 1 tracked after first tick")
	}

	a.applyCPUShares([]model.ProcessRecord{{PID: 2, UTimeTicks: 10}}, t0.Add(time.Second))
	if _, ok := a.prevCPU[1]; ok {
		t.Fatalf("expected pid 1 forgotten once it no longer appears")
	}
}

func TestAssembleAdvancesTickIDOnCancelledContext(t *testing.T) {
	a := newTestAssembler(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap := a.Assemble(ctx)
	if snap.TickID != 1 {
		t.Fatalf("expected tick id to advance even on a cancelled context, got %d", snap.TickID)
	}
}

func TestAssemblePicksUpFakeWindows(t *testing.T) {
	windows := []model.WindowInfo{{PID: 99999, Title: "nonexistent", Focused: true}}
	a := newTestAssembler(windows)
	snap := a.Assemble(context.Background())

	if len(snap.Windows) != 1 || snap.Windows[0].PID != 99999 {
		t.Fatalf("expected injected window introspector result surfaced, got %+v", snap.Windows)
	}
}

func TestMarkDegradedDeduplicates(t *testing.T) {
	snap := model.Snapshot{}
	markDegraded(&snap, "psi")
	markDegraded(&snap, "psi")
	if len(snap.Degraded) != 1 {
		t.Fatalf("expected degraded reader listed once, got %v", snap.Degraded)
	}
}

func TestCachedOrReturnsLastKnownGoodOnMiss(t *testing.T) {
	a := newTestAssembler(nil)
	want := model.PressureSnapshot{Memory: model.PSIResource{Some: model.PSILine{Avg10: 42}}}
	a.cfg.Cache.Insert("system_psi:global", want, []string{"/proc/pressure"}, 64)

	snap := model.Snapshot{}
	got := a.cachedOr("system_psi:global", model.PressureSnapshot{}, &snap, "psi")

	if got.Memory.Some.Avg10 != 42 {
		t.Fatalf("expected cached value returned on fallback, got %+v", got)
	}
	if len(snap.Degraded) != 0 {
		t.Fatalf("expected no degraded marker on a cache hit, got %v", snap.Degraded)
	}
}

func TestCachedOrMarksDegradedOnTotalMiss(t *testing.T) {
	a := newTestAssembler(nil)
	snap := model.Snapshot{}
	got := a.cachedOr("no_such_key", model.PressureSnapshot{}, &snap, "psi")

	if got != (model.PressureSnapshot{}) {
		t.Fatalf("expected zero-value fallback on a total miss, got %+v", got)
	}
	if len(snap.Degraded) != 1 || snap.Degraded[0] != "psi" {
		t.Fatalf("expected reader marked degraded on a total miss, got %v", snap.Degraded)
	}
}
