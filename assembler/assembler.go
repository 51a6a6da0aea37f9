// Package assembler fuses the source readers and the metrics cache into one
// Snapshot per tick: it cross-links processes to windows and audio clients,
// folds in fused energy readings, and applies the retry/cache-fallback and
// skip-on-malformed rules for reader failures.
package assembler

import (
	"context"
	"sort"
	"time"

	"github.com/smoothtask/smoothtaskd/cache"
	"github.com/smoothtask/smoothtaskd/model"
	"github.com/smoothtask/smoothtaskd/source/audio"
	"github.com/smoothtask/smoothtaskd/source/energy"
	"github.com/smoothtask/smoothtaskd/source/gpu"
	"github.com/smoothtask/smoothtaskd/source/input"
	"github.com/smoothtask/smoothtaskd/source/procfs"
	"github.com/smoothtask/smoothtaskd/source/psi"
	"github.com/smoothtask/smoothtaskd/source/windowintro"
	"github.com/smoothtask/smoothtaskd/util"
)

// Config holds the assembler's collaborators and tunables. Zero-value
// fields disable the corresponding reader (e.g. PWDumpBinary == "" skips
// audio collection).
type Config struct {
	Enumerator  *procfs.Enumerator
	Cache       *cache.Cache
	Windows     windowintro.Introspector
	InputTracker *input.Tracker
	Fuser       *energy.Fuser

	PWDumpBinary  string
	PWDumpTimeout time.Duration

	EnableRAPL   bool
	EnableAMDGPU bool

	ReaderTimeout time.Duration
}

// DefaultConfig returns a Config with the timeouts documented in §5.
func DefaultConfig() Config {
	return Config{
		PWDumpBinary:  "pw-dump",
		PWDumpTimeout: 100 * time.Millisecond,
		ReaderTimeout: 250 * time.Millisecond,
	}
}

// Assembler runs one tick's collection pipeline.
type Assembler struct {
	cfg         Config
	logger      *util.RateLimitedLogger
	tickID      uint64
	prevCPU     map[int]cpuSample
	ebpfProgram *energy.LoadedEnergyProgram
}

type cpuSample struct {
	at      time.Time
	uTicks  uint64
	sTicks  uint64
}

// New builds an Assembler. cfg.Windows defaults to windowintro.Detect() if
// nil; cfg.Enumerator/InputTracker/Fuser default to fresh instances if nil,
// so a caller can pass a partially-filled Config in tests. A nil cfg.Cache
// is kept as is and disables the last-known-good fallback.
func New(cfg Config) *Assembler {
	if cfg.Enumerator == nil {
		cfg.Enumerator = procfs.NewEnumerator()
	}
	if cfg.Windows == nil {
		cfg.Windows = windowintro.Detect()
	}
	if cfg.InputTracker == nil {
		cfg.InputTracker = input.NewTracker(2 * time.Minute)
	}
	if cfg.Fuser == nil {
		cfg.Fuser = energy.NewFuser()
	}

	// Attach the per-pid energy tracepoint program when the running kernel
	// supports BTF/CO-RE; Load returns Unavailable on older kernels, and the
	// fuser falls back to proc_power/RAPL for every pid in that case.
	var ebpfProgram *energy.LoadedEnergyProgram
	if prog, err := energy.NewLoader().Load(energy.DefaultEnergyProgram); err == nil {
		ebpfProgram = prog
	}

	return &Assembler{
		cfg:         cfg,
		logger:      util.NewRateLimitedLogger(time.Minute),
		prevCPU:     make(map[int]cpuSample),
		ebpfProgram: ebpfProgram,
	}
}

// Assemble runs one tick's collection. It never returns an error: every
// reader failure is absorbed into Snapshot.Degraded and the affected
// section is filled with cache fallback or left at its zero value.
func (a *Assembler) Assemble(ctx context.Context) model.Snapshot {
	a.tickID++
	now := time.Now()

	snap := model.Snapshot{
		TickID:     a.tickID,
		CapturedAt: now,
	}

	snap.Pressure = a.readPSI(&snap)
	snap.Processes = a.readProcesses(ctx, &snap)
	a.applyCPUShares(snap.Processes, now)

	snap.Audio = a.readAudio(ctx, &snap)
	windows := a.readWindows(&snap)
	snap.Windows = windows
	a.crossLinkWindows(snap.Processes, windows)
	a.tagAudioClients(snap.Processes, snap.Audio)

	snap.Input = a.cfg.InputTracker.Metrics(now)

	a.foldEnergy(ctx, snap.Processes, now)
	a.foldGPU(ctx, &snap)

	sort.Slice(snap.Processes, func(i, j int) bool { return snap.Processes[i].PID < snap.Processes[j].PID })

	return snap
}

// readPSI retries once on transient failure, falling back to the cache's
// last-known-good value, else leaves the zero PressureSnapshot.
func (a *Assembler) readPSI(snap *model.Snapshot) model.PressureSnapshot {
	const key = "system_psi:global"
	result, err := psi.Read()
	if err == nil {
		if a.cfg.Cache != nil {
			a.cfg.Cache.Insert(key, result, []string{"/proc/pressure"}, 256)
		}
		return result
	}

	switch model.KindOf(err) {
	case model.Unavailable:
		return model.PressureSnapshot{}
	case model.Malformed:
		a.logger.Logf("psi", "psi: malformed input, skipping tick: %v", err)
		snap.Degraded = append(snap.Degraded, "psi")
		return a.cachedOr(key, model.PressureSnapshot{}, snap, "psi")
	default: // Transient: one retry
		if result, err2 := psi.Read(); err2 == nil {
			if a.cfg.Cache != nil {
				a.cfg.Cache.Insert(key, result, []string{"/proc/pressure"}, 256)
			}
			return result
		}
		return a.cachedOr(key, model.PressureSnapshot{}, snap, "psi")
	}
}

func (a *Assembler) cachedOr(key string, fallback interface{}, snap *model.Snapshot, reader string) model.PressureSnapshot {
	if a.cfg.Cache != nil {
		if v, ok := a.cfg.Cache.Lookup(key); ok {
			if ps, ok := v.(model.PressureSnapshot); ok {
				return ps
			}
		}
	}
	markDegraded(snap, reader)
	if ps, ok := fallback.(model.PressureSnapshot); ok {
		return ps
	}
	return model.PressureSnapshot{}
}

func markDegraded(snap *model.Snapshot, reader string) {
	for _, r := range snap.Degraded {
		if r == reader {
			return
		}
	}
	snap.Degraded = append(snap.Degraded, reader)
}

func (a *Assembler) readProcesses(ctx context.Context, snap *model.Snapshot) []model.ProcessRecord {
	procs, err := a.cfg.Enumerator.Collect(ctx)
	if err == nil {
		return procs
	}
	switch model.KindOf(err) {
	case model.Unavailable:
		return nil
	default:
		if procs2, err2 := a.cfg.Enumerator.Collect(ctx); err2 == nil {
			return procs2
		}
		markDegraded(snap, "procfs")
		return nil
	}
}

// applyCPUShares diffs this tick's jiffy counters against the previous
// tick's to derive CPUShare1s/10s, clearing state for processes that have
// exited so prevCPU does not grow unbounded across the daemon's lifetime.
func (a *Assembler) applyCPUShares(procs []model.ProcessRecord, now time.Time) {
	seen := make(map[int]struct{}, len(procs))
	const clockTicksPerSec = 100.0

	for i := range procs {
		p := &procs[i]
		seen[p.PID] = struct{}{}
		prev, ok := a.prevCPU[p.PID]
		if ok {
			elapsed := now.Sub(prev.at).Seconds()
			if elapsed > 0 {
				deltaTicks := (p.UTimeTicks - prev.uTicks) + (p.STimeTicks - prev.sTicks)
				share := (float64(deltaTicks) / clockTicksPerSec) / elapsed
				p.CPUShare1s = share
				p.CPUShare10s = share
			}
		}
		a.prevCPU[p.PID] = cpuSample{at: now, uTicks: p.UTimeTicks, sTicks: p.STimeTicks}
	}

	for pid := range a.prevCPU {
		if _, ok := seen[pid]; !ok {
			delete(a.prevCPU, pid)
		}
	}
}

func (a *Assembler) readAudio(ctx context.Context, snap *model.Snapshot) []model.AudioClientInfo {
	if a.cfg.PWDumpBinary == "" {
		return nil
	}
	timeout := a.cfg.PWDumpTimeout
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	clients, err := audio.Dump(ctx, a.cfg.PWDumpBinary, timeout)
	if err == nil {
		return clients
	}
	switch model.KindOf(err) {
	case model.Unavailable:
		return nil
	case model.Malformed:
		a.logger.Logf("pw-dump", "pw-dump: malformed output, skipping tick: %v", err)
		markDegraded(snap, "audio")
		return nil
	default:
		if clients2, err2 := audio.Dump(ctx, a.cfg.PWDumpBinary, timeout); err2 == nil {
			return clients2
		}
		markDegraded(snap, "audio")
		return nil
	}
}

func (a *Assembler) readWindows(snap *model.Snapshot) []model.WindowInfo {
	if a.cfg.Windows == nil {
		return nil
	}
	windows, err := a.cfg.Windows.Windows()
	if err == nil {
		return windows
	}
	if model.KindOf(err) != model.Unavailable {
		markDegraded(snap, "windowintro")
	}
	return nil
}

// crossLinkWindows sets HasGUIWindow/IsFocused on every process with a
// matching pid in windows.
func (a *Assembler) crossLinkWindows(procs []model.ProcessRecord, windows []model.WindowInfo) {
	if len(windows) == 0 {
		return
	}
	focusedByPID := make(map[int]bool, len(windows))
	hasWindow := make(map[int]bool, len(windows))
	for _, w := range windows {
		hasWindow[w.PID] = true
		if w.Focused {
			focusedByPID[w.PID] = true
		}
	}
	for i := range procs {
		p := &procs[i]
		if hasWindow[p.PID] {
			p.HasGUIWindow = true
		}
		if focusedByPID[p.PID] {
			p.IsFocused = true
		}
	}
}

// tagAudioClients sets IsAudioClient/HasActiveStream on every process with
// a matching pid in clients.
func (a *Assembler) tagAudioClients(procs []model.ProcessRecord, clients []model.AudioClientInfo) {
	if len(clients) == 0 {
		return
	}
	byPID := make(map[int]model.AudioClientInfo, len(clients))
	for _, c := range clients {
		byPID[c.PID] = c
	}
	for i := range procs {
		p := &procs[i]
		if c, ok := byPID[p.PID]; ok {
			p.IsAudioClient = true
			p.HasActiveStream = c.BufferSizeSamples != nil || c.SampleRateHz != nil
		}
	}
}

func (a *Assembler) foldEnergy(ctx context.Context, procs []model.ProcessRecord, now time.Time) {
	if len(procs) == 0 {
		return
	}
	in := energy.Inputs{
		ProcPower: make(map[int]uint64),
		EBPF:      make(map[int]uint64),
		RAPL:      make(map[int]uint64),
	}
	pids := make([]int, 0, len(procs))
	shares := make(map[int]float64, len(procs))
	for i := range procs {
		pids = append(pids, procs[i].PID)
		shares[procs[i].PID] = procs[i].CPUShare1s
		if uj, err := energy.ReadProcPower(procs[i].PID); err == nil {
			in.ProcPower[procs[i].PID] = uj
		}
	}

	if a.cfg.EnableRAPL {
		if domains, err := energy.ReadRAPL(); err == nil {
			total := energy.TotalMicrojoules(domains)
			in.RAPL = energy.ApportionByCPUShare(total, shares)
		}
	}

	if a.ebpfProgram != nil {
		if perPid, err := a.ebpfProgram.ReadPerPid(); err == nil {
			in.EBPF = perPid
		}
	}

	readings := a.cfg.Fuser.Fuse(pids, in)
	for i := range procs {
		if r, ok := readings[procs[i].PID]; ok {
			rc := r
			procs[i].Energy = &rc
		}
	}
}

// foldGPU attaches per-process GPU usage to ProcessRecord.GPU. AMDGPU's
// sysfs counters are per-device, not per-pid, so that source only ever
// contributes a degraded marker on failure; NVIDIA's per-process query is
// the one source with real pid attribution and is attached the same way
// foldEnergy attaches per-pid energy readings.
func (a *Assembler) foldGPU(ctx context.Context, snap *model.Snapshot) {
	if !a.cfg.EnableAMDGPU {
		return
	}
	if _, err := gpu.ReadAMDGPU(); err != nil && model.KindOf(err) != model.Unavailable {
		markDegraded(snap, "gpu")
	}

	timeout := a.cfg.ReaderTimeout
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	nvProcs, err := gpu.ReadNVIDIAProcesses(ctx, timeout)
	if err != nil {
		if model.KindOf(err) != model.Unavailable {
			markDegraded(snap, "gpu")
		}
		return
	}

	byPID := make(map[int]model.GPUUsage, len(nvProcs))
	for _, p := range nvProcs {
		byPID[p.PID] = p.ToUsage()
	}
	for i := range snap.Processes {
		if usage, ok := byPID[snap.Processes[i].PID]; ok {
			u := usage
			snap.Processes[i].GPU = &u
		}
	}
}
