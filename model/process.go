package model

import "time"

// ProcessType is the classification a process is assigned by the rule or ML
// classifier. Ordered from least to most deserving of responsiveness.
type ProcessType int

const (
	TypeUnknown ProcessType = iota
	TypeIdle
	TypeBackground
	TypeNormal
	TypeInteractive
	TypeCriticalInteractive
)

func (t ProcessType) String() string {
	switch t {
	case TypeCriticalInteractive:
		return "critical_interactive"
	case TypeInteractive:
		return "interactive"
	case TypeNormal:
		return "normal"
	case TypeBackground:
		return "background"
	case TypeIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// higher returns the more-interactive of two process types, used when an
// AppGroupRecord inherits the classification of its most demanding member.
func higher(a, b ProcessType) ProcessType {
	if b > a {
		return b
	}
	return a
}

// EnergySource tags where an energy/power reading came from, in ascending
// order of trust.
type EnergySource int

const (
	EnergyNone EnergySource = iota
	EnergyRAPL
	EnergyEBPF
	EnergyProcPower
)

func (s EnergySource) String() string {
	switch s {
	case EnergyProcPower:
		return "proc_power"
	case EnergyEBPF:
		return "ebpf"
	case EnergyRAPL:
		return "rapl"
	default:
		return "none"
	}
}

// EnergyReading is a per-process energy/power estimate with provenance.
type EnergyReading struct {
	EnergyMicrojoules uint64
	PowerWatts        float64
	Source            EnergySource
	IsReliable        bool
}

// GPUUsage holds per-process GPU activity, when a GPU reader could attribute
// it to this pid.
type GPUUsage struct {
	UtilizationPct float64
	MemoryBytes    uint64
	TimeMs         uint64
	Device         string
}

// NetworkUsage holds per-process network activity, when attributable.
type NetworkUsage struct {
	TxBytes   uint64
	RxBytes   uint64
	ConnCount int
}

// EnvFlags records environment markers read from /proc/[pid]/environ.
type EnvFlags struct {
	HasDisplay bool
	HasWayland bool
	IsSSH      bool
	Term       string
}

// ProcessRecord is one process observed at one tick. It is created fresh by
// the snapshot assembler every tick and never mutated after publication.
type ProcessRecord struct {
	PID  int
	PPID int
	UID  int
	GID  int

	Exe     string // optional; empty if unreadable (e.g. permission denied)
	Cmdline string // optional; empty if unreadable

	CgroupPath  string
	SystemdUnit string

	State     string
	StartTime time.Time
	UptimeSec float64

	CPUShare1s  float64
	CPUShare10s float64

	// UTimeTicks/STimeTicks are raw jiffy counters from /proc/[pid]/stat,
	// retained so the assembler can diff consecutive ticks into
	// CPUShare1s/CPUShare10s. Not part of the published data model proper.
	UTimeTicks uint64
	STimeTicks uint64

	ReadBytes  uint64
	WriteBytes uint64
	ReadOps    uint64
	WriteOps   uint64

	RSSBytes  uint64
	SwapBytes uint64

	VoluntaryCtxSwitches    uint64
	InvoluntaryCtxSwitches  uint64

	HasGUIWindow bool
	IsFocused    bool

	Env EnvFlags

	IsAudioClient   bool
	HasActiveStream bool

	Energy  *EnergyReading // nil if no energy source attributed
	Network *NetworkUsage  // nil if not collected
	GPU     *GPUUsage      // nil if not collected

	ProcessType ProcessType
	Tags        map[string]struct{}
}

// HasTag reports whether tag is present.
func (p *ProcessRecord) HasTag(tag string) bool {
	if p.Tags == nil {
		return false
	}
	_, ok := p.Tags[tag]
	return ok
}

// AddTag adds tag, allocating the set lazily.
func (p *ProcessRecord) AddTag(tag string) {
	if p.Tags == nil {
		p.Tags = make(map[string]struct{})
	}
	p.Tags[tag] = struct{}{}
}

// AppGroupRecord is a logical application derived from one or more
// processes sharing a cgroup ancestor, PID namespace, or session scope.
// Re-derived every tick; its id is stable across ticks iff its derivation
// key is stable.
type AppGroupRecord struct {
	AppGroupID string
	Members    []int // member PIDs, a partition of the tick's processes

	CPUShareSum  float64
	RSSSum       uint64
	HasGUIWindow bool
	HasAudio     bool
	EarliestStart time.Time

	ProcessType ProcessType
	Tags        map[string]struct{}
}

// InheritClassification folds a member's type/tags into the group,
// keeping the highest-priority process type and the tag union.
func (g *AppGroupRecord) InheritClassification(p *ProcessRecord) {
	g.ProcessType = higher(g.ProcessType, p.ProcessType)
	if len(p.Tags) == 0 {
		return
	}
	if g.Tags == nil {
		g.Tags = make(map[string]struct{}, len(p.Tags))
	}
	for t := range p.Tags {
		g.Tags[t] = struct{}{}
	}
}
