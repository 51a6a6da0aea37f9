package energy

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"

	smtmodel "github.com/smoothtask/smoothtaskd/model"
)

const ebpfReaderName = "energy_ebpf"

// BTFInfo describes whether the running kernel supports BTF/CO-RE, which
// the energy tracepoint program requires.
type BTFInfo struct {
	Available     bool
	KernelVersion string
	Major, Minor  int
	CORESupport   bool
}

// DetectBTF probes /sys/kernel/btf/vmlinux and the running kernel version.
func DetectBTF() *BTFInfo {
	info := &BTFInfo{KernelVersion: readKernelVersion()}
	info.Major, info.Minor = parseKernelVersion(info.KernelVersion)
	if _, err := os.Stat("/sys/kernel/btf/vmlinux"); err == nil {
		info.Available = true
	}
	if info.Major > 5 || (info.Major == 5 && info.Minor >= 8) {
		info.CORESupport = true
	}
	return info
}

func readKernelVersion() string {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return ""
	}
	fields := strings.Fields(string(data))
	if len(fields) >= 3 {
		return fields[2]
	}
	return ""
}

func parseKernelVersion(version string) (int, int) {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return 0, 0
	}
	major, _ := strconv.Atoi(parts[0])
	minorStr := parts[1]
	if idx := strings.IndexAny(minorStr, "-+~"); idx >= 0 {
		minorStr = minorStr[:idx]
	}
	minor, _ := strconv.Atoi(minorStr)
	return major, minor
}

// EnergyProgramSpec describes the compiled tracepoint program that samples
// per-pid energy/cycle counters into a BPF hash map.
type EnergyProgramSpec struct {
	ObjectFile string
	MapName    string
	Tracepoint string // event name within the "sched" group, e.g. "sched_switch"
}

// DefaultEnergyProgram names the compiled tracepoint object the daemon loads
// on hosts with CO-RE support. The object file is not part of this
// repository; where it is absent at ObjectFile, Load fails.
var DefaultEnergyProgram = EnergyProgramSpec{
	ObjectFile: "internal/ebpf/bpf/energy_sample.o",
	MapName:    "pid_energy",
	Tracepoint: "sched_switch",
}

// LoadedEnergyProgram wraps the loaded collection and its attached link.
type LoadedEnergyProgram struct {
	Spec       EnergyProgramSpec
	Collection *ebpf.Collection
	Link       link.Link
}

// Close releases the kernel-side program and its link.
func (p *LoadedEnergyProgram) Close() error {
	if p.Link != nil {
		p.Link.Close()
	}
	if p.Collection != nil {
		p.Collection.Close()
	}
	return nil
}

// Loader attaches the energy tracepoint program when the kernel supports
// BTF/CO-RE; on older kernels CanLoad reports false and callers should fall
// back to RAPL apportionment.
type Loader struct {
	btf *BTFInfo
}

// NewLoader probes BTF availability once, at construction.
func NewLoader() *Loader {
	return &Loader{btf: DetectBTF()}
}

// CanLoad reports whether this host can run the energy eBPF program.
func (l *Loader) CanLoad() bool {
	return l.btf.Available && l.btf.CORESupport
}

// Load loads and attaches spec, returning the running program.
func (l *Loader) Load(spec EnergyProgramSpec) (*LoadedEnergyProgram, error) {
	if !l.CanLoad() {
		return nil, smtmodel.NewUnavailable(ebpfReaderName,
			fmt.Errorf("BTF/CO-RE unavailable (kernel %s)", l.btf.KernelVersion))
	}

	collSpec, err := ebpf.LoadCollectionSpec(spec.ObjectFile)
	if err != nil {
		return nil, smtmodel.NewUnavailable(ebpfReaderName, fmt.Errorf("load spec: %w", err))
	}
	coll, err := ebpf.NewCollection(collSpec)
	if err != nil {
		return nil, smtmodel.NewTransient(ebpfReaderName, fmt.Errorf("load collection: %w", err))
	}

	prog, ok := coll.Programs[spec.Tracepoint]
	if !ok {
		for _, p := range coll.Programs {
			prog = p
			break
		}
	}
	if prog == nil {
		coll.Close()
		return nil, smtmodel.NewMalformed(ebpfReaderName, fmt.Errorf("program not found in collection"))
	}

	tp, err := link.Tracepoint("sched", spec.Tracepoint, prog, nil)
	if err != nil {
		coll.Close()
		return nil, smtmodel.NewTransient(ebpfReaderName, fmt.Errorf("attach tracepoint %s: %w", spec.Tracepoint, err))
	}

	return &LoadedEnergyProgram{Spec: spec, Collection: coll, Link: tp}, nil
}

// ReadPerPid reads the pid->cumulative-energy-microjoules map populated by
// the attached program.
func (p *LoadedEnergyProgram) ReadPerPid() (map[int]uint64, error) {
	m := p.Collection.Maps[p.Spec.MapName]
	if m == nil {
		return nil, smtmodel.NewMalformed(ebpfReaderName, fmt.Errorf("map %q not present", p.Spec.MapName))
	}
	result := make(map[int]uint64)
	var key uint32
	var value uint64
	iter := m.Iterate()
	for iter.Next(&key, &value) {
		result[int(key)] = value
	}
	if err := iter.Err(); err != nil {
		return result, smtmodel.NewTransient(ebpfReaderName, err)
	}
	return result, nil
}
