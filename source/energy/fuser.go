package energy

import "github.com/smoothtask/smoothtaskd/model"

// Fuser merges proc_power, eBPF, and RAPL-apportioned readings into one
// per-pid energy estimate, preferring the most reliable source available
// for each pid. The merge is pure given its inputs, so repeated calls with
// identical inputs produce identical output.
type Fuser struct{}

// NewFuser constructs a stateless fuser.
func NewFuser() *Fuser { return &Fuser{} }

// Inputs collects one tick's worth of readings from every energy source.
// A nil map means that source was unavailable this tick.
type Inputs struct {
	ProcPower map[int]uint64 // pid -> microjoules, direct read
	EBPF      map[int]uint64 // pid -> microjoules, kernel-tracked
	RAPL      map[int]uint64 // pid -> microjoules, apportioned by CPU share
}

// Fuse produces one reading per pid in pids (pids present only in the
// inputs are ignored), applying the priority order proc_power > ebpf >
// rapl > none.
func (f *Fuser) Fuse(pids []int, in Inputs) map[int]model.EnergyReading {
	result := make(map[int]model.EnergyReading, len(pids))
	for _, pid := range pids {
		result[pid] = f.fuseOne(pid, in)
	}
	return result
}

func (f *Fuser) fuseOne(pid int, in Inputs) model.EnergyReading {
	if in.ProcPower != nil {
		if uj, ok := in.ProcPower[pid]; ok {
			return model.EnergyReading{EnergyMicrojoules: uj, Source: model.EnergyProcPower, IsReliable: true}
		}
	}
	if in.EBPF != nil {
		if uj, ok := in.EBPF[pid]; ok {
			return model.EnergyReading{EnergyMicrojoules: uj, Source: model.EnergyEBPF, IsReliable: true}
		}
	}
	if in.RAPL != nil {
		if uj, ok := in.RAPL[pid]; ok {
			return model.EnergyReading{EnergyMicrojoules: uj, Source: model.EnergyRAPL, IsReliable: true}
		}
	}
	return model.EnergyReading{Source: model.EnergyNone, IsReliable: false}
}
