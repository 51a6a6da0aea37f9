package energy

import (
	"testing"

	"github.com/smoothtask/smoothtaskd/model"
)

func TestFusePrefersProcPowerOverEBPFOverRAPL(t *testing.T) {
	f := NewFuser()
	in := Inputs{
		ProcPower: map[int]uint64{1: 100},
		EBPF:      map[int]uint64{1: 200, 2: 300},
		RAPL:      map[int]uint64{1: 400, 2: 400, 3: 500},
	}
	out := f.Fuse([]int{1, 2, 3, 4}, in)

	if out[1].Source != model.EnergyProcPower || out[1].EnergyMicrojoules != 100 {
		t.Fatalf("pid 1 expected proc_power 100, got %+v", out[1])
	}
	if out[2].Source != model.EnergyEBPF || out[2].EnergyMicrojoules != 300 {
		t.Fatalf("pid 2 expected ebpf 300, got %+v", out[2])
	}
	if out[3].Source != model.EnergyRAPL || out[3].EnergyMicrojoules != 500 {
		t.Fatalf("pid 3 expected rapl 500, got %+v", out[3])
	}
	if out[4].Source != model.EnergyNone || out[4].IsReliable {
		t.Fatalf("pid 4 expected unreliable none, got %+v", out[4])
	}
}

func TestFuseIsIdempotent(t *testing.T) {
	f := NewFuser()
	in := Inputs{EBPF: map[int]uint64{7: 42}}
	a := f.Fuse([]int{7}, in)
	b := f.Fuse([]int{7}, in)
	if a[7] != b[7] {
		t.Fatalf("expected identical fuse results for identical inputs: %+v vs %+v", a[7], b[7])
	}
}

func TestApportionByCPUShare(t *testing.T) {
	shares := map[int]float64{1: 0.5, 2: 0.25, 3: 0.25}
	out := ApportionByCPUShare(1000, shares)
	if out[1] != 500 || out[2] != 250 || out[3] != 250 {
		t.Fatalf("unexpected apportionment: %+v", out)
	}
}

func TestApportionByCPUShareZeroTotal(t *testing.T) {
	out := ApportionByCPUShare(1000, map[int]float64{1: 0, 2: 0})
	if len(out) != 0 {
		t.Fatalf("expected empty apportionment when total cpu share is zero, got %+v", out)
	}
}
