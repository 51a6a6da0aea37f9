// Package energy fuses RAPL, eBPF, and per-process power readings into a
// single per-pid energy estimate with a reliability flag.
package energy

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/smoothtask/smoothtaskd/model"
	"github.com/smoothtask/smoothtaskd/util"
)

const raplReaderName = "energy_rapl"

// RAPLDomain is one powercap zone under /sys/class/powercap.
type RAPLDomain struct {
	Name            string
	EnergyMicrojoules uint64
	MaxMicrojoules  uint64
}

// ReadRAPL enumerates /sys/class/powercap/intel-rapl:* (and subzones) and
// reads each domain's cumulative energy counter. Absence of the powercap
// sysfs tree is Unavailable.
func ReadRAPL() ([]RAPLDomain, error) {
	matches, err := filepath.Glob("/sys/class/powercap/intel-rapl*")
	if err != nil {
		return nil, model.NewTransient(raplReaderName, err)
	}
	if len(matches) == 0 {
		return nil, model.NewUnavailable(raplReaderName, os.ErrNotExist)
	}

	var domains []RAPLDomain
	for _, dir := range matches {
		name, err := util.ReadFileString(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		energyStr, err := util.ReadFileString(filepath.Join(dir, "energy_uj"))
		if err != nil {
			continue
		}
		maxStr, _ := util.ReadFileString(filepath.Join(dir, "max_energy_range_uj"))
		domains = append(domains, RAPLDomain{
			Name:              strings.TrimSpace(name),
			EnergyMicrojoules: util.ParseUint64(energyStr),
			MaxMicrojoules:    util.ParseUint64(maxStr),
		})
	}
	if len(domains) == 0 {
		return nil, model.NewMalformed(raplReaderName, os.ErrNotExist)
	}
	return domains, nil
}

// TotalMicrojoules sums all domain readings into a package-wide total.
func TotalMicrojoules(domains []RAPLDomain) uint64 {
	var total uint64
	for _, d := range domains {
		total += d.EnergyMicrojoules
	}
	return total
}

// ApportionByCPUShare splits a package-wide RAPL energy delta across pids
// proportionally to each pid's share of total CPU time over the window, per
// the fuser's rule that RAPL-derived per-process energy is apportioned by
// CPU share rather than measured directly.
func ApportionByCPUShare(deltaMicrojoules uint64, cpuShares map[int]float64) map[int]uint64 {
	result := make(map[int]uint64, len(cpuShares))
	var total float64
	for _, share := range cpuShares {
		total += share
	}
	if total <= 0 {
		return result
	}
	for pid, share := range cpuShares {
		result[pid] = uint64(float64(deltaMicrojoules) * share / total)
	}
	return result
}
