// Package gpu reads per-process and per-device GPU utilisation: AMDGPU via
// sysfs, NVIDIA via an nvidia-smi shellout (no NVML cgo binding ships in
// this module's dependency set).
package gpu

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/smoothtask/smoothtaskd/model"
	"github.com/smoothtask/smoothtaskd/util"
)

const readerName = "gpu"

// AMDDevice is one /sys/class/drm/cardN/device AMDGPU instance.
type AMDDevice struct {
	Name              string
	UtilizationPct    float64
	MemoryUsedBytes   uint64
}

// ReadAMDGPU enumerates AMDGPU devices under /sys/class/drm and reads their
// busy-percent and VRAM usage counters. Absence of any amdgpu card is
// Unavailable.
func ReadAMDGPU() ([]AMDDevice, error) {
	matches, err := filepath.Glob("/sys/class/drm/card*/device/gpu_busy_percent")
	if err != nil {
		return nil, model.NewTransient(readerName, err)
	}
	if len(matches) == 0 {
		return nil, model.NewUnavailable(readerName, os.ErrNotExist)
	}

	var devices []AMDDevice
	for _, busyPath := range matches {
		deviceDir := filepath.Dir(busyPath)
		busyStr, err := util.ReadFileString(busyPath)
		if err != nil {
			continue
		}
		pct, err := strconv.ParseFloat(strings.TrimSpace(busyStr), 64)
		if err != nil {
			continue
		}
		var memUsed uint64
		if s, err := util.ReadFileString(filepath.Join(deviceDir, "mem_info_vram_used")); err == nil {
			memUsed = util.ParseUint64(s)
		}
		devices = append(devices, AMDDevice{
			Name:            filepath.Base(filepath.Dir(deviceDir)),
			UtilizationPct:  pct,
			MemoryUsedBytes: memUsed,
		})
	}
	if len(devices) == 0 {
		return nil, model.NewMalformed(readerName, os.ErrNotExist)
	}
	return devices, nil
}

// NVIDIAProcess is one row of nvidia-smi's per-process accounting query.
type NVIDIAProcess struct {
	PID            int
	MemoryUsedMiB  uint64
	Device         string
}

// ReadNVIDIAProcesses shells out to nvidia-smi, mirroring the audio reader's
// pattern of trusting a small external tool's text output instead of
// linking against a vendor C library.
func ReadNVIDIAProcesses(ctx context.Context, timeout time.Duration) ([]NVIDIAProcess, error) {
	if _, err := exec.LookPath("nvidia-smi"); err != nil {
		return nil, model.NewUnavailable(readerName, err)
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(cctx, "nvidia-smi",
		"--query-compute-apps=pid,used_memory,gpu_name",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		return nil, model.NewTransient(readerName, err)
	}

	return parseNVIDIASMICSV(string(out)), nil
}

// parseNVIDIASMICSV parses "pid, used_memory, gpu_name" rows, skipping any
// row that doesn't have a well-formed pid/memory pair.
func parseNVIDIASMICSV(out string) []NVIDIAProcess {
	var procs []NVIDIAProcess
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 3 {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			continue
		}
		mem, err := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 64)
		if err != nil {
			continue
		}
		procs = append(procs, NVIDIAProcess{
			PID:           pid,
			MemoryUsedMiB: mem,
			Device:        strings.TrimSpace(fields[2]),
		})
	}
	return procs
}

// ToUsage converts an NVIDIA per-process row into the generic GPUUsage
// shape carried on a ProcessRecord.
func (p NVIDIAProcess) ToUsage() model.GPUUsage {
	return model.GPUUsage{
		MemoryBytes: p.MemoryUsedMiB * 1024 * 1024,
		Device:      p.Device,
	}
}
