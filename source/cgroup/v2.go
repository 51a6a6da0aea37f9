// Package cgroup detects and reads the Linux cgroup v2 unified hierarchy.
package cgroup

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/smoothtask/smoothtaskd/model"
	"github.com/smoothtask/smoothtaskd/util"
)

const readerName = "cgroup_v2"

// Available reports whether cgroup v2 is mounted, by reading
// /proc/self/mountinfo for a "cgroup2" filesystem entry.
func Available() bool {
	_, ok := Root()
	return ok
}

// Root resolves the cgroup v2 unified hierarchy mount point from
// /proc/self/mountinfo. Returns ok=false if no cgroup2 mount is found.
func Root() (string, bool) {
	data, err := util.ReadFileString("/proc/self/mountinfo")
	if err != nil {
		return "", false
	}
	for _, line := range strings.Split(data, "\n") {
		// mountinfo fields: ... mountpoint ... - fstype source options
		if idx := strings.Index(line, " - "); idx >= 0 {
			tail := strings.Fields(line[idx+3:])
			if len(tail) > 0 && tail[0] == "cgroup2" {
				fields := strings.Fields(line[:idx])
				if len(fields) >= 5 {
					return fields[4], true
				}
			}
		}
	}
	return "", false
}

// Controllers returns the controllers enabled at root, from
// <root>/cgroup.controllers (space-separated, e.g. "cpu io memory pids").
func Controllers() ([]string, error) {
	root, ok := Root()
	if !ok {
		return nil, model.NewUnavailable(readerName, os.ErrNotExist)
	}
	data, err := util.ReadFileString(filepath.Join(root, "cgroup.controllers"))
	if err != nil {
		return nil, model.NewTransient(readerName, err)
	}
	return strings.Fields(data), nil
}

// ReadMetrics reads cgroup v2 accounting files for the cgroup at path
// (relative to the unified root, as found in /proc/[pid]/cgroup). Missing
// individual files (a controller not delegated to this cgroup) are treated
// as zero, not an error — only a wholly missing cgroup directory is
// Unavailable.
func ReadMetrics(cgroupPath string) (model.CgroupMetricsV2, error) {
	var cg model.CgroupMetricsV2
	root, ok := Root()
	if !ok {
		return cg, model.NewUnavailable(readerName, os.ErrNotExist)
	}
	dir := filepath.Join(root, cgroupPath)
	if _, err := os.Stat(dir); err != nil {
		return cg, model.NewUnavailable(readerName, err)
	}

	if kv, err := util.ParseKeyValueFile(filepath.Join(dir, "cpu.stat")); err == nil {
		cg.UsageUsec = util.ParseUint64(kv["usage_usec"])
		cg.ThrottledUsec = util.ParseUint64(kv["throttled_usec"])
		cg.NrThrottled = util.ParseUint64(kv["nr_throttled"])
		cg.NrPeriods = util.ParseUint64(kv["nr_periods"])
	}

	if s, err := readTrimmed(filepath.Join(dir, "cpu.weight")); err == nil {
		cg.CPUWeight = util.ParseUint64(s)
	}
	if s, err := readTrimmed(filepath.Join(dir, "memory.current")); err == nil {
		cg.MemCurrent = util.ParseUint64(s)
	}
	if s, err := readTrimmed(filepath.Join(dir, "memory.max")); err == nil && s != "max" {
		cg.MemMax = util.ParseUint64(s)
	}
	if kv, err := util.ParseKeyValueFile(filepath.Join(dir, "memory.events")); err == nil {
		cg.OOMKills = util.ParseUint64(kv["oom_kill"])
	}
	if s, err := readTrimmed(filepath.Join(dir, "io.weight")); err == nil {
		cg.IOWeight = util.ParseUint64(s)
	}
	readIOStat(filepath.Join(dir, "io.stat"), &cg)

	return cg, nil
}

func readTrimmed(path string) (string, error) {
	s, err := util.ReadFileString(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// readIOStat parses "MAJ:MIN rbytes=N wbytes=N rios=N wios=N" lines,
// summing across devices.
func readIOStat(path string, cg *model.CgroupMetricsV2) {
	lines, err := util.ReadFileLines(path)
	if err != nil {
		return
	}
	for _, line := range lines {
		for _, f := range strings.Fields(line) {
			k, v, ok := strings.Cut(f, "=")
			if !ok {
				continue
			}
			n := util.ParseUint64(v)
			switch k {
			case "rbytes":
				cg.IOReadBytes += n
			case "wbytes":
				cg.IOWriteBytes += n
			}
		}
	}
}

// WriteWeight writes a cgroup v2 control file such as cpu.weight or
// io.weight. Missing files (controller not delegated) are Unavailable, not
// fatal — callers should treat a failed write as "no effect" and move on.
// This is the single helper through which all cgroup writes go, per the
// design note that treats every missing control file uniformly.
func WriteWeight(cgroupPath, file string, value uint64) error {
	root, ok := Root()
	if !ok {
		return model.NewUnavailable(readerName, os.ErrNotExist)
	}
	path := filepath.Join(root, cgroupPath, file)
	if err := os.WriteFile(path, []byte(itoa(value)), 0o644); err != nil {
		if os.IsNotExist(err) || os.IsPermission(err) {
			return model.NewUnavailable(readerName, err)
		}
		return model.NewTransient(readerName, err)
	}
	return nil
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
