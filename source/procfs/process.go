package procfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/smoothtask/smoothtaskd/model"
	"github.com/smoothtask/smoothtaskd/util"
)

// bootTime is cached once per process lifetime; it never changes while the
// daemon runs.
var bootTime = readBootTime()

func readBootTime() time.Time {
	kv, err := util.ParseKeyValueFile("/proc/stat")
	if err != nil {
		return time.Time{}
	}
	secs := util.ParseUint64(kv["btime"])
	if secs == 0 {
		return time.Time{}
	}
	return time.Unix(int64(secs), 0)
}

func readProcess(pid int) (model.ProcessRecord, error) {
	var pr model.ProcessRecord
	pr.PID = pid
	dir := fmt.Sprintf("/proc/%d", pid)

	if err := readStat(dir, &pr); err != nil {
		return pr, err
	}
	readStatus(dir, &pr)
	readIO(dir, &pr)
	readEnviron(dir, &pr)
	readCgroup(dir, &pr)
	pr.Exe, _ = os.Readlink(filepath.Join(dir, "exe"))
	if cmd, err := util.ReadFileString(filepath.Join(dir, "cmdline")); err == nil {
		pr.Cmdline = strings.ReplaceAll(strings.TrimRight(cmd, "\x00"), "\x00", " ")
	}

	return pr, nil
}

func readStat(dir string, pr *model.ProcessRecord) error {
	content, err := util.ReadFileString(filepath.Join(dir, "stat"))
	if err != nil {
		return err
	}

	closeIdx := strings.LastIndex(content, ")")
	openIdx := strings.Index(content, "(")
	if closeIdx < 0 || openIdx < 0 {
		return fmt.Errorf("bad stat format for pid in %s", dir)
	}
	rest := strings.Fields(content[closeIdx+2:])
	if len(rest) < 20 {
		return fmt.Errorf("stat too short for %s", dir)
	}

	pr.State = rest[0]
	pr.PPID = util.ParseInt(rest[1])
	pr.UTimeTicks = util.ParseUint64(rest[11])
	pr.STimeTicks = util.ParseUint64(rest[12])

	startTicks := util.ParseUint64(rest[19])
	if !bootTime.IsZero() {
		clkTck := uint64(100) // USER_HZ is 100 on virtually all Linux distros
		pr.StartTime = bootTime.Add(time.Duration(startTicks/clkTck) * time.Second)
		pr.UptimeSec = time.Since(pr.StartTime).Seconds()
		if pr.UptimeSec < 0 {
			pr.UptimeSec = 0
		}
	}

	return nil
}

func readStatus(dir string, pr *model.ProcessRecord) {
	kv, err := util.ParseKeyValueFile(filepath.Join(dir, "status"))
	if err != nil {
		return
	}
	pr.RSSBytes = parseKB(kv["VmRSS"])
	pr.SwapBytes = parseKB(kv["VmSwap"])
	pr.VoluntaryCtxSwitches = util.ParseUint64(kv["voluntary_ctxt_switches"])
	pr.InvoluntaryCtxSwitches = util.ParseUint64(kv["nonvoluntary_ctxt_switches"])
	if uids := strings.Fields(kv["Uid"]); len(uids) > 0 {
		pr.UID = util.ParseInt(uids[0])
	}
	if gids := strings.Fields(kv["Gid"]); len(gids) > 0 {
		pr.GID = util.ParseInt(gids[0])
	}
}

func parseKB(s string) uint64 {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	return util.ParseUint64(fields[0]) * 1024
}

func readIO(dir string, pr *model.ProcessRecord) {
	kv, err := util.ParseKeyValueFile(filepath.Join(dir, "io"))
	if err != nil {
		return // unreadable without permission; leave zero, not an error
	}
	pr.ReadBytes = util.ParseUint64(kv["read_bytes"])
	pr.WriteBytes = util.ParseUint64(kv["write_bytes"])
	pr.ReadOps = util.ParseUint64(kv["syscr"])
	pr.WriteOps = util.ParseUint64(kv["syscw"])
}

// readCgroup extracts the cgroup v2 unified path (hierarchy id "0").
// Falls back to the first colon-delimited path present, for cgroup v1/hybrid
// systems where no "0:" line exists.
func readCgroup(dir string, pr *model.ProcessRecord) {
	content, err := util.ReadFileString(filepath.Join(dir, "cgroup"))
	if err != nil {
		return
	}
	var fallback string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			continue
		}
		if parts[0] == "0" {
			pr.CgroupPath = parts[2]
			deriveSystemdUnit(pr)
			return
		}
		if fallback == "" {
			fallback = parts[2]
		}
	}
	pr.CgroupPath = fallback
	deriveSystemdUnit(pr)
}

// deriveSystemdUnit falls back to the cgroup path's trailing *.service or
// *.scope segment when SYSTEMD_UNIT wasn't already found in the process's
// environment; systemd doesn't set that variable for ordinary unit members,
// so without this the grouper's systemd_unit fallback tier is rarely
// reachable.
func deriveSystemdUnit(pr *model.ProcessRecord) {
	if pr.SystemdUnit != "" {
		return
	}
	seg := pr.CgroupPath
	if idx := strings.LastIndex(seg, "/"); idx >= 0 {
		seg = seg[idx+1:]
	}
	if strings.HasSuffix(seg, ".service") || strings.HasSuffix(seg, ".scope") {
		pr.SystemdUnit = seg
	}
}

func readEnviron(dir string, pr *model.ProcessRecord) {
	content, err := util.ReadFileString(filepath.Join(dir, "environ"))
	if err != nil {
		return // permission denied is common and not an error
	}
	for _, kv := range strings.Split(content, "\x00") {
		if kv == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch k {
		case "DISPLAY":
			pr.Env.HasDisplay = v != ""
		case "WAYLAND_DISPLAY":
			pr.Env.HasWayland = v != ""
		case "SSH_CONNECTION", "SSH_CLIENT", "SSH_TTY":
			pr.Env.IsSSH = true
		case "TERM":
			pr.Env.Term = v
		case "SYSTEMD_UNIT": // set inside some systemd-run scopes
			pr.SystemdUnit = v
		}
	}
}
