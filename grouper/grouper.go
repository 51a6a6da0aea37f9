// Package grouper partitions a tick's processes into AppGroupRecords by
// their nearest systemd scope/slice ancestor, falling back to the systemd
// unit, the session scope, or the session leader pid.
package grouper

import (
	"sort"
	"strconv"
	"strings"

	"github.com/smoothtask/smoothtaskd/model"
)

// GroupAll partitions processes into app groups. The result is a partition
// of the input by pid: every input pid appears in exactly one group's
// Members, and the groups are pairwise disjoint.
func GroupAll(processes []model.ProcessRecord) []model.AppGroupRecord {
	byKey := make(map[string]*model.AppGroupRecord)
	var order []string

	ppid := make(map[int]int, len(processes))
	for _, p := range processes {
		ppid[p.PID] = p.PPID
	}

	for i := range processes {
		p := &processes[i]
		key := groupingKey(p, ppid)

		g, ok := byKey[key]
		if !ok {
			g = &model.AppGroupRecord{AppGroupID: key, EarliestStart: p.StartTime}
			byKey[key] = g
			order = append(order, key)
		}
		g.Members = append(g.Members, p.PID)
		g.CPUShareSum += p.CPUShare1s
		g.RSSSum += p.RSSBytes
		if p.HasGUIWindow {
			g.HasGUIWindow = true
		}
		if p.IsAudioClient || p.HasActiveStream {
			g.HasAudio = true
		}
		if !p.StartTime.IsZero() && (g.EarliestStart.IsZero() || p.StartTime.Before(g.EarliestStart)) {
			g.EarliestStart = p.StartTime
		}
		g.InheritClassification(p)
	}

	sort.Strings(order)
	groups := make([]model.AppGroupRecord, 0, len(order))
	for _, key := range order {
		groups = append(groups, *byKey[key])
	}
	return groups
}

// groupingKey computes the grouping key for one process, per §4.D:
// nearest app-*.scope/app-*.slice ancestor in cgroup_path, else
// systemd_unit, else the session.scope ancestor, else the session leader
// pid (the root of its parent chain within this tick's process set).
func groupingKey(p *model.ProcessRecord, ppid map[int]int) string {
	if scope, ok := nearestAppScope(p.CgroupPath); ok {
		return "scope:" + scope
	}
	if p.SystemdUnit != "" {
		return "unit:" + p.SystemdUnit
	}
	if session, ok := nearestSessionScope(p.CgroupPath); ok {
		return "session:" + session
	}
	return "leader:" + strconv.Itoa(sessionLeaderPID(p.PID, ppid))
}

// sessionLeaderPID walks the parent chain within this tick's process set
// until it reaches a pid whose parent isn't present (the session's root
// within the sampled tree), treating that pid as the session leader.
func sessionLeaderPID(pid int, ppid map[int]int) int {
	seen := map[int]bool{pid: true}
	for {
		parent, ok := ppid[pid]
		if !ok || parent == pid || seen[parent] {
			return pid
		}
		if _, present := ppid[parent]; !present {
			return pid
		}
		pid = parent
		seen[pid] = true
	}
}

// nearestAppScope finds the deepest path segment matching app-*.scope,
// app-*.slice, or the literal app.slice, within a cgroup path such as
// "/user.slice/user-1000.slice/user@1000.service/app.slice/app-foo.scope".
func nearestAppScope(cgroupPath string) (string, bool) {
	segments := strings.Split(strings.Trim(cgroupPath, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if seg == "app.slice" {
			return seg, true
		}
		if strings.HasPrefix(seg, "app-") && (strings.HasSuffix(seg, ".scope") || strings.HasSuffix(seg, ".slice")) {
			return seg, true
		}
	}
	return "", false
}

func nearestSessionScope(cgroupPath string) (string, bool) {
	segments := strings.Split(strings.Trim(cgroupPath, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] == "session.scope" || strings.HasPrefix(segments[i], "session-") {
			return segments[i], true
		}
	}
	return "", false
}
