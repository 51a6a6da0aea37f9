package grouper

import (
	"testing"
	"time"

	"github.com/smoothtask/smoothtaskd/model"
)

func TestGroupAllPartitionsByPID(t *testing.T) {
	now := time.Now()
	processes := []model.ProcessRecord{
		{PID: 1, PPID: 0, CgroupPath: "/user.slice/user-1000.slice/app.slice/app-firefox.scope", CPUShare1s: 0.1, StartTime: now},
		{PID: 2, PPID: 1, CgroupPath: "/user.slice/user-1000.slice/app.slice/app-firefox.scope", CPUShare1s: 0.2, StartTime: now.Add(time.Second)},
		{PID: 3, PPID: 0, SystemdUnit: "sshd.service", CPUShare1s: 0.05, StartTime: now},
		{PID: 4, PPID: 0, CPUShare1s: 0.01, StartTime: now},
	}

	groups := GroupAll(processes)

	seen := map[int]bool{}
	for _, g := range groups {
		for _, pid := range g.Members {
			if seen[pid] {
				t.Fatalf("pid %d appears in more than one group", pid)
			}
			seen[pid] = true
		}
	}
	for _, p := range processes {
		if !seen[p.PID] {
			t.Fatalf("pid %d missing from any group", p.PID)
		}
	}
}

func TestGroupAllAggregatesCPUAndRSS(t *testing.T) {
	now := time.Now()
	processes := []model.ProcessRecord{
		{PID: 1, CgroupPath: "/app.slice/app-foo.scope", CPUShare1s: 0.3, RSSBytes: 100, StartTime: now},
		{PID: 2, CgroupPath: "/app.slice/app-foo.scope", CPUShare1s: 0.2, RSSBytes: 50, StartTime: now.Add(-time.Second), HasGUIWindow: true},
	}
	groups := GroupAll(processes)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if g.CPUShareSum != 0.5 || g.RSSSum != 150 {
		t.Fatalf("unexpected aggregation: %+v", g)
	}
	if !g.HasGUIWindow {
		t.Fatalf("expected HasGUIWindow true")
	}
	if !g.EarliestStart.Equal(now.Add(-time.Second)) {
		t.Fatalf("expected earliest start to be the earlier timestamp")
	}
}

func TestStableGroupIDAcrossTicks(t *testing.T) {
	p := model.ProcessRecord{PID: 1, CgroupPath: "/app.slice/app-foo.scope"}
	g1 := GroupAll([]model.ProcessRecord{p})
	g2 := GroupAll([]model.ProcessRecord{p})
	if g1[0].AppGroupID != g2[0].AppGroupID {
		t.Fatalf("expected stable group id across ticks, got %q vs %q", g1[0].AppGroupID, g2[0].AppGroupID)
	}
}

func TestSessionLeaderFallback(t *testing.T) {
	processes := []model.ProcessRecord{
		{PID: 10, PPID: 0},
		{PID: 11, PPID: 10},
		{PID: 12, PPID: 11},
	}
	groups := GroupAll(processes)
	if len(groups) != 1 {
		t.Fatalf("expected all three to fall back to the same session leader, got %d groups", len(groups))
	}
	if groups[0].AppGroupID != "leader:10" {
		t.Fatalf("expected leader:10, got %q", groups[0].AppGroupID)
	}
}

func TestInheritsHighestProcessType(t *testing.T) {
	processes := []model.ProcessRecord{
		{PID: 1, CgroupPath: "/app.slice/app-foo.scope", ProcessType: model.TypeBackground},
		{PID: 2, CgroupPath: "/app.slice/app-foo.scope", ProcessType: model.TypeCriticalInteractive},
	}
	groups := GroupAll(processes)
	if groups[0].ProcessType != model.TypeCriticalInteractive {
		t.Fatalf("expected group to inherit critical_interactive, got %v", groups[0].ProcessType)
	}
}
