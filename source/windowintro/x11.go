package windowintro

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/smoothtask/smoothtaskd/model"
)

// x11Introspector shells out to wmctrl, the same way the audio reader
// shells out to pw-dump: a small trusted external tool whose text output is
// parsed, instead of linking against the Xlib/XCB C libraries directly.
type x11Introspector struct{}

func (x11Introspector) Windows() ([]model.WindowInfo, error) {
	if _, err := exec.LookPath("wmctrl"); err != nil {
		return nil, model.NewUnavailable(readerName, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	out, err := exec.CommandContext(ctx, "wmctrl", "-l", "-p").Output()
	if err != nil {
		return nil, model.NewTransient(readerName, err)
	}

	activeID := activeWindowID()

	var windows []model.WindowInfo
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		pid, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimPrefix(fields[0], "0x"), 16, 64)
		if err != nil {
			continue
		}
		title := strings.Join(fields[4:], " ")
		windows = append(windows, model.WindowInfo{
			PID:     pid,
			Title:   title,
			Focused: activeID != 0 && id == activeID,
		})
	}
	return windows, nil
}

// activeWindowID asks xprop for the root window's _NET_ACTIVE_WINDOW id.
// Failure here just means no window is reported as focused.
func activeWindowID() uint64 {
	if _, err := exec.LookPath("xprop"); err != nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	out, err := exec.CommandContext(ctx, "xprop", "-root", "_NET_ACTIVE_WINDOW").Output()
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return 0
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(fields[len(fields)-1], "0x"), 16, 64)
	if err != nil {
		return 0
	}
	return id
}
