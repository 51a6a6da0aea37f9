// Package windowintro enumerates top-level GUI windows and their owning
// PIDs, picking an X11 or Wayland backend based on the running session.
package windowintro

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/smoothtask/smoothtaskd/model"
)

const readerName = "window_introspector"

// Introspector enumerates the current top-level windows.
type Introspector interface {
	Windows() ([]model.WindowInfo, error)
}

// Detect picks a backend using the same environment signals a desktop
// session exposes: a Wayland socket or WAYLAND_DISPLAY/XDG_SESSION_TYPE
// implies Wayland, an X11 DISPLAY implies X11, otherwise no introspector is
// available (e.g. a headless server or bare SSH session).
func Detect() Introspector {
	if isWaylandSession() {
		return &waylandIntrospector{}
	}
	if os.Getenv("DISPLAY") != "" {
		return &x11Introspector{}
	}
	return noneIntrospector{}
}

func isWaylandSession() bool {
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		return true
	}
	if strings.EqualFold(os.Getenv("XDG_SESSION_TYPE"), "wayland") {
		return true
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = filepath.Join("/run/user", strconv.Itoa(os.Getuid()))
	}
	matches, _ := filepath.Glob(filepath.Join(runtimeDir, "wayland-*"))
	return len(matches) > 0
}

type noneIntrospector struct{}

func (noneIntrospector) Windows() ([]model.WindowInfo, error) {
	return nil, model.NewUnavailable(readerName, os.ErrNotExist)
}
