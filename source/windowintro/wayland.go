package windowintro

import (
	"fmt"

	"github.com/smoothtask/smoothtaskd/model"
)

// waylandIntrospector would bind wlr-foreign-toplevel-management-unstable-v1
// to list toplevels and their owning PIDs. No Wayland client protocol
// library ships in this module's dependency set, so it reports Unavailable
// rather than link against one; a compositor-specific IPC tool (e.g.
// swaymsg for sway) is the likely path to a real implementation.
type waylandIntrospector struct{}

func (waylandIntrospector) Windows() ([]model.WindowInfo, error) {
	return nil, model.NewUnavailable(readerName, fmt.Errorf("wayland toplevel introspection not implemented"))
}
