package energy

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/smoothtask/smoothtaskd/model"
	"github.com/smoothtask/smoothtaskd/util"
)

const procPowerReaderName = "energy_proc_power"

// ReadProcPower reads a per-process power file, if the kernel or a vendor
// driver exposes one at /proc/[pid]/power/energy_uj. This surface is rare in
// upstream kernels (it exists on some embedded/vendor builds) so its absence
// is the common case and is Unavailable rather than an error.
func ReadProcPower(pid int) (uint64, error) {
	path := filepath.Join("/proc", strconv.Itoa(pid), "power", "energy_uj")
	s, err := util.ReadFileString(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, model.NewUnavailable(procPowerReaderName, err)
		}
		return 0, model.NewTransient(procPowerReaderName, err)
	}
	return util.ParseUint64(s), nil
}
