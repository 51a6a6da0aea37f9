// Package procfs enumerates running processes from /proc, fanning the
// per-pid parse out across a bounded worker pool.
package procfs

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"sync"

	"github.com/smoothtask/smoothtaskd/model"
	"golang.org/x/sync/semaphore"
)

const readerName = "procfs"

// Enumerator scans /proc/[0-9]+ and parses each process concurrently.
type Enumerator struct {
	// Parallelism bounds concurrent per-pid parses. Zero means
	// runtime.NumCPU().
	Parallelism int
}

// NewEnumerator returns an Enumerator defaulting parallelism to the number
// of available cores.
func NewEnumerator() *Enumerator {
	return &Enumerator{Parallelism: runtime.NumCPU()}
}

// Collect scans /proc and returns every process that could still be read.
// A pid that exits between readdir and open degrades silently — it is
// simply omitted, never treated as an error for the whole tick.
func (e *Enumerator) Collect(ctx context.Context) ([]model.ProcessRecord, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.NewUnavailable(readerName, err)
		}
		return nil, model.NewTransient(readerName, err)
	}

	parallelism := e.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	sem := semaphore.NewWeighted(int64(parallelism))

	var mu sync.Mutex
	var procs []model.ProcessRecord
	var wg sync.WaitGroup

	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(ent.Name())
		if err != nil || pid <= 0 {
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			// context cancelled mid fan-out: stop launching new work but
			// let in-flight parses finish via wg.Wait below.
			break
		}
		wg.Add(1)
		go func(pid int) {
			defer sem.Release(1)
			defer wg.Done()
			pr, err := readProcess(pid)
			if err != nil {
				return // process may have exited; not an error for the tick
			}
			mu.Lock()
			procs = append(procs, pr)
			mu.Unlock()
		}(pid)
	}

	wg.Wait()
	return procs, nil
}
