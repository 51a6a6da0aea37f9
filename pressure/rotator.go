package pressure

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RotatorConfig mirrors the LogRotator field set from §4.G.
type RotatorConfig struct {
	Path                string
	MaxSizeBytes        int64
	MaxFiles            int
	Compression         bool
	RotationIntervalSec float64
	MaxAge              time.Duration
	MaxTotalSizeBytes   int64
}

// LogRotator rotates one active log file into a numbered backlog
// (name.1, name.2, ...), following the same truncate-and-rename shape as
// the daemon's compact-summary rotation, generalized with a file count,
// age, and total-size ceiling plus optional gzip compression of rotated
// files.
type LogRotator struct {
	base    RotatorConfig
	current RotatorConfig
	shrunk  bool
}

// NewLogRotator builds a rotator with cfg as both its active and its
// restore-to ("base") configuration.
func NewLogRotator(cfg RotatorConfig) *LogRotator {
	return &LogRotator{base: cfg, current: cfg}
}

// Shrink halves max size, reduces max files, and shortens the rotation
// interval, per the pressure controller's step 2. Idempotent: calling it
// again while already shrunk has no further effect.
func (r *LogRotator) Shrink() {
	if r.shrunk {
		return
	}
	r.shrunk = true
	r.current.MaxSizeBytes = maxInt64(r.base.MaxSizeBytes/2, 1)
	r.current.MaxFiles = maxInt(r.base.MaxFiles/2, 1)
	r.current.RotationIntervalSec = r.base.RotationIntervalSec / 2
}

// Restore reverts to the base configuration.
func (r *LogRotator) Restore() {
	r.shrunk = false
	r.current = r.base
}

// ShouldRotate reports whether the active file has grown past the current
// max size.
func (r *LogRotator) ShouldRotate() bool {
	info, err := os.Stat(r.current.Path)
	if err != nil {
		return false
	}
	return info.Size() >= r.current.MaxSizeBytes
}

// Rotate performs one rotation: shifts name.(N-1) to name.N for every
// existing backlog file, renames the active file to name.1, then prunes
// anything beyond MaxFiles, MaxAge, or MaxTotalSizeBytes.
func (r *LogRotator) Rotate() error {
	path := r.current.Path
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	maxFiles := r.current.MaxFiles
	if maxFiles < 1 {
		maxFiles = 1
	}

	oldest := backlogPath(path, maxFiles, r.current.Compression)
	if _, err := os.Stat(oldest); err == nil {
		if err := os.Remove(oldest); err != nil {
			return err
		}
	}
	for i := maxFiles - 1; i >= 1; i-- {
		from := backlogPath(path, i, r.current.Compression)
		to := backlogPath(path, i+1, r.current.Compression)
		if _, err := os.Stat(from); err == nil {
			if err := os.Rename(from, to); err != nil {
				return err
			}
		}
	}

	dest := backlogPath(path, 1, false)
	if err := os.Rename(path, dest); err != nil {
		return err
	}
	if r.current.Compression {
		if err := compressFile(dest); err != nil {
			return err
		}
	}

	return r.prune()
}

// prune drops rotated files beyond MaxFiles, older than MaxAge, or that
// push the backlog's total size over MaxTotalSizeBytes — oldest first.
func (r *LogRotator) prune() error {
	dir := filepath.Dir(r.current.Path)
	base := filepath.Base(r.current.Path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	type rotated struct {
		path string
		idx  int
		info os.FileInfo
	}
	var files []rotated
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		idx, ok := parseBacklogIndex(base, e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, rotated{path: filepath.Join(dir, e.Name()), idx: idx, info: info})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].idx < files[j].idx })

	now := time.Now()
	var total int64
	for _, f := range files {
		total += f.info.Size()
	}

	for i := len(files) - 1; i >= 0; i-- {
		f := files[i]
		tooOld := r.current.MaxAge > 0 && now.Sub(f.info.ModTime()) > r.current.MaxAge
		tooMany := f.idx > r.current.MaxFiles
		overBudget := r.current.MaxTotalSizeBytes > 0 && total > r.current.MaxTotalSizeBytes
		if tooOld || tooMany || overBudget {
			if err := os.Remove(f.path); err == nil {
				total -= f.info.Size()
			}
		}
	}
	return nil
}

func backlogPath(basePath string, idx int, compressed bool) string {
	suffix := fmt.Sprintf(".%d", idx)
	if compressed {
		suffix += ".gz"
	}
	return basePath + suffix
}

func parseBacklogIndex(base, name string) (int, bool) {
	if len(name) <= len(base)+1 || name[:len(base)] != base || name[len(base)] != '.' {
		return 0, false
	}
	rest := strings.TrimSuffix(name[len(base)+1:], ".gz")
	var idx int
	if _, err := fmt.Sscanf(rest, "%d", &idx); err != nil {
		return 0, false
	}
	return idx, true
}

func compressFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
