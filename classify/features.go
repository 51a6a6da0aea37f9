package classify

import (
	"container/list"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/smoothtask/smoothtaskd/model"
)

// stateOneHot lists the process states the feature vector one-hot encodes;
// anything else falls into the trailing "other" slot.
var stateOneHot = []string{"R", "S", "D", "Z", "T"}

// FeatureVector is the fixed-width numeric projection of a ProcessRecord
// fed to the ML classifier.
type FeatureVector struct {
	CPUShare1s       float64
	CPUShare10s      float64
	ReadBytesPerSec  float64
	WriteBytesPerSec float64
	CtxSwitchRate    float64
	RSSMebibytes     float64
	Nice             float64
	HasGUIWindow     float64
	HasActiveStream  float64
	EnvHasDisplay    float64
	EnvHasWayland    float64
	EnvSSH           float64
	StateOneHot      [len(stateOneHot) + 1]float64
}

// BuildFeatureVector deterministically projects a process into a
// FeatureVector, sanitising NaN/Inf to zero so no downstream consumer ever
// observes a non-finite feature.
func BuildFeatureVector(p *model.ProcessRecord) FeatureVector {
	var fv FeatureVector
	fv.CPUShare1s = sanitize(p.CPUShare1s)
	fv.CPUShare10s = sanitize(p.CPUShare10s)
	if p.UptimeSec > 0 {
		fv.ReadBytesPerSec = sanitize(float64(p.ReadBytes) / p.UptimeSec)
		fv.WriteBytesPerSec = sanitize(float64(p.WriteBytes) / p.UptimeSec)
		fv.CtxSwitchRate = sanitize(float64(p.VoluntaryCtxSwitches+p.InvoluntaryCtxSwitches) / p.UptimeSec)
	}
	fv.RSSMebibytes = sanitize(float64(p.RSSBytes) / (1024 * 1024))
	fv.HasGUIWindow = boolFloat(p.HasGUIWindow)
	fv.HasActiveStream = boolFloat(p.HasActiveStream)
	fv.EnvHasDisplay = boolFloat(p.Env.HasDisplay)
	fv.EnvHasWayland = boolFloat(p.Env.HasWayland)
	fv.EnvSSH = boolFloat(p.Env.IsSSH)

	matched := false
	for i, s := range stateOneHot {
		if p.State == s {
			fv.StateOneHot[i] = 1
			matched = true
		}
	}
	if !matched {
		fv.StateOneHot[len(stateOneHot)] = 1
	}
	return fv
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// digest returns a short fingerprint of the volatile fields that, if
// unchanged since the last computation alongside an unchanged start_time,
// makes a cached FeatureVector still valid.
func digest(p *model.ProcessRecord) [8]byte {
	h := sha256.New()
	buf := make([]byte, 8)
	writeFloat := func(f float64) {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
		h.Write(buf)
	}
	writeFloat(p.CPUShare1s)
	writeFloat(p.CPUShare10s)
	writeFloat(float64(p.RSSBytes))
	writeFloat(float64(p.ReadBytes))
	writeFloat(float64(p.WriteBytes))
	writeFloat(float64(p.VoluntaryCtxSwitches + p.InvoluntaryCtxSwitches))
	h.Write([]byte(p.State))
	sum := h.Sum(nil)
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

type featureCacheEntry struct {
	pid       int
	startTime time.Time
	digest    [8]byte
	vector    FeatureVector
	elem      *list.Element
}

// FeatureCache is a per-classifier LRU map from pid to its last-computed
// FeatureVector, valid as long as start_time and the volatile-field digest
// match.
type FeatureCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[int]*featureCacheEntry
	order    *list.List
}

// NewFeatureCache builds a cache with the given capacity.
func NewFeatureCache(capacity int) *FeatureCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &FeatureCache{
		capacity: capacity,
		entries:  make(map[int]*featureCacheEntry),
		order:    list.New(),
	}
}

// Get returns the cached vector for p if start_time and the digest match,
// else computes, caches, and returns a fresh one.
func (c *FeatureCache) Get(p *model.ProcessRecord) FeatureVector {
	d := digest(p)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[p.PID]; ok {
		if e.startTime.Equal(p.StartTime) && e.digest == d {
			c.order.MoveToFront(e.elem)
			return e.vector
		}
		c.order.Remove(e.elem)
		delete(c.entries, p.PID)
	}

	vector := BuildFeatureVector(p)
	e := &featureCacheEntry{pid: p.PID, startTime: p.StartTime, digest: d, vector: vector}
	e.elem = c.order.PushFront(e)
	c.entries[p.PID] = e

	for len(c.entries) > c.capacity {
		back := c.order.Back()
		if back == nil {
			break
		}
		victim := back.Value.(*featureCacheEntry)
		c.order.Remove(back)
		delete(c.entries, victim.pid)
	}

	return vector
}
