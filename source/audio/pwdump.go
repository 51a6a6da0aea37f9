// Package audio extracts per-process audio client info by spawning and
// parsing `pw-dump`.
package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/smoothtask/smoothtaskd/model"
)

const readerName = "audio_pwdump"

// Dump runs the configured pw-dump binary (default "pw-dump") with a short
// timeout and parses its output. Absence of the binary is Unavailable;
// a timeout or nonzero exit is Transient; bad JSON is Malformed.
func Dump(ctx context.Context, binary string, timeout time.Duration) ([]model.AudioClientInfo, error) {
	if binary == "" {
		binary = "pw-dump"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, model.NewUnavailable(readerName, err)
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(cctx, binary).Output()
	if err != nil {
		return nil, model.NewTransient(readerName, err)
	}

	clients, err := ParseClients(string(out))
	if err != nil {
		return nil, model.NewMalformed(readerName, err)
	}
	return clients, nil
}

// ParseClients extracts audio clients from pw-dump JSON output. Only
// PipeWire:Interface:Node objects are considered, since they are the ones
// carrying a PID link. For a PID seen in multiple Node objects, the first
// non-nil value found for each field wins — later sightings never
// overwrite an already-known value. This keeps the parse idempotent.
func ParseClients(raw string) ([]model.AudioClientInfo, error) {
	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("parse pw-dump JSON: %w", err)
	}

	items, ok := extractItems(value)
	if !ok {
		return nil, fmt.Errorf("pw-dump output has no object array")
	}

	order := make([]int, 0, len(items))
	byPID := make(map[int]model.AudioClientInfo)

	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok || !isNode(obj) {
			continue
		}
		props, ok := extractProps(obj)
		if !ok {
			continue
		}
		pid, ok := parsePID(props)
		if !ok {
			continue
		}

		entry, seen := byPID[pid]
		if !seen {
			entry = model.AudioClientInfo{PID: pid}
			order = append(order, pid)
		}
		if entry.BufferSizeSamples == nil {
			if bs, ok := parseBufferSize(props); ok {
				entry.BufferSizeSamples = &bs
			}
		}
		if entry.SampleRateHz == nil {
			if sr, ok := parseSampleRate(props); ok {
				entry.SampleRateHz = &sr
			}
		}
		byPID[pid] = entry
	}

	result := make([]model.AudioClientInfo, 0, len(byPID))
	for _, pid := range order {
		result = append(result, byPID[pid])
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PID < result[j].PID })
	return result, nil
}

func extractItems(value interface{}) ([]interface{}, bool) {
	if arr, ok := value.([]interface{}); ok {
		return arr, true
	}
	if obj, ok := value.(map[string]interface{}); ok {
		if arr, ok := obj["objects"].([]interface{}); ok {
			return arr, true
		}
	}
	return nil, false
}

func isNode(obj map[string]interface{}) bool {
	t, _ := obj["type"].(string)
	return strings.Contains(t, "Node")
}

func extractProps(obj map[string]interface{}) (map[string]interface{}, bool) {
	info, ok := obj["info"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	props, ok := info["props"].(map[string]interface{})
	return props, ok
}

func parsePID(props map[string]interface{}) (int, bool) {
	for _, key := range []string{"application.process.id", "pipewire.client.pid", "application.pid"} {
		if v, ok := props[key]; ok {
			if n, ok := asUint(v); ok {
				return int(n), true
			}
		}
	}
	return 0, false
}

func parseSampleRate(props map[string]interface{}) (uint32, bool) {
	for _, key := range []string{"api.alsa.rate", "audio.rate", "clock.rate", "node.rate"} {
		v, ok := props[key]
		if !ok {
			continue
		}
		if n, ok := asUint(v); ok {
			return uint32(n), true
		}
		if s, ok := v.(string); ok {
			if n, ok := parseRateString(s); ok {
				return n, true
			}
		}
	}
	if s, ok := props["node.latency"].(string); ok {
		if _, rate, ok := parseLatencyString(s); ok {
			return rate, true
		}
	}
	return 0, false
}

func parseBufferSize(props map[string]interface{}) (uint32, bool) {
	for _, key := range []string{"api.alsa.period-size", "node.quantum", "audio.buffer", "buffer.size"} {
		v, ok := props[key]
		if !ok {
			continue
		}
		if n, ok := asUint(v); ok {
			return uint32(n), true
		}
	}
	if s, ok := props["node.latency"].(string); ok {
		if frames, _, ok := parseLatencyString(s); ok {
			return frames, true
		}
	}
	return 0, false
}

func asUint(v interface{}) (uint64, bool) {
	switch t := v.(type) {
	case float64:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case string:
		n, err := strconv.ParseUint(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func parseRateString(s string) (uint32, bool) {
	part := strings.SplitN(s, "/", 2)[0]
	n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// parseLatencyString parses a "frames/rate" token, e.g. "256/48000", out of
// a space-separated string that may carry extra flag tokens after it.
func parseLatencyString(s string) (frames, rate uint32, ok bool) {
	for _, tok := range strings.Fields(s) {
		if !strings.Contains(tok, "/") {
			continue
		}
		parts := strings.SplitN(tok, "/", 2)
		f, err1 := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
		r, err2 := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 32)
		if err1 != nil || err2 != nil {
			continue
		}
		return uint32(f), uint32(r), true
	}
	return 0, 0, false
}
