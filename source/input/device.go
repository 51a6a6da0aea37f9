package input

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/smoothtask/smoothtaskd/model"
)

const readerName = "input_evdev"

// inputEventSize is sizeof(struct input_event) on 64-bit Linux: two
// 8-byte timeval fields, then type/code (uint16 each) and a 4-byte value.
const inputEventSize = 24

// Devices lists /dev/input/event* nodes.
func Devices() ([]string, error) {
	matches, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		return nil, model.NewTransient(readerName, err)
	}
	if len(matches) == 0 {
		return nil, model.NewUnavailable(readerName, os.ErrNotExist)
	}
	return matches, nil
}

// ReadPending opens path non-blocking and drains any buffered events without
// blocking for new ones. Devices that are unreadable (permission, since
// evdev access typically requires group "input") are Unavailable.
func ReadPending(path string) ([]Event, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		if os.IsPermission(err) || os.IsNotExist(err) {
			return nil, model.NewUnavailable(readerName, err)
		}
		return nil, model.NewTransient(readerName, err)
	}
	defer f.Close()

	var events []Event
	buf := make([]byte, inputEventSize)
	for {
		n, err := f.Read(buf)
		if err != nil {
			if err == io.EOF {
				break
			}
			if pe, ok := err.(*os.PathError); ok && pe.Err == unix.EAGAIN {
				break
			}
			return events, model.NewTransient(readerName, err)
		}
		if n < inputEventSize {
			break
		}
		events = append(events, decodeEvent(buf))
	}
	return events, nil
}

func decodeEvent(buf []byte) Event {
	return Event{
		Type:  binary.LittleEndian.Uint16(buf[16:18]),
		Code:  binary.LittleEndian.Uint16(buf[18:20]),
		Value: int32(binary.LittleEndian.Uint32(buf[20:24])),
	}
}

// PollAll reads pending events from every discoverable device and ingests
// them into tracker, returning the resulting metrics. Per-device failures
// are tolerated; only a total absence of devices is reported as an error.
func PollAll(tracker *Tracker, now time.Time) (model.InputMetrics, error) {
	devices, err := Devices()
	if err != nil {
		return tracker.Metrics(now), err
	}

	var all []Event
	for _, dev := range devices {
		events, err := ReadPending(dev)
		if err != nil {
			continue
		}
		all = append(all, events...)
	}
	return tracker.IngestEvents(all, now), nil
}
