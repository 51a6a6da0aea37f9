// Package psi reads Linux Pressure Stall Information from
// /proc/pressure/{cpu,io,memory}.
package psi

import (
	"fmt"
	"os"
	"strings"

	"github.com/smoothtask/smoothtaskd/model"
	"github.com/smoothtask/smoothtaskd/util"
)

const readerName = "psi"

// Read parses all three PSI files and returns a PressureSnapshot. A missing
// file (no PSI support, or a resource controller compiled out) yields an
// Unavailable error for that resource and the field is left zero; the
// caller decides whether to keep going with partial data.
func Read() (model.PressureSnapshot, error) {
	var snap model.PressureSnapshot
	var firstErr error

	if r, err := readFile("/proc/pressure/cpu"); err != nil {
		firstErr = firstOf(firstErr, err)
	} else {
		snap.CPU = r
	}
	if r, err := readFile("/proc/pressure/io"); err != nil {
		firstErr = firstOf(firstErr, err)
	} else {
		snap.IO = r
	}
	if r, err := readFile("/proc/pressure/memory"); err != nil {
		firstErr = firstOf(firstErr, err)
	} else {
		snap.Memory = r
	}

	return snap, firstErr
}

func firstOf(existing, next error) error {
	if existing != nil {
		return existing
	}
	return next
}

// readFile parses one /proc/pressure/* file. Format:
//
//	some avg10=0.00 avg60=0.00 avg300=0.00 total=0
//	full avg10=0.00 avg60=0.00 avg300=0.00 total=0
//
// cpu has no "full" line. A file with neither a "some" nor a "full" record,
// or with avg10/avg60 missing from a present record, is Malformed.
func readFile(path string) (model.PSIResource, error) {
	var res model.PSIResource

	content, err := util.ReadFileString(path)
	if err != nil {
		if os.IsNotExist(err) {
			return res, model.NewUnavailable(readerName, err)
		}
		return res, model.NewTransient(readerName, err)
	}

	sawAny := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pl, isFull, err := parseLine(line)
		if err != nil {
			return res, model.NewMalformed(readerName, err)
		}
		sawAny = true
		if isFull {
			res.Full = pl
		} else {
			res.Some = pl
		}
	}

	if !sawAny {
		return res, model.NewMalformed(readerName, fmt.Errorf("%s: no some|full record", path))
	}

	return res, nil
}

func parseLine(line string) (model.PSILine, bool, error) {
	var pl model.PSILine
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return pl, false, fmt.Errorf("unexpected PSI line: %q", line)
	}

	isFull := fields[0] == "full"
	if !isFull && fields[0] != "some" {
		return pl, false, fmt.Errorf("unknown PSI record type: %q", fields[0])
	}

	var haveAvg10, haveAvg60 bool
	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		switch k {
		case "avg10":
			pl.Avg10 = util.ParseFloat64(v)
			haveAvg10 = true
		case "avg60":
			pl.Avg60 = util.ParseFloat64(v)
			haveAvg60 = true
		case "avg300":
			pl.Avg300 = util.ParseFloat64(v)
		case "total":
			pl.Total = util.ParseUint64(v)
		}
	}

	if !haveAvg10 || !haveAvg60 {
		return pl, false, fmt.Errorf("PSI line missing avg10/avg60: %q", line)
	}

	return pl, isFull, nil
}
