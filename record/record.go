// Package record defines the result stream record format: the JSON shape
// written for every test lifecycle observation, and the invariants that
// relate a test's preview record to its completion record.
package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies the kind of record. Only TEST records are defined.
type Type string

const (
	TypeTest Type = "TEST"
)

// Result is the outcome carried by a record. A preview record carries
// ResultUnset; a completion record carries one of the resolved outcomes.
type Result string

const (
	ResultUnset   Result = "UNSET"
	ResultPassed  Result = "PASSED"
	ResultFailed  Result = "FAILED"
	ResultErrored Result = "ERRORED"
	ResultSkipped Result = "SKIPPED"
)

// Resolved returns true if r is a final outcome (anything but UNSET).
func (r Result) Resolved() bool {
	switch r {
	case ResultPassed, ResultFailed, ResultErrored, ResultSkipped:
		return true
	}
	return false
}

// TimeFormat is the timestamp layout used for the start and stop fields.
const TimeFormat = time.RFC3339Nano

// Detail carries the diagnostic output attached to a completion record.
// All three slices are always serialized, empty rather than null.
type Detail struct {
	Errors   []string `json:"errors"`
	Failures []string `json:"failures"`
	Warnings []string `json:"warnings"`
}

// Record represents one lifecycle observation of a single test execution.
//
// Each execution produces two records sharing the same Instance: a preview
// (Result=UNSET, Stop="") written when the test starts, and a completion
// (resolved Result, Stop set, Detail present) written when it concludes.
// A preview with no matching completion means the producer terminated
// before the test finished.
type Record struct {
	Name     string            `json:"name"`
	Monikers []string          `json:"monikers"`
	Pivots   map[string]string `json:"pivots"`
	Instance string            `json:"instance"`
	Parent   string            `json:"parent,omitempty"`
	Type     Type              `json:"rtype"`
	Result   Result            `json:"result"`
	Start    string            `json:"start"`
	Stop     string            `json:"stop"`
	Detail   *Detail           `json:"detail,omitempty"`
}

// IsPreview returns true if r is a preview record (outcome not yet resolved).
func (r Record) IsPreview() bool {
	return r.Result == ResultUnset
}

// StartTime parses the start timestamp.
func (r Record) StartTime() (time.Time, error) {
	return time.Parse(TimeFormat, r.Start)
}

// StopTime parses the stop timestamp. Returns the zero time with no error
// for a preview record, where stop is the empty string.
func (r Record) StopTime() (time.Time, error) {
	if r.Stop == "" {
		return time.Time{}, nil
	}
	return time.Parse(TimeFormat, r.Stop)
}

// Elapsed returns the duration between start and stop, or zero for a
// preview record or a record with unparseable timestamps.
func (r Record) Elapsed() time.Duration {
	start, err := r.StartTime()
	if err != nil {
		return 0
	}
	stop, err := r.StopTime()
	if err != nil || stop.IsZero() {
		return 0
	}
	return stop.Sub(start)
}

// Validate checks the single-record invariants:
//
//   - instance and name must be present
//   - rtype must be TEST
//   - result must be a known value
//   - detail must be present iff result is resolved
//   - stop must be empty iff result is UNSET, and never precede start
func (r Record) Validate() error {
	if r.Instance == "" {
		return fmt.Errorf("record %q: missing instance", r.Name)
	}
	if r.Name == "" {
		return fmt.Errorf("record %s: missing name", r.Instance)
	}
	if r.Type != TypeTest {
		return fmt.Errorf("record %s: unknown rtype %q", r.Instance, r.Type)
	}
	if r.Result != ResultUnset && !r.Result.Resolved() {
		return fmt.Errorf("record %s: unknown result %q", r.Instance, r.Result)
	}
	if r.Result.Resolved() != (r.Detail != nil) {
		if r.Detail == nil {
			return fmt.Errorf("record %s: result %s without detail", r.Instance, r.Result)
		}
		return fmt.Errorf("record %s: detail present on %s record", r.Instance, r.Result)
	}
	if r.IsPreview() != (r.Stop == "") {
		if r.Stop == "" {
			return fmt.Errorf("record %s: result %s without stop time", r.Instance, r.Result)
		}
		return fmt.Errorf("record %s: stop time set on preview record", r.Instance)
	}
	start, err := r.StartTime()
	if err != nil {
		return fmt.Errorf("record %s: bad start time: %w", r.Instance, err)
	}
	if r.Stop != "" {
		stop, err := r.StopTime()
		if err != nil {
			return fmt.Errorf("record %s: bad stop time: %w", r.Instance, err)
		}
		if stop.Before(start) {
			return fmt.Errorf("record %s: stop %s precedes start %s", r.Instance, r.Stop, r.Start)
		}
	}
	return nil
}

// Marshal serializes r as a single compact JSON object.
func (r Record) Marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("serializing record %s: %w", r.Instance, err)
	}
	return data, nil
}

// Unmarshal parses one JSON object into a Record.
func Unmarshal(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}
