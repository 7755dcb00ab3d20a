// Package gotest bridges `go test -json` output into a result stream.
package gotest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/runlog/runlog/record"
	"github.com/runlog/runlog/stream"
)

// Event is one line of `go test -json` output (the test2json format).
// Package-level events carry no Test; only test-level run/output/
// pass/fail/skip actions drive the converter.
type Event struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test,omitempty"`
	Output  string    `json:"Output,omitempty"`
	Elapsed float64   `json:"Elapsed,omitempty"`
}

func parseEvent(line []byte) (Event, error) {
	var event Event
	err := json.Unmarshal(line, &event)
	return event, err
}

// Converter drives a stream.Writer from `go test -json` events: a "run"
// action starts an instance, a "pass"/"fail"/"skip" action finishes it
// with the test's accumulated output attached as detail.
//
// Test names are written hierarchically: `importpath::TestName` with
// subtest segments appended as `#sub` (`pkg::TestFoo#case1`).
type Converter struct {
	writer *stream.Writer

	// test key (package + "/" + test) -> instance and buffered output
	open map[string]*openTest
}

type openTest struct {
	instance string
	output   []string
}

// NewConverter creates a converter writing to w.
func NewConverter(w *stream.Writer) *Converter {
	return &Converter{
		writer: w,
		open:   make(map[string]*openTest),
	}
}

// Run consumes `go test -json` lines from input until EOF, converting
// test-level events into stream records. Non-JSON lines and package-level
// events are passed to raw, if non-nil, so build errors and coverage
// summaries stay visible. Returns the number of instances recorded.
func (c *Converter) Run(input io.Reader, raw io.Writer) (int, error) {
	recorded := 0
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()

		event, err := parseEvent(line)
		if err != nil || event.Action == "" {
			// Not a test event; pass through.
			if raw != nil {
				raw.Write(line)
				raw.Write([]byte("\n"))
			}
			continue
		}

		started, err := c.Apply(event)
		if err != nil {
			return recorded, err
		}
		if started {
			recorded++
		}

		if event.Test == "" && event.Output != "" && raw != nil {
			io.WriteString(raw, event.Output)
		}
	}
	if err := scanner.Err(); err != nil {
		return recorded, fmt.Errorf("reading go test output: %w", err)
	}
	return recorded, nil
}

// Apply processes one event. It returns true if the event started a new
// instance.
func (c *Converter) Apply(event Event) (bool, error) {
	if event.Test == "" {
		return false, nil
	}
	key := event.Package + "/" + event.Test

	switch event.Action {
	case "run":
		instance, err := c.writer.Start(Name(event.Package, event.Test), nil, nil, c.parentInstance(event))
		if err != nil {
			return false, err
		}
		c.open[key] = &openTest{instance: instance}
		return true, nil

	case "output":
		if t, ok := c.open[key]; ok {
			line := strings.TrimRight(event.Output, "\n")
			if line != "" {
				t.output = append(t.output, line)
			}
		}

	case "pass":
		return false, c.finish(key, record.ResultPassed)
	case "fail":
		return false, c.finish(key, record.ResultFailed)
	case "skip":
		return false, c.finish(key, record.ResultSkipped)
	}
	return false, nil
}

// Abandon returns the number of instances started but never finished.
// Those remain orphaned previews in the stream; `go test` itself was
// interrupted or crashed before reporting them.
func (c *Converter) Abandon() int {
	n := len(c.open)
	c.open = make(map[string]*openTest)
	return n
}

// parentInstance returns the instance of the enclosing test for a
// subtest event. go test announces a parent's run before its subtests,
// so the parent is still open when the subtest starts; a top-level test,
// or a subtest whose parent somehow is not open, gets no parent.
func (c *Converter) parentInstance(event Event) string {
	i := strings.LastIndex(event.Test, "/")
	if i < 0 {
		return ""
	}
	parent, ok := c.open[event.Package+"/"+event.Test[:i]]
	if !ok {
		return ""
	}
	return parent.instance
}

func (c *Converter) finish(key string, result record.Result) error {
	t, ok := c.open[key]
	if !ok {
		// go test reported an outcome for a test it never announced;
		// nothing to pair it with, so drop it.
		return nil
	}
	delete(c.open, key)

	var failures, warnings []string
	switch result {
	case record.ResultFailed:
		failures = t.output
	case record.ResultSkipped:
		warnings = t.output
	}
	return c.writer.Finish(t.instance, result, nil, failures, warnings)
}

// Name renders a go test identifier in the stream's hierarchical form:
// the import path and top-level test joined by "::", subtest segments
// joined by "#".
func Name(pkg, test string) string {
	return pkg + "::" + strings.ReplaceAll(test, "/", "#")
}
