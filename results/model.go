package results

import (
	"time"

	"github.com/runlog/runlog/record"
)

// Test tracks one test execution, assembled from its preview record and,
// once observed, its completion record.
type Test struct {
	Name     string
	Monikers []string
	Pivots   map[string]string
	Instance string
	Parent   string
	Result   record.Result // UNSET while the test is still running
	Start    time.Time
	Stop     time.Time // zero while running
	Detail   *record.Detail
	Orphaned bool // preview never matched by a completion
}

// Running returns true if the test has a preview but no completion and
// has not been declared orphaned.
func (t *Test) Running() bool {
	return t.Result == record.ResultUnset && !t.Orphaned
}

// Elapsed returns the test's duration, or the time since it started for a
// test still running.
func (t *Test) Elapsed() time.Duration {
	if t.Stop.IsZero() {
		return time.Since(t.Start)
	}
	return t.Stop.Sub(t.Start)
}

// Counts aggregates outcomes across a stream.
type Counts struct {
	Running  int
	Passed   int
	Failed   int
	Errored  int
	Skipped  int
	Orphaned int
}

// Total returns the number of test executions observed.
func (c Counts) Total() int {
	return c.Running + c.Passed + c.Failed + c.Errored + c.Skipped + c.Orphaned
}

// Bad returns true if the stream contains any outcome that should fail
// the run: failures, errors, or tests that never completed.
func (c Counts) Bad() bool {
	return c.Failed > 0 || c.Errored > 0 || c.Orphaned > 0
}

// State holds everything observed on a stream.
type State struct {
	Tests     map[string]*Test // instance -> test
	Order     []string         // instances in preview order
	Counts    Counts
	Unmatched []record.Record // completions with no preceding preview
	Invalid   []error         // records violating the stream invariants
}

// NewState creates an empty state.
func NewState() *State {
	return &State{
		Tests: make(map[string]*Test),
	}
}

// InOrder returns the tests in preview order.
func (s *State) InOrder() []*Test {
	tests := make([]*Test, 0, len(s.Order))
	for _, instance := range s.Order {
		tests = append(tests, s.Tests[instance])
	}
	return tests
}
