package results

import (
	"fmt"
	"sync"

	"github.com/runlog/runlog/record"
	"github.com/runlog/runlog/stream"
)

// Collector consumes stream records, pairs previews with completions, and
// emits high-level events.
//
// The Collector is the single consumer of a stream and the single source
// of truth for its state. Pairing rules:
//   - A preview (result UNSET) opens a running test keyed by instance.
//   - A completion closes the running test with the same instance.
//   - A completion with no open preview is recorded as unmatched.
//   - When the stream ends, previews still open become orphans.
type Collector struct {
	state *State
	mu    sync.RWMutex

	subscribers []chan Event
	subMu       sync.Mutex

	done bool
}

// NewCollector creates a new collector.
func NewCollector() *Collector {
	return &Collector{
		state:       NewState(),
		subscribers: make([]chan Event, 0),
	}
}

// Subscribe returns a channel that will receive collector events. The
// caller should read from this channel until it is closed.
func (c *Collector) Subscribe() <-chan Event {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	ch := make(chan Event, 100)
	c.subscribers = append(c.subscribers, ch)
	return ch
}

// emit sends an event to all subscribers.
func (c *Collector) emit(evt Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, sub := range c.subscribers {
		sub <- evt
	}
}

// closeSubscribers closes all subscriber channels.
func (c *Collector) closeSubscribers() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, sub := range c.subscribers {
		close(sub)
	}
}

// ProcessEvents consumes follow events until the channel closes, then
// finishes the collector. This method should be called as a goroutine.
func (c *Collector) ProcessEvents(events <-chan stream.Event) {
	for evt := range events {
		switch evt.Type {
		case stream.EventRecord:
			c.Push(evt.Record)
		case stream.EventError:
			c.mu.Lock()
			c.state.Invalid = append(c.state.Invalid, evt.Err)
			c.mu.Unlock()
			c.emit(NewAnomalyEvent(evt.Err))
		case stream.EventEOF:
			c.emit(Event{Type: EventDrained})
		}
	}
	c.Finish()
	c.closeSubscribers()
}

// Push applies a single record to the state.
func (c *Collector) Push(rec record.Record) {
	for _, evt := range c.apply(rec) {
		c.emit(evt)
	}
}

// apply updates state under the lock and returns events to emit after
// the lock is released.
func (c *Collector) apply(rec record.Record) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	var events []Event

	if err := rec.Validate(); err != nil {
		c.state.Invalid = append(c.state.Invalid, err)
		return append(events, NewAnomalyEvent(err))
	}

	if rec.IsPreview() {
		if existing, ok := c.state.Tests[rec.Instance]; ok {
			err := fmt.Errorf("duplicate preview for instance %s (%s)", rec.Instance, existing.Name)
			c.state.Invalid = append(c.state.Invalid, err)
			return append(events, NewAnomalyEvent(err))
		}
		start, _ := rec.StartTime()
		c.state.Tests[rec.Instance] = &Test{
			Name:     rec.Name,
			Monikers: rec.Monikers,
			Pivots:   rec.Pivots,
			Instance: rec.Instance,
			Parent:   rec.Parent,
			Result:   record.ResultUnset,
			Start:    start,
		}
		c.state.Order = append(c.state.Order, rec.Instance)
		c.state.Counts.Running++
		return append(events, NewTestStartedEvent(rec.Instance, rec.Name))
	}

	test, ok := c.state.Tests[rec.Instance]
	if !ok || !test.Running() {
		c.state.Unmatched = append(c.state.Unmatched, rec)
		err := fmt.Errorf("completion for unknown instance %s (%s)", rec.Instance, rec.Name)
		c.state.Invalid = append(c.state.Invalid, err)
		return append(events, NewAnomalyEvent(err))
	}

	test.Result = rec.Result
	test.Detail = rec.Detail
	test.Stop, _ = rec.StopTime()
	c.state.Counts.Running--
	switch rec.Result {
	case record.ResultPassed:
		c.state.Counts.Passed++
	case record.ResultFailed:
		c.state.Counts.Failed++
	case record.ResultErrored:
		c.state.Counts.Errored++
	case record.ResultSkipped:
		c.state.Counts.Skipped++
	}
	return append(events, NewTestFinishedEvent(rec.Instance, rec.Name))
}

// Finish declares the stream ended: any test still running becomes an
// orphan (its producer stopped before writing a completion). Idempotent.
func (c *Collector) Finish() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	for _, test := range c.state.Tests {
		if test.Running() {
			test.Orphaned = true
			c.state.Counts.Running--
			c.state.Counts.Orphaned++
		}
	}
	c.mu.Unlock()

	c.emit(Event{Type: EventDone})
}

// State returns a point-in-time snapshot of the collector state. Each
// Test is copied, so later records do not mutate the snapshot out from
// under a renderer on another goroutine. The slices and maps inside a
// Test are never modified after the record that introduced them, so the
// copies may share them.
func (c *Collector) State() *State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state := &State{
		Tests:     make(map[string]*Test, len(c.state.Tests)),
		Order:     append([]string{}, c.state.Order...),
		Counts:    c.state.Counts,
		Unmatched: append([]record.Record{}, c.state.Unmatched...),
		Invalid:   append([]error{}, c.state.Invalid...),
	}
	for instance, test := range c.state.Tests {
		t := *test
		state.Tests[instance] = &t
	}
	return state
}
