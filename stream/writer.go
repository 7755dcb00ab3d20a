// Package stream reads and writes result streams: append-only sequences of
// JSON records, each terminated by an ASCII Record Separator byte (0x1E).
// The separator framing keeps a stream tailable while it is still being
// written: a reader splits on the separator and treats any unterminated
// trailing fragment as not yet written.
package stream

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/runlog/runlog/record"
)

// Separator delimits consecutive JSON records in a stream.
const Separator byte = 0x1e

// DefaultFileName is the conventional name for a result stream file.
const DefaultFileName = "testrun_results_stream.jsos"

var (
	// ErrUnknownInstance is returned by Finish for an instance that was
	// never started on this writer, or was already finished.
	ErrUnknownInstance = errors.New("unknown instance")

	// ErrClosed is returned when a writer is used after Close.
	ErrClosed = errors.New("stream writer is closed")
)

// pending holds the start-call state replayed into an instance's
// completion record.
type pending struct {
	name     string
	monikers []string
	pivots   map[string]string
	parent   string
	start    string
}

// Writer appends test lifecycle records to a sink.
//
// Start and Finish are safe for concurrent use: a single mutex serializes
// physical appends so records from concurrent tests never interleave, and
// guards the in-flight instance state. Each record is written in one call
// to the sink with no buffering in between, so a tailing reader sees it as
// soon as Start or Finish returns.
type Writer struct {
	mu     sync.Mutex
	sink   io.Writer
	closer io.Closer
	open   map[string]pending
	closed bool
	now    func() time.Time // injectable for tests
}

// Create opens path as an append-only result stream sink, creating the
// file if it does not exist. The caller must Close the writer on every
// exit path.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening result stream: %w", err)
	}
	w := NewWriter(f)
	w.closer = f
	return w, nil
}

// NewWriter returns a Writer appending to an arbitrary sink. Close
// flushes bookkeeping but does not close the sink; that remains the
// caller's responsibility.
func NewWriter(sink io.Writer) *Writer {
	return &Writer{
		sink: sink,
		open: make(map[string]pending),
		now:  time.Now,
	}
}

// Start records the beginning of a test execution and returns the fresh
// instance ID identifying it. The preview record is appended and flushed
// before Start returns.
//
// monikers and pivots are copied; the caller may reuse them.
func (w *Writer) Start(name string, monikers []string, pivots map[string]string, parent string) (string, error) {
	instance := uuid.NewString()

	p := pending{
		name:     name,
		monikers: append([]string{}, monikers...),
		pivots:   make(map[string]string, len(pivots)),
		parent:   parent,
	}
	for k, v := range pivots {
		p.pivots[k] = v
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return "", ErrClosed
	}

	p.start = w.now().Format(record.TimeFormat)
	rec := record.Record{
		Name:     p.name,
		Monikers: p.monikers,
		Pivots:   p.pivots,
		Instance: instance,
		Parent:   p.parent,
		Type:     record.TypeTest,
		Result:   record.ResultUnset,
		Start:    p.start,
		Stop:     "",
	}
	if err := w.append(rec); err != nil {
		return "", err
	}
	w.open[instance] = p
	return instance, nil
}

// Finish records the outcome of a previously started instance. The
// completion record reuses the name, monikers, pivots, parent, and start
// time captured by Start. Detail too large for a single readable record
// is truncated with a trailing warning marker. Returns ErrUnknownInstance
// if instance was never started on this writer or was already finished.
func (w *Writer) Finish(instance string, result record.Result, errs, failures, warnings []string) error {
	if !result.Resolved() {
		return fmt.Errorf("finish %s: result %q is not a final outcome", instance, result)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	p, ok := w.open[instance]
	if !ok {
		return fmt.Errorf("finish %s: %w", instance, ErrUnknownInstance)
	}

	detail := &record.Detail{
		Errors:   emptyIfNil(errs),
		Failures: emptyIfNil(failures),
		Warnings: emptyIfNil(warnings),
	}
	boundDetail(detail)

	rec := record.Record{
		Name:     p.name,
		Monikers: p.monikers,
		Pivots:   p.pivots,
		Instance: instance,
		Parent:   p.parent,
		Type:     record.TypeTest,
		Result:   result,
		Start:    p.start,
		Stop:     w.now().Format(record.TimeFormat),
		Detail:   detail,
	}
	if err := w.append(rec); err != nil {
		return err
	}
	delete(w.open, instance)
	return nil
}

// Open returns the number of instances started but not yet finished.
func (w *Writer) Open() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.open)
}

// Close releases the sink. Instances still open are left in the stream as
// orphaned previews; no synthetic completion is written for them. Close
// is idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.closer == nil {
		return nil
	}
	if err := w.closer.Close(); err != nil {
		return fmt.Errorf("closing result stream: %w", err)
	}
	return nil
}

// append serializes rec and writes it plus the separator as one physical
// write. Callers must hold w.mu.
func (w *Writer) append(rec record.Record) error {
	data, err := rec.Marshal()
	if err != nil {
		return err
	}
	data = append(data, Separator)
	if _, err := w.sink.Write(data); err != nil {
		return fmt.Errorf("appending record %s: %w", rec.Instance, err)
	}
	return nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// maxDetailBytes caps the raw detail text on a completion record, with
// headroom under maxRecordSize for the record envelope and JSON escaping,
// so every record a Writer produces stays readable by NewReader.
const maxDetailBytes = maxRecordSize / 2

// detailTruncated is appended to the warnings of a completion whose
// detail was cut to fit maxDetailBytes.
const detailTruncated = "(output truncated)"

// boundDetail trims d in place so its lines total at most maxDetailBytes.
// Lines are kept in order across errors, failures, then warnings; the
// line that crosses the budget is cut and everything after it dropped.
func boundDetail(d *record.Detail) {
	remaining := maxDetailBytes
	truncated := false
	for _, lines := range []*[]string{&d.Errors, &d.Failures, &d.Warnings} {
		kept := make([]string, 0, len(*lines))
		for _, line := range *lines {
			if truncated {
				break
			}
			if len(line) > remaining {
				if remaining > 0 {
					kept = append(kept, strings.ToValidUTF8(line[:remaining], ""))
				}
				remaining = 0
				truncated = true
				break
			}
			kept = append(kept, line)
			remaining -= len(line)
		}
		*lines = kept
	}
	if truncated {
		d.Warnings = append(d.Warnings, detailTruncated)
	}
}
