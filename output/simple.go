// Package output renders result streams as plain text, for terminals
// without a TTY and for piping.
package output

import (
	"fmt"
	"io"
	"time"

	"github.com/runlog/runlog/record"
	"github.com/runlog/runlog/results"
	"github.com/runlog/runlog/tui"
)

// Simple writes one line per test completion and a summary at the end of
// the stream. It is the non-TUI twin of the live viewer.
type Simple struct {
	writer    io.Writer
	collector *results.Collector
	verbose   bool // also announce test starts
}

// NewSimple creates a plain-text renderer reading state from collector.
func NewSimple(w io.Writer, collector *results.Collector, verbose bool) *Simple {
	return &Simple{
		writer:    w,
		collector: collector,
		verbose:   verbose,
	}
}

// ProcessEvents consumes collector events until the channel closes,
// printing progress lines as tests finish and the summary once the
// stream ends.
func (s *Simple) ProcessEvents(events <-chan results.Event) error {
	for evt := range events {
		switch evt.Type {
		case results.EventTestStarted:
			if s.verbose {
				if _, err := fmt.Fprintf(s.writer, "=== RUN  %s\n", evt.Name); err != nil {
					return err
				}
			}

		case results.EventTestFinished:
			if err := s.writeFinished(evt.Instance); err != nil {
				return err
			}

		case results.EventAnomaly:
			if _, err := fmt.Fprintf(s.writer, "warning: %v\n", evt.Err); err != nil {
				return err
			}

		case results.EventDone:
			return s.writeSummary()
		}
	}
	return s.writeSummary()
}

// HasFailures returns true if the stream contains failures, errors, or
// orphaned tests.
func (s *Simple) HasFailures() bool {
	return s.collector.State().Counts.Bad()
}

func (s *Simple) writeFinished(instance string) error {
	state := s.collector.State()
	test, ok := state.Tests[instance]
	if !ok {
		return nil
	}

	var label string
	switch test.Result {
	case record.ResultPassed:
		label = "PASS"
	case record.ResultFailed:
		label = "FAIL"
	case record.ResultErrored:
		label = "ERROR"
	case record.ResultSkipped:
		label = "SKIP"
	default:
		return nil
	}

	if _, err := fmt.Fprintf(s.writer, "%-5s %s (%.2fs)\n", label, test.Name, test.Elapsed().Seconds()); err != nil {
		return err
	}

	// Failure detail goes inline so piped output is self-contained.
	if test.Detail != nil && test.Result != record.ResultPassed {
		for _, line := range test.Detail.Errors {
			if _, err := fmt.Fprintf(s.writer, "    %s\n", line); err != nil {
				return err
			}
		}
		for _, line := range test.Detail.Failures {
			if _, err := fmt.Fprintf(s.writer, "    %s\n", line); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Simple) writeSummary() error {
	summary := tui.ComputeSummary(s.collector.State(), 10*time.Second)
	formatter := tui.NewSummaryFormatter(80)

	if _, err := fmt.Fprintln(s.writer); err != nil {
		return err
	}
	_, err := fmt.Fprintln(s.writer, formatter.Format(summary))
	return err
}
