package stream

import (
	"context"
	"time"

	"github.com/runlog/runlog/record"
)

// Replay re-emits a recorded stream with inter-record delays derived from
// the records' own timestamps, scaled by rate (0 = instant, 1 = original
// speed, 0.5 = twice as fast). The moment attributed to each record is its
// stop time when set, otherwise its start time, matching write order for
// streams produced by a single Writer.
//
// The channel is closed after the last record, or early if ctx is
// cancelled.
func Replay(ctx context.Context, recs []record.Record, rate float64) <-chan record.Record {
	out := make(chan record.Record)

	go func() {
		defer close(out)

		var last time.Time
		for _, rec := range recs {
			ts := recordMoment(rec)
			if rate > 0 && !last.IsZero() && !ts.IsZero() {
				if delay := ts.Sub(last); delay > 0 {
					select {
					case <-ctx.Done():
						return
					case <-time.After(time.Duration(float64(delay) * rate)):
					}
				}
			}
			if !ts.IsZero() {
				last = ts
			}
			select {
			case <-ctx.Done():
				return
			case out <- rec:
			}
		}
	}()

	return out
}

// recordMoment returns the wall-clock moment a record was appended, as
// best the record itself can tell us.
func recordMoment(rec record.Record) time.Time {
	if stop, err := rec.StopTime(); err == nil && !stop.IsZero() {
		return stop
	}
	if start, err := rec.StartTime(); err == nil {
		return start
	}
	return time.Time{}
}
