package stream

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runlog/runlog/record"
)

// appendRaw appends bytes to a stream file outside the Writer, to
// simulate producers in mid-write.
func appendRaw(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

// collectUntil drains events until n records have been seen or the
// timeout expires.
func collectUntil(t *testing.T, events <-chan Event, n int, timeout time.Duration) []record.Record {
	t.Helper()
	var recs []record.Record
	deadline := time.After(timeout)
	for len(recs) < n {
		select {
		case evt, ok := <-events:
			if !ok {
				t.Fatalf("follow channel closed after %d of %d records", len(recs), n)
			}
			if evt.Type == EventRecord {
				recs = append(recs, evt.Record)
			}
		case <-deadline:
			t.Fatalf("timed out after %d of %d records", len(recs), n)
		}
	}
	return recs
}

func TestFollowSeesRecordsAsTheyAreWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	w, err := Create(path)
	require.NoError(t, err)
	defer w.Close()

	first, err := w.Start("pkg::TestEarly", nil, nil, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := Follow(ctx, path)

	recs := collectUntil(t, events, 1, 5*time.Second)
	assert.Equal(t, first, recs[0].Instance)

	// Keep writing while the follower is live.
	require.NoError(t, w.Finish(first, record.ResultPassed, nil, nil, nil))
	second, err := w.Start("pkg::TestLate", nil, nil, "")
	require.NoError(t, err)
	require.NoError(t, w.Finish(second, record.ResultSkipped, nil, nil, []string{"not today"}))

	recs = collectUntil(t, events, 3, 5*time.Second)
	assert.Equal(t, first, recs[0].Instance)
	assert.Equal(t, second, recs[1].Instance)
	assert.Equal(t, record.ResultSkipped, recs[2].Result)
}

func TestFollowEmitsEOFWhenCaughtUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	w, err := Create(path)
	require.NoError(t, err)
	instance, err := w.Start("pkg::TestDrain", nil, nil, "")
	require.NoError(t, err)
	require.NoError(t, w.Finish(instance, record.ResultPassed, nil, nil, nil))
	require.NoError(t, w.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := Follow(ctx, path)

	var types []EventType
	deadline := time.After(5 * time.Second)
	for len(types) < 3 {
		select {
		case evt := <-events:
			types = append(types, evt.Type)
		case <-deadline:
			t.Fatal("timed out waiting for events")
		}
	}
	assert.Equal(t, []EventType{EventRecord, EventRecord, EventEOF}, types)
}

func TestFollowStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	ctx, cancel := context.WithCancel(context.Background())
	events := Follow(ctx, path)
	cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return // channel closed, follower stopped
			}
		case <-deadline:
			t.Fatal("follow did not stop after cancel")
		}
	}
}

func TestFollowMissingFile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := Follow(ctx, filepath.Join(t.TempDir(), "nope.jsos"))

	evt, ok := <-events
	require.True(t, ok)
	assert.Equal(t, EventError, evt.Type)
	require.Error(t, evt.Err)

	_, ok = <-events
	assert.False(t, ok, "channel closes after open failure")
}

func TestFollowHoldsBackPartialFragment(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	w, err := Create(path)
	require.NoError(t, err)
	defer w.Close()

	instance, err := w.Start("pkg::TestPartial", nil, nil, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := Follow(ctx, path)
	collectUntil(t, events, 1, 5*time.Second)

	// An unterminated fragment appended directly to the file must not be
	// surfaced until its separator arrives.
	require.NoError(t, appendRaw(path, []byte(`{"name":"pkg::TestPartial","mon`)))

	select {
	case evt := <-events:
		if evt.Type != EventEOF {
			t.Fatalf("unexpected event for partial fragment: %+v", evt)
		}
	case <-time.After(3 * FollowInterval):
	}

	// Completing the fragment releases the record.
	rest := []byte(`ikers":[],"pivots":{},"instance":"` + instance + `","rtype":"TEST","result":"UNSET","start":"2026-01-02T15:04:05Z","stop":""}`)
	rest = append(rest, Separator)
	require.NoError(t, appendRaw(path, rest))

	recs := collectUntil(t, events, 1, 5*time.Second)
	assert.Equal(t, "pkg::TestPartial", recs[0].Name)
}

func TestFollowReportsMalformedRecordAndContinues(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	w, err := Create(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, appendRaw(path, append([]byte("garbage"), Separator)))
	instance, err := w.Start("pkg::TestAfterGarbage", nil, nil, "")
	require.NoError(t, err)
	_ = instance

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := Follow(ctx, path)

	var sawError bool
	deadline := time.After(5 * time.Second)
	for {
		select {
		case evt := <-events:
			switch evt.Type {
			case EventError:
				sawError = true
			case EventRecord:
				assert.True(t, sawError, "error event precedes the good record")
				assert.Equal(t, "pkg::TestAfterGarbage", evt.Record.Name)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for record after garbage")
		}
	}
}
