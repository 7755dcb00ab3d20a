package stream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/runlog/runlog/record"
)

// EventType identifies the type of event emitted while following a stream.
type EventType string

const (
	EventRecord EventType = "record" // A complete record was read
	EventError  EventType = "error"  // A malformed complete fragment or I/O error
	EventEOF    EventType = "eof"    // Caught up with the producer (stream may still grow)
)

// Event is emitted by Follow for each observation on a live stream.
type Event struct {
	Type   EventType
	Record record.Record // Populated for EventRecord
	Err    error         // Populated for EventError
}

// FollowInterval is the poll interval used when the follower has caught
// up with the producer.
const FollowInterval = 100 * time.Millisecond

// Follow tails the result stream at path, emitting each complete record
// as it is appended. The stream may still be open for writing: an
// unterminated trailing fragment is held back until its separator
// arrives. One EventEOF is emitted each time the follower drains all
// data currently in the file.
//
// The channel is closed when ctx is cancelled or the file becomes
// unreadable. Malformed complete fragments are emitted as EventError and
// skipped; they never terminate the follow.
func Follow(ctx context.Context, path string) <-chan Event {
	events := make(chan Event, 100)

	go func() {
		defer close(events)

		f, err := os.Open(path)
		if err != nil {
			emit(ctx, events, Event{Type: EventError, Err: fmt.Errorf("opening result stream: %w", err)})
			return
		}
		defer f.Close()

		var buf []byte
		chunk := make([]byte, 32*1024)
		caughtUp := false

		for {
			n, err := f.Read(chunk)
			if n > 0 {
				caughtUp = false
				buf = append(buf, chunk[:n]...)
				for {
					i := bytes.IndexByte(buf, Separator)
					if i < 0 {
						break
					}
					frag := buf[:i]
					buf = buf[i+1:]
					if len(frag) == 0 {
						continue
					}
					rec, perr := record.Unmarshal(frag)
					if perr != nil {
						if !emit(ctx, events, Event{Type: EventError, Err: fmt.Errorf("malformed record: %w", perr)}) {
							return
						}
						continue
					}
					if !emit(ctx, events, Event{Type: EventRecord, Record: rec}) {
						return
					}
				}
				continue
			}
			if err != nil && err != io.EOF {
				emit(ctx, events, Event{Type: EventError, Err: fmt.Errorf("reading result stream: %w", err)})
				return
			}

			// Caught up: signal once, then poll for growth.
			if !caughtUp {
				caughtUp = true
				if !emit(ctx, events, Event{Type: EventEOF}) {
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(FollowInterval):
			}
		}
	}()

	return events
}

// emit sends evt unless ctx is cancelled first. Returns false when the
// follow should stop.
func emit(ctx context.Context, events chan<- Event, evt Event) bool {
	select {
	case events <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}
