package results

// EventType identifies the type of event emitted by the Collector.
type EventType string

const (
	EventTestStarted  EventType = "test_started"  // A preview record was observed
	EventTestFinished EventType = "test_finished" // A completion record was observed
	EventAnomaly      EventType = "anomaly"       // An invalid or unmatched record
	EventDrained      EventType = "drained"       // Caught up with the producer
	EventDone         EventType = "done"          // The stream ended; orphans resolved
)

// Event is a high-level event emitted by the Collector to subscribers.
type Event struct {
	Type     EventType
	Instance string // For EventTestStarted, EventTestFinished
	Name     string // For EventTestStarted, EventTestFinished
	Err      error  // For EventAnomaly
}

// NewTestStartedEvent creates a TestStarted event.
func NewTestStartedEvent(instance, name string) Event {
	return Event{
		Type:     EventTestStarted,
		Instance: instance,
		Name:     name,
	}
}

// NewTestFinishedEvent creates a TestFinished event.
func NewTestFinishedEvent(instance, name string) Event {
	return Event{
		Type:     EventTestFinished,
		Instance: instance,
		Name:     name,
	}
}

// NewAnomalyEvent creates an Anomaly event.
func NewAnomalyEvent(err error) Event {
	return Event{
		Type: EventAnomaly,
		Err:  err,
	}
}
