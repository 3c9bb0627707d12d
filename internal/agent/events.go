package agent

import "github.com/driftware/deskhand/internal/bus"

// BusSink adapts *bus.Bus to the loop's EventSink.
type BusSink struct {
	Bus *bus.Bus
}

func (s BusSink) Publish(eventType, runID string, payload interface{}) {
	s.Bus.Publish(bus.Event{Type: eventType, RunID: runID, Payload: payload})
}
