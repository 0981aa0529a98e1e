// Package notify fans lifecycle and queue events out to connected listeners.
// Delivery is best-effort: slow listeners are skipped and there is no replay
// for listeners that connect late.
package notify

import "time"

// EventType identifies a lifecycle or queue event.
type EventType string

const (
	EventNewSchedule       EventType = "new-schedule"
	EventApprovedSchedule  EventType = "approved-schedule"
	EventCancelledSchedule EventType = "cancelled-schedule"
	EventSessionStarted    EventType = "session-started"
	EventSessionEnded      EventType = "session-ended"
	EventSessionFailed     EventType = "session-failed"
	EventCommandFailed     EventType = "command-failed"
)

// Event is one notification pushed to dashboard listeners.
type Event struct {
	Type      EventType         `json:"type"`
	Payload   map[string]string `json:"payload,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewEvent builds a timestamped event.
func NewEvent(eventType EventType, payload map[string]string) Event {
	return Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Bus publishes events to zero or more listeners, best-effort.
type Bus interface {
	Publish(event Event)
}

// Fanout publishes every event to each wrapped bus in order.
type Fanout struct {
	buses []Bus
}

// NewFanout combines several buses into one.
func NewFanout(buses ...Bus) *Fanout {
	return &Fanout{buses: buses}
}

// Publish implements Bus.
func (f *Fanout) Publish(event Event) {
	for _, b := range f.buses {
		b.Publish(event)
	}
}
