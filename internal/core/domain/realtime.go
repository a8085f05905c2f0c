package domain

import "github.com/google/uuid"

// MessageType defines the type of real-time message.
type MessageType string

const (
	MessageEventUpdated MessageType = "eventUpdated"
	MessageNewEvent     MessageType = "newEvent"
)

// Message is the envelope sent over WebSocket. EventID and Version are used by
// the hub to keep per-event delivery in commit order.
type Message struct {
	Type    MessageType `json:"type"`
	EventID uuid.UUID   `json:"eventId"`
	Version int64       `json:"version"`
	Payload interface{} `json:"payload"`
}

// EventUpdatedPayload carries the full attendee set after a join or leave.
type EventUpdatedPayload struct {
	EventID   string         `json:"eventId"`
	Attendees []UserSnapshot `json:"attendees"`
	Version   int64          `json:"version"`
}

// NewEventPayload carries a freshly created event.
type NewEventPayload struct {
	Event EventSnapshot `json:"event"`
}

// NewEventUpdatedMessage builds the attendee-set notification for event.
func NewEventUpdatedMessage(event *Event) Message {
	return Message{
		Type:    MessageEventUpdated,
		EventID: event.ID,
		Version: event.AttendanceVersion,
		Payload: EventUpdatedPayload{
			EventID:   event.ID.String(),
			Attendees: NewUserSnapshots(event.Attendees),
			Version:   event.AttendanceVersion,
		},
	}
}

// NewEventCreatedMessage builds the new-event notification for event.
func NewEventCreatedMessage(event *Event) Message {
	return Message{
		Type:    MessageNewEvent,
		EventID: event.ID,
		Version: event.AttendanceVersion,
		Payload: NewEventPayload{Event: NewEventSnapshot(event)},
	}
}
