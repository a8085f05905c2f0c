package domain

import "time"

// UserSnapshot matches the API response shape for a display identity.
type UserSnapshot struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// EventSnapshot matches the API response shape for events.
type EventSnapshot struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	Date              string         `json:"date"`
	Category          string         `json:"category"`
	Creator           UserSnapshot   `json:"creator"`
	Attendees         []UserSnapshot `json:"attendees"`
	AttendanceVersion int64          `json:"attendanceVersion"`
	CreatedAt         string         `json:"createdAt"`
}

// NewUserSnapshot builds a snapshot from a display identity.
func NewUserSnapshot(user UserInfo) UserSnapshot {
	return UserSnapshot{
		ID:    user.ID.String(),
		Name:  user.Name,
		Email: user.Email,
	}
}

// NewUserSnapshots maps a slice of identities, never returning nil.
func NewUserSnapshots(users []UserInfo) []UserSnapshot {
	snapshots := make([]UserSnapshot, 0, len(users))
	for _, u := range users {
		snapshots = append(snapshots, NewUserSnapshot(u))
	}
	return snapshots
}

// NewEventSnapshot builds an event snapshot from a domain event.
func NewEventSnapshot(event *Event) EventSnapshot {
	return EventSnapshot{
		ID:                event.ID.String(),
		Title:             event.Title,
		Description:       event.Description,
		Date:              event.Date.UTC().Format(time.RFC3339),
		Category:          event.Category,
		Creator:           NewUserSnapshot(event.Creator),
		Attendees:         NewUserSnapshots(event.Attendees),
		AttendanceVersion: event.AttendanceVersion,
		CreatedAt:         event.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// NewEventSnapshots maps a slice of events, never returning nil.
func NewEventSnapshots(events []*Event) []EventSnapshot {
	snapshots := make([]EventSnapshot, 0, len(events))
	for _, e := range events {
		snapshots = append(snapshots, NewEventSnapshot(e))
	}
	return snapshots
}
