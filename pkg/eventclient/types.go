// Package eventclient is a Go client for the event attendance API. It keeps a
// local copy of the event list in sync with server pushes.
package eventclient

import "time"

// User is a display identity as returned by the server.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Event is an event with its resolved creator and attendees.
type Event struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Date              time.Time `json:"date"`
	Category          string    `json:"category"`
	Creator           User      `json:"creator"`
	Attendees         []User    `json:"attendees"`
	AttendanceVersion int64     `json:"attendanceVersion"`
	CreatedAt         time.Time `json:"createdAt"`
}

// HasAttendee reports whether userID is in the attendee list.
func (e Event) HasAttendee(userID string) bool {
	for _, a := range e.Attendees {
		if a.ID == userID {
			return true
		}
	}
	return false
}

func (e Event) clone() Event {
	e.Attendees = append([]User(nil), e.Attendees...)
	return e
}

// Filter narrows a list request. Zero values are not sent.
type Filter struct {
	Category  string
	StartDate time.Time
	EndDate   time.Time
}

// Matches reports whether e falls inside the filter.
func (f Filter) Matches(e Event) bool {
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if !f.StartDate.IsZero() && e.Date.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && e.Date.After(f.EndDate) {
		return false
	}
	return true
}

// CreateEventRequest is the body of a create call. Date accepts YYYY-MM-DD or
// an RFC 3339 timestamp.
type CreateEventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date"`
	Category    string `json:"category"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
