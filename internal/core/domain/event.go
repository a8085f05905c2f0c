package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/lorrc/event-attendance-backend/internal/core/errors"
)

const (
	MaxTitleLength       = 255
	MaxDescriptionLength = 5000
	MaxCategoryLength    = 100
)

// Event is the core domain entity. Creator and Attendees are resolved to
// display identities; Attendees is a set ordered by join time.
type Event struct {
	ID                uuid.UUID
	Title             string
	Description       string
	Date              time.Time
	Category          string
	Creator           UserInfo
	Attendees         []UserInfo
	AttendanceVersion int64
	CreatedAt         time.Time
}

// EventParams holds the caller-supplied fields of a new event.
type EventParams struct {
	Title       string
	Description string
	Date        time.Time
	Category    string
	CreatorID   uuid.UUID
}

// Validate checks the required fields and length limits.
func (p *EventParams) Validate() error {
	errs := apperrors.NewValidationErrors()

	if strings.TrimSpace(p.Title) == "" {
		errs.Add("title", "Title is required")
	} else if len(p.Title) > MaxTitleLength {
		errs.Add("title", "Title must be 255 characters or less")
	}

	if len(p.Description) > MaxDescriptionLength {
		errs.Add("description", "Description must be 5000 characters or less")
	}

	if p.Date.IsZero() {
		errs.Add("date", "Date is required")
	}

	if strings.TrimSpace(p.Category) == "" {
		errs.Add("category", "Category is required")
	} else if len(p.Category) > MaxCategoryLength {
		errs.Add("category", "Category must be 100 characters or less")
	}

	if p.CreatorID == uuid.Nil {
		errs.Add("creatorId", "Creator is required")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// NewEvent is a factory function to create a valid new event with an empty
// attendee set.
func NewEvent(params EventParams) (*Event, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	return &Event{
		ID:          uuid.New(),
		Title:       strings.TrimSpace(params.Title),
		Description: params.Description,
		Date:        params.Date.UTC(),
		Category:    strings.TrimSpace(params.Category),
		Creator:     UserInfo{ID: params.CreatorID},
		Attendees:   []UserInfo{},
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// HasAttendee reports whether userID is in the attendee set.
func (e *Event) HasAttendee(userID uuid.UUID) bool {
	for _, a := range e.Attendees {
		if a.ID == userID {
			return true
		}
	}
	return false
}

// AttendeeIDs returns the ids of the attendee set in join order.
func (e *Event) AttendeeIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(e.Attendees))
	for _, a := range e.Attendees {
		ids = append(ids, a.ID)
	}
	return ids
}

// EventFilter narrows an event listing. Nil fields are not applied.
type EventFilter struct {
	Category  *string
	StartDate *time.Time
	EndDate   *time.Time
}

// AttendanceResult is the outcome of a join or leave. Changed is false when
// the call was an idempotent no-op.
type AttendanceResult struct {
	Event   *Event
	Changed bool
}
