package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/event-attendance-backend/internal/core/domain"
)

// AuthService defines the port for authentication business logic.
type AuthService interface {
	Register(ctx context.Context, name, email, password string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*domain.User, error)
	// GetUser resolves a verified identity to a registered account.
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// CreateEventParams defines the required input for creating a new event.
type CreateEventParams struct {
	Title       string
	Description string
	Date        time.Time
	Category    string
	CreatorID   uuid.UUID
}

// AttendanceService coordinates event creation, listing and attendance
// changes, and fans committed changes out to subscribers.
type AttendanceService interface {
	CreateEvent(ctx context.Context, params CreateEventParams) (*domain.Event, error)
	GetEvent(ctx context.Context, eventID uuid.UUID) (*domain.Event, error)
	ListEvents(ctx context.Context, filter domain.EventFilter) ([]*domain.Event, error)
	Join(ctx context.Context, userID, eventID uuid.UUID) (*domain.Event, error)
	Leave(ctx context.Context, userID, eventID uuid.UUID) (*domain.Event, error)
}

// EventBroadcaster defines the port for pushing messages to every connected
// subscriber. Broadcast must not block.
type EventBroadcaster interface {
	Broadcast(msg domain.Message) error
}
