package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/lorrc/event-attendance-backend/internal/core/domain"
)

// UserRepository persists registered accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// EventRepository is the persistent store for events and attendance.
//
// AddAttendee and RemoveAttendee are atomic: each runs in a single
// transaction and either commits the membership change together with the
// version bump or commits nothing. The store guarantees that a user id is a
// member of at most one event.
type EventRepository interface {
	Create(ctx context.Context, event *domain.Event) (*domain.Event, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	List(ctx context.Context, filter domain.EventFilter) ([]*domain.Event, error)
	AddAttendee(ctx context.Context, eventID, userID uuid.UUID) (*domain.AttendanceResult, error)
	RemoveAttendee(ctx context.Context, eventID, userID uuid.UUID) (*domain.AttendanceResult, error)
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
