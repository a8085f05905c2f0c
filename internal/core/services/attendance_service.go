package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/event-attendance-backend/internal/core/domain"
	apperrors "github.com/lorrc/event-attendance-backend/internal/core/errors"
	"github.com/lorrc/event-attendance-backend/internal/core/ports"
)

// DefaultOperationTimeout bounds a single coordinator operation when no
// timeout is configured.
const DefaultOperationTimeout = 5 * time.Second

// AttendanceService implements event creation, listing and the
// single-attendance rule. Every committed change is pushed to the
// broadcaster after the store transaction returns.
type AttendanceService struct {
	eventRepo   ports.EventRepository
	broadcaster ports.EventBroadcaster
	logger      *slog.Logger
	opTimeout   time.Duration
}

var _ ports.AttendanceService = (*AttendanceService)(nil)

// NewAttendanceService creates a new attendance service
func NewAttendanceService(
	eventRepo ports.EventRepository,
	broadcaster ports.EventBroadcaster,
	logger *slog.Logger,
	opTimeout time.Duration,
) ports.AttendanceService {
	if opTimeout <= 0 {
		opTimeout = DefaultOperationTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AttendanceService{
		eventRepo:   eventRepo,
		broadcaster: broadcaster,
		logger:      logger,
		opTimeout:   opTimeout,
	}
}

// CreateEvent validates and persists a new event with an empty attendee set,
// then announces it to all subscribers.
func (s *AttendanceService) CreateEvent(ctx context.Context, params ports.CreateEventParams) (*domain.Event, error) {
	event, err := domain.NewEvent(domain.EventParams{
		Title:       params.Title,
		Description: params.Description,
		Date:        params.Date,
		Category:    params.Category,
		CreatorID:   params.CreatorID,
	})
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	created, err := s.eventRepo.Create(opCtx, event)
	if err != nil {
		return nil, mapDeadline(opCtx, err)
	}

	s.publish(ctx, domain.NewEventCreatedMessage(created))
	return created, nil
}

// GetEvent returns the resolved event.
func (s *AttendanceService) GetEvent(ctx context.Context, eventID uuid.UUID) (*domain.Event, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	event, err := s.eventRepo.GetByID(opCtx, eventID)
	if err != nil {
		return nil, mapDeadline(opCtx, err)
	}
	return event, nil
}

// ListEvents returns events matching filter, ordered by date.
func (s *AttendanceService) ListEvents(ctx context.Context, filter domain.EventFilter) ([]*domain.Event, error) {
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		errs := apperrors.NewValidationErrors()
		errs.Add("endDate", "End date must not be before start date")
		return nil, errs
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	events, err := s.eventRepo.List(opCtx, filter)
	if err != nil {
		return nil, mapDeadline(opCtx, err)
	}
	return events, nil
}

// Join adds userID to the attendee set of eventID. A user attending a
// different event gets ErrAlreadyAttending; joining the event the user
// already attends is a no-op and is not broadcast.
func (s *AttendanceService) Join(ctx context.Context, userID, eventID uuid.UUID) (*domain.Event, error) {
	if userID == uuid.Nil {
		return nil, apperrors.ErrUnauthorized
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	result, err := s.eventRepo.AddAttendee(opCtx, eventID, userID)
	if err != nil {
		return nil, mapDeadline(opCtx, err)
	}

	if result.Changed {
		s.publish(ctx, domain.NewEventUpdatedMessage(result.Event))
	}
	return result.Event, nil
}

// Leave removes userID from the attendee set of eventID. Leaving an event the
// user does not attend returns the event unchanged.
func (s *AttendanceService) Leave(ctx context.Context, userID, eventID uuid.UUID) (*domain.Event, error) {
	if userID == uuid.Nil {
		return nil, apperrors.ErrUnauthorized
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	result, err := s.eventRepo.RemoveAttendee(opCtx, eventID, userID)
	if err != nil {
		return nil, mapDeadline(opCtx, err)
	}

	if result.Changed {
		s.publish(ctx, domain.NewEventUpdatedMessage(result.Event))
	}
	return result.Event, nil
}

// publish hands msg to the broadcaster. The mutation is already committed,
// so a failed enqueue is logged and otherwise ignored.
func (s *AttendanceService) publish(ctx context.Context, msg domain.Message) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Broadcast(msg); err != nil {
		s.logger.WarnContext(ctx, "broadcast enqueue failed",
			"type", msg.Type,
			"event_id", msg.EventID,
			"version", msg.Version,
			"error", err,
		)
	}
}

// mapDeadline converts an expired operation deadline into ErrTimeout.
// Errors already classified by the store pass through.
func mapDeadline(ctx context.Context, err error) error {
	if errors.Is(err, apperrors.ErrTimeout) || errors.Is(err, apperrors.ErrStoreUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
	}
	return err
}
