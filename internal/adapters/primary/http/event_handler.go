package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/lorrc/event-attendance-backend/internal/adapters/primary/http/middleware"
	"github.com/lorrc/event-attendance-backend/internal/adapters/primary/validation"
	"github.com/lorrc/event-attendance-backend/internal/core/domain"
	apperrors "github.com/lorrc/event-attendance-backend/internal/core/errors"
	"github.com/lorrc/event-attendance-backend/internal/core/ports"
)

// EventHandler handles HTTP requests for events and attendance
type EventHandler struct {
	attendanceService ports.AttendanceService
	errorHandler      *ErrorHandler
	logger            *slog.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler(
	attendanceService ports.AttendanceService,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *EventHandler {
	return &EventHandler{
		attendanceService: attendanceService,
		errorHandler:      errorHandler,
		logger:            logger.With("handler", "event"),
	}
}

// RegisterRoutes sets up the routing for all event endpoints. Reads are
// public; everything that mutates goes through protect.
func (h *EventHandler) RegisterRoutes(r chi.Router, protect ...func(http.Handler) http.Handler) {
	r.Get("/", h.HandleListEvents)
	r.Get("/{eventID}", h.HandleGetEvent)

	r.Group(func(r chi.Router) {
		r.Use(protect...)
		r.Post("/", h.HandleCreateEvent)
		r.Post("/{eventID}/join", h.HandleJoinEvent)
		r.Post("/{eventID}/leave", h.HandleLeaveEvent)
	})
}

// --- Request DTOs ---

// CreateEventRequest defines the expected JSON body for creating an event
type CreateEventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Category    string `json:"category"`
}

// --- Handlers ---

// HandleListEvents lists events filtered by category and an inclusive date range.
func (h *EventHandler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	startDate, err := validation.ParseDateQueryParam(r, "startDate", false)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	endDate, err := validation.ParseDateQueryParam(r, "endDate", true)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	events, err := h.attendanceService.ListEvents(r.Context(), domain.EventFilter{
		Category:  validation.ParseStringQueryParam(r, "category"),
		StartDate: startDate,
		EndDate:   endDate,
	})
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteOK(w, domain.NewEventSnapshots(events))
}

// HandleGetEvent returns a single resolved event.
func (h *EventHandler) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := validation.ParseUUIDParam(r, "eventID")
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	event, err := h.attendanceService.GetEvent(r.Context(), eventID)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteOK(w, domain.NewEventSnapshot(event))
}

// HandleCreateEvent creates an event owned by the caller.
func (h *EventHandler) HandleCreateEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := mw.UserIDFromContext(r.Context())
	if !ok {
		h.errorHandler.Handle(w, r, apperrors.ErrUnauthorized)
		return
	}

	req, err := validation.DecodeJSON[CreateEventRequest](w, r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	v := validation.NewValidator()
	date := v.Date("date", req.Date)
	if HandleError(w, r, v.Err(), h.errorHandler) {
		return
	}

	event, err := h.attendanceService.CreateEvent(r.Context(), ports.CreateEventParams{
		Title:       req.Title,
		Description: req.Description,
		Date:        date,
		Category:    req.Category,
		CreatorID:   userID,
	})
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	h.logger.InfoContext(r.Context(), "event created", "event_id", event.ID)
	WriteCreated(w, domain.NewEventSnapshot(event))
}

// HandleJoinEvent adds the caller to the event's attendee set.
func (h *EventHandler) HandleJoinEvent(w http.ResponseWriter, r *http.Request) {
	h.handleAttendance(w, r, h.attendanceService.Join)
}

// HandleLeaveEvent removes the caller from the event's attendee set.
func (h *EventHandler) HandleLeaveEvent(w http.ResponseWriter, r *http.Request) {
	h.handleAttendance(w, r, h.attendanceService.Leave)
}

type attendanceOp func(ctx context.Context, userID, eventID uuid.UUID) (*domain.Event, error)

func (h *EventHandler) handleAttendance(w http.ResponseWriter, r *http.Request, op attendanceOp) {
	userID, ok := mw.UserIDFromContext(r.Context())
	if !ok {
		h.errorHandler.Handle(w, r, apperrors.ErrUnauthorized)
		return
	}

	eventID, err := validation.ParseUUIDParam(r, "eventID")
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	event, err := op(r.Context(), userID, eventID)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteOK(w, domain.NewEventSnapshot(event))
}
