package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	mw "github.com/lorrc/event-attendance-backend/internal/adapters/primary/http/middleware"
	apperrors "github.com/lorrc/event-attendance-backend/internal/core/errors"
)

// retryAfterSeconds is advertised on transient failures.
const retryAfterSeconds = "1"

// Translator renders user-facing messages by code.
type Translator interface {
	Match(acceptLanguage string) string
	T(locale, key string, data map[string]any) string
}

// ErrorResponse is the standard JSON error response format
type ErrorResponse struct {
	Error  string              `json:"error"`
	Code   string              `json:"code"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	logger     *slog.Logger
	translator Translator
}

// NewErrorHandler creates a new error handler. A nil translator leaves
// messages in English.
func NewErrorHandler(logger *slog.Logger, translator Translator) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{logger: logger, translator: translator}
}

var _ mw.ErrorResponder = (*ErrorHandler)(nil).Handle

// mappedError is one row of the domain error table.
type mappedError struct {
	target   error
	status   int
	code     string
	fallback string
	field    string // set for single-field validation sentinels
}

var errorTable = []mappedError{
	// Attendance
	{apperrors.ErrAlreadyAttending, http.StatusBadRequest, "ALREADY_ATTENDING", "You are already attending another event", ""},
	{apperrors.ErrEventNotFound, http.StatusNotFound, "EVENT_NOT_FOUND", "Event not found", ""},
	{apperrors.ErrConflict, http.StatusConflict, "CONFLICT", "The request conflicted with a concurrent change. Please retry.", ""},

	// Transient store failures
	{apperrors.ErrTimeout, http.StatusServiceUnavailable, "TIMEOUT", "The operation timed out. Please retry.", ""},
	{apperrors.ErrStoreUnavailable, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "The service is temporarily unavailable. Please retry.", ""},

	// Authentication & Authorization
	{apperrors.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials", ""},
	{apperrors.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", ""},
	{apperrors.ErrForbidden, http.StatusForbidden, "FORBIDDEN", "You do not have permission to perform this action", ""},
	// Only reachable when a verified identity has no account behind it.
	{apperrors.ErrUserNotFound, http.StatusForbidden, "FORBIDDEN", "You do not have permission to perform this action", ""},
	{apperrors.ErrUserExists, http.StatusConflict, "USER_EXISTS", "A user with this email already exists", ""},

	// Validation sentinels
	{apperrors.ErrEmailRequired, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", "email"},
	{apperrors.ErrPasswordRequired, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", "password"},
	{apperrors.ErrPasswordTooWeak, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", "password"},
	{apperrors.ErrBadRequest, http.StatusBadRequest, "BAD_REQUEST", "Invalid request", ""},

	// Rate limiting
	{apperrors.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.", ""},
}

// Handle processes an error and writes the appropriate HTTP response
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	locale := h.locale(r)

	// Field-level validation first: it carries the most detail.
	var validationErrs *apperrors.ValidationErrors
	if errors.As(err, &validationErrs) {
		h.logError(r, http.StatusBadRequest, err)
		h.write(w, http.StatusBadRequest, ErrorResponse{
			Error:  h.message(locale, "VALIDATION_ERROR", nil, "Validation failed"),
			Code:   "VALIDATION_ERROR",
			Fields: validationErrs.Errors,
		})
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		h.logError(r, appErr.StatusCode, err)
		h.write(w, appErr.StatusCode, ErrorResponse{
			Error: h.message(locale, appErr.Code, appErr.Details, appErr.Message),
			Code:  appErr.Code,
		})
		return
	}

	status, response := h.mapDomainError(locale, err)
	h.logError(r, status, err)
	if status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	h.write(w, status, response)
}

// mapDomainError converts domain errors to HTTP status codes and responses
func (h *ErrorHandler) mapDomainError(locale string, err error) (int, ErrorResponse) {
	for _, m := range errorTable {
		if !errors.Is(err, m.target) {
			continue
		}
		response := ErrorResponse{
			Error: h.message(locale, m.code, nil, m.fallback),
			Code:  m.code,
		}
		if m.field != "" {
			response.Fields = map[string][]string{m.field: {m.target.Error()}}
		}
		return m.status, response
	}

	return http.StatusInternalServerError, ErrorResponse{
		Error: h.message(locale, "INTERNAL_ERROR", nil, "An unexpected error occurred"),
		Code:  "INTERNAL_ERROR",
	}
}

func (h *ErrorHandler) locale(r *http.Request) string {
	if h.translator == nil {
		return ""
	}
	return h.translator.Match(r.Header.Get("Accept-Language"))
}

// message localizes code, falling back when no translation exists.
func (h *ErrorHandler) message(locale, code string, data map[string]any, fallback string) string {
	if h.translator == nil || code == "" {
		return fallback
	}
	if msg := h.translator.T(locale, code, data); msg != "" && msg != code {
		return msg
	}
	return fallback
}

// logError logs the error with appropriate context
func (h *ErrorHandler) logError(r *http.Request, statusCode int, err error) {
	logAttrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status_code", statusCode,
		"error", err.Error(),
	}

	ctx := r.Context()
	switch {
	case statusCode >= 500:
		h.logger.ErrorContext(ctx, "server error", logAttrs...)
	case statusCode >= 400:
		h.logger.WarnContext(ctx, "client error", logAttrs...)
	default:
		h.logger.InfoContext(ctx, "request error", logAttrs...)
	}
}

func (h *ErrorHandler) write(w http.ResponseWriter, statusCode int, response ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// HandleError Helper function to handle errors inline in handlers
// Usage: if HandleError(w, r, err, h.errorHandler) { return }
func HandleError(w http.ResponseWriter, r *http.Request, err error, handler *ErrorHandler) bool {
	if err != nil {
		handler.Handle(w, r, err)
		return true
	}
	return false
}
