package validation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apperrors "github.com/lorrc/event-attendance-backend/internal/core/errors"
)

// MaxBodyBytes bounds decoded JSON request bodies.
const MaxBodyBytes = 1 << 20

// Accepted date layouts, most specific first. The minute-precision layout is
// what an HTML datetime-local input submits.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

const dateOnlyLayout = "2006-01-02"

// Validator collects field errors for request values that must be parsed
// before the domain can check them.
type Validator struct {
	errors *apperrors.ValidationErrors
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		errors: apperrors.NewValidationErrors(),
	}
}

// Err returns the collected errors, or nil when there are none.
func (v *Validator) Err() error {
	if !v.errors.HasErrors() {
		return nil
	}
	return v.errors
}

// Date parses value as an event date. An empty value yields the zero time
// and is reported by domain validation.
func (v *Validator) Date(field, value string) time.Time {
	if strings.TrimSpace(value) == "" {
		return time.Time{}
	}
	t, _, err := ParseDate(value)
	if err != nil {
		v.errors.Add(field, "Must be a date (YYYY-MM-DD) or an RFC 3339 timestamp")
		return time.Time{}
	}
	return t
}

// DecodeJSON decodes a JSON request body into T.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request) (*T, error) {
	var req T

	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.NewBadRequestError(err, "Request body is required")
		}
		return nil, apperrors.NewBadRequestError(err, "Invalid request body")
	}

	return &req, nil
}

// ParseDate accepts a calendar date or a timestamp. dateOnly reports whether
// value carried no time of day. Values without a zone are taken as UTC.
func ParseDate(value string) (t time.Time, dateOnly bool, err error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(dateOnlyLayout, value); err == nil {
		return t, true, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), false, nil
		}
	}
	return time.Time{}, false, errors.New("unrecognised date format")
}

// ParseStringQueryParam safely parses a string query parameter
func ParseStringQueryParam(r *http.Request, key string) *string {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return nil
	}
	return &value
}

// ParseDateQueryParam parses an optional date bound. With endOfDay set, a
// date-only value is widened to the last instant of that day so the bound
// stays inclusive.
func ParseDateQueryParam(r *http.Request, key string, endOfDay bool) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	t, dateOnly, err := ParseDate(raw)
	if err != nil {
		return nil, invalidParam("INVALID_DATE", key, err)
	}
	if dateOnly && endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// ParseUUIDParam parses a chi URL parameter as a UUID.
func ParseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, invalidParam("INVALID_ID", name, err)
	}
	return id, nil
}

func invalidParam(code, field string, err error) error {
	return &apperrors.AppError{
		Err:        errors.Join(apperrors.ErrBadRequest, err),
		Message:    "Invalid " + field,
		Code:       code,
		StatusCode: http.StatusBadRequest,
		Details:    map[string]interface{}{"Field": field},
	}
}
