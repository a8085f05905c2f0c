package eventclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const apiPrefix = "api/v1"

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string][]string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("eventclient: %d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("eventclient: %d %s: %s", e.Status, e.Code, e.Message)
}

// ErrorCode returns the server error code carried by err, or "".
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// IsAlreadyAttending reports whether err is the single-attendance rejection.
func IsAlreadyAttending(err error) bool { return ErrorCode(err) == "ALREADY_ATTENDING" }

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// API is a thin HTTP client for the REST surface. It is safe for concurrent use.
type API struct {
	base   *url.URL
	client *http.Client

	mu    sync.RWMutex
	token string
}

// NewAPI returns a client for the server at baseURL (for example
// "http://localhost:8080"). A nil httpClient uses http.DefaultClient.
func NewAPI(baseURL string, httpClient *http.Client) (*API, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https, got %q", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &API{base: base, client: httpClient}, nil
}

// SetToken sets the bearer token sent on every request.
func (a *API) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

// Token returns the current bearer token.
func (a *API) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// WebSocketURL returns the realtime endpoint for this server.
func (a *API) WebSocketURL() string {
	u := a.base.JoinPath(apiPrefix, "ws")
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

// ListEvents fetches events matching filter, ordered by date.
func (a *API) ListEvents(ctx context.Context, filter Filter) ([]Event, error) {
	q := url.Values{}
	if filter.Category != "" {
		q.Set("category", filter.Category)
	}
	if !filter.StartDate.IsZero() {
		q.Set("startDate", filter.StartDate.UTC().Format(time.RFC3339Nano))
	}
	if !filter.EndDate.IsZero() {
		q.Set("endDate", filter.EndDate.UTC().Format(time.RFC3339Nano))
	}

	var events []Event
	if err := a.do(ctx, http.MethodGet, q, nil, &events, "events"); err != nil {
		return nil, err
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

// GetEvent fetches a single event.
func (a *API) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	var event Event
	if err := a.do(ctx, http.MethodGet, nil, nil, &event, "events", eventID); err != nil {
		return nil, err
	}
	return &event, nil
}

// CreateEvent creates an event. Requires a token.
func (a *API) CreateEvent(ctx context.Context, req CreateEventRequest) (*Event, error) {
	var event Event
	if err := a.do(ctx, http.MethodPost, nil, req, &event, "events"); err != nil {
		return nil, err
	}
	return &event, nil
}

// Join adds the caller to eventID. Requires a token.
func (a *API) Join(ctx context.Context, eventID string) (*Event, error) {
	var event Event
	if err := a.do(ctx, http.MethodPost, nil, nil, &event, "events", eventID, "join"); err != nil {
		return nil, err
	}
	return &event, nil
}

// Leave removes the caller from eventID. Requires a token.
func (a *API) Leave(ctx context.Context, eventID string) (*Event, error) {
	var event Event
	if err := a.do(ctx, http.MethodPost, nil, nil, &event, "events", eventID, "leave"); err != nil {
		return nil, err
	}
	return &event, nil
}

// Register creates an account and stores the returned token.
func (a *API) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	body := map[string]string{"name": name, "email": email, "password": password}
	return a.authenticate(ctx, body, "auth", "register")
}

// Login exchanges credentials for a token and stores it.
func (a *API) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	body := map[string]string{"email": email, "password": password}
	return a.authenticate(ctx, body, "auth", "login")
}

func (a *API) authenticate(ctx context.Context, body any, path ...string) (*AuthResult, error) {
	var result AuthResult
	if err := a.do(ctx, http.MethodPost, nil, body, &result, path...); err != nil {
		return nil, err
	}
	a.SetToken(result.Token)
	return &result, nil
}

func (a *API) do(ctx context.Context, method string, query url.Values, body, out any, path ...string) error {
	u := a.base.JoinPath(append([]string{apiPrefix}, path...)...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := a.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, u.Path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	var body struct {
		Error  string              `json:"error"`
		Code   string              `json:"code"`
		Fields map[string][]string `json:"fields"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err == nil {
		apiErr.Code = body.Code
		apiErr.Fields = body.Fields
		if body.Error != "" {
			apiErr.Message = body.Error
		}
	}
	return apiErr
}
