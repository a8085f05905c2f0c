package eventclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAPI_RejectsBadURLs(t *testing.T) {
	_, err := NewAPI("ftp://example.com", nil)
	assert.Error(t, err)

	_, err = NewAPI("://bad", nil)
	assert.Error(t, err)

	api, err := NewAPI("https://events.example.com/", nil)
	require.NoError(t, err)
	assert.Equal(t, "wss://events.example.com/api/v1/ws", api.WebSocketURL())
}

func TestAPI_ListEventsSendsFilter(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"e1","title":"Meetup","date":"2026-03-01T18:00:00Z","category":"tech","attendees":[]}]`))
	}))
	defer srv.Close()

	api, err := NewAPI(srv.URL, srv.Client())
	require.NoError(t, err)

	events, err := api.ListEvents(context.Background(), Filter{
		Category:  "tech",
		StartDate: sampleEvents()[0].Date,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Meetup", events[0].Title)

	require.NotNil(t, got)
	assert.Equal(t, "/api/v1/events", got.URL.Path)
	assert.Equal(t, "tech", got.URL.Query().Get("category"))
	assert.Equal(t, "2026-03-01T18:00:00Z", got.URL.Query().Get("startDate"))
	assert.Empty(t, got.URL.Query().Get("endDate"))
	assert.Empty(t, got.Header.Get("Authorization"))
}

func TestAPI_LoginStoresToken(t *testing.T) {
	var authHeader string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "ada@example.com", body["email"])
		_ = json.NewEncoder(w).Encode(AuthResult{Token: "tok-123", User: User{ID: "u1", Email: body["email"]}})
	})
	mux.HandleFunc("POST /api/v1/events/{id}/join", func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(Event{ID: r.PathValue("id"), AttendanceVersion: 1, Attendees: []User{{ID: "u1"}}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	api, err := NewAPI(srv.URL, nil)
	require.NoError(t, err)

	res, err := api.Login(context.Background(), "ada@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", res.Token)
	assert.Equal(t, "tok-123", api.Token())

	event, err := api.Join(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "e1", event.ID)
	assert.Equal(t, "Bearer tok-123", authHeader)
}

func TestAPI_DecodesErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCode  string
		wantMsg   string
		attending bool
		notFound  bool
	}{
		{
			name:      "already attending",
			status:    http.StatusBadRequest,
			body:      `{"error":"You are already attending another event","code":"ALREADY_ATTENDING"}`,
			wantCode:  "ALREADY_ATTENDING",
			wantMsg:   "You are already attending another event",
			attending: true,
		},
		{
			name:     "not found",
			status:   http.StatusNotFound,
			body:     `{"error":"Event not found","code":"EVENT_NOT_FOUND"}`,
			wantCode: "EVENT_NOT_FOUND",
			wantMsg:  "Event not found",
			notFound: true,
		},
		{
			name:    "non json body",
			status:  http.StatusBadGateway,
			body:    `upstream down`,
			wantMsg: "Bad Gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			api, err := NewAPI(srv.URL, nil)
			require.NoError(t, err)

			_, err = api.Join(context.Background(), "e1")
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.Equal(t, tt.attending, IsAlreadyAttending(err))
			assert.Equal(t, tt.notFound, IsNotFound(err))
		})
	}
}

func TestAPI_ValidationFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Validation failed","code":"VALIDATION_ERROR","fields":{"title":["Title is required"]}}`))
	}))
	defer srv.Close()

	api, err := NewAPI(srv.URL, nil)
	require.NoError(t, err)

	_, err = api.CreateEvent(context.Background(), CreateEventRequest{Date: "2026-03-01", Category: "tech"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, map[string][]string{"title": {"Title is required"}}, apiErr.Fields)
	assert.Equal(t, "VALIDATION_ERROR", ErrorCode(err))
}
