package http

import (
	"encoding/json"
	"errors"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/event-attendance-backend/internal/core/mocks"
)

type fakeHub struct {
	clients int
	done    chan struct{}
}

func (f *fakeHub) ClientCount() int      { return f.clients }
func (f *fakeHub) Done() <-chan struct{} { return f.done }

func serveHealth(t *testing.T, h *HealthHandler, path string) (int, HealthResponse) {
	t.Helper()

	r := chi.NewRouter()
	h.RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(stdhttp.MethodGet, path, nil))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestHealthHandler_Ready(t *testing.T) {
	db := new(mocks.MockHealthChecker)
	db.On("Ping", mock.Anything).Return(nil)
	hub := &fakeHub{clients: 3, done: make(chan struct{})}

	code, resp := serveHealth(t, NewHealthHandler(db, hub, "1.2.3"), "/health/ready")

	assert.Equal(t, stdhttp.StatusOK, code)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	require.Contains(t, resp.Checks, "broadcast")
	require.NotNil(t, resp.Checks["broadcast"].Subscribers)
	assert.Equal(t, 3, *resp.Checks["broadcast"].Subscribers)
}

func TestHealthHandler_Failures(t *testing.T) {
	stopped := make(chan struct{})
	close(stopped)

	tests := []struct {
		name       string
		pingErr    error
		hub        *fakeHub
		path       string
		wantStatus string
		failing    string
	}{
		{"database down on ready", errors.New("connection refused"), nil, "/health/ready", "unhealthy", "database"},
		{"database down on health", errors.New("connection refused"), nil, "/health", "degraded", "database"},
		{"hub stopped", nil, &fakeHub{done: stopped}, "/health/ready", "unhealthy", "broadcast"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := new(mocks.MockHealthChecker)
			db.On("Ping", mock.Anything).Return(tt.pingErr)

			var hub SubscriberCounter
			if tt.hub != nil {
				hub = tt.hub
			}

			code, resp := serveHealth(t, NewHealthHandler(db, hub, "test"), tt.path)

			assert.Equal(t, stdhttp.StatusServiceUnavailable, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, "unhealthy", resp.Checks[tt.failing].Status)
		})
	}
}

func TestHealthHandler_LivenessSkipsChecks(t *testing.T) {
	db := new(mocks.MockHealthChecker)

	code, resp := serveHealth(t, NewHealthHandler(db, nil, "test"), "/health/live")

	assert.Equal(t, stdhttp.StatusOK, code)
	assert.Equal(t, "healthy", resp.Status)
	db.AssertNotCalled(t, "Ping", mock.Anything)
}
