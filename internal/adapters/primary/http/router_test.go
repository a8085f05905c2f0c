package http

import (
	"fmt"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	mw "github.com/lorrc/event-attendance-backend/internal/adapters/primary/http/middleware"
	wsAdapter "github.com/lorrc/event-attendance-backend/internal/adapters/primary/websocket"
	"github.com/lorrc/event-attendance-backend/internal/auth"
	"github.com/lorrc/event-attendance-backend/internal/core/mocks"
)

func TestRouter_ClientAddressForRateLimiting(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		want       []int
	}{
		{"peer address only", false, []int{stdhttp.StatusNotFound, stdhttp.StatusTooManyRequests, stdhttp.StatusTooManyRequests}},
		{"trusted proxy", true, []int{stdhttp.StatusNotFound, stdhttp.StatusNotFound, stdhttp.StatusNotFound}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := discardLogger()
			errorHandler := NewErrorHandler(logger, nil)
			tokenManager := auth.NewTokenManager("router-test-secret", time.Hour)
			users := mocks.NewMockAuthService()

			limiter := mw.NewRateLimiter(mw.RateLimiterConfig{RequestsPerSecond: 0.001, BurstSize: 1}, errorHandler.Handle)
			t.Cleanup(limiter.Stop)

			router := NewRouter(RouterConfig{
				Logger:         logger,
				ErrorHandler:   errorHandler,
				TokenManager:   tokenManager,
				Users:          users,
				Events:         NewEventHandler(mocks.NewMockAttendanceService(), errorHandler, logger),
				Auth:           NewAuthHandler(users, tokenManager, errorHandler, logger),
				WebSocket:      NewWebSocketHandler(wsAdapter.NewHub(wsAdapter.DefaultConfig(), logger), WebSocketConfig{IsDevelopment: true}, logger),
				TrustProxy:     tt.trustProxy,
				GeneralLimiter: limiter,
			})

			var codes []int
			for i := range tt.want {
				req := httptest.NewRequest(stdhttp.MethodGet, "/nowhere", nil)
				req.RemoteAddr = "10.0.0.2:443"
				req.Header.Set("X-Real-IP", fmt.Sprintf("203.0.113.%d", i+1))
				w := httptest.NewRecorder()
				router.ServeHTTP(w, req)
				codes = append(codes, w.Code)
			}

			assert.Equal(t, tt.want, codes)
		})
	}
}
