package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	mw "github.com/lorrc/event-attendance-backend/internal/adapters/primary/http/middleware"
	"github.com/lorrc/event-attendance-backend/internal/auth"
)

// RouterConfig collects everything the API router mounts. Nil rate limiters
// are skipped.
type RouterConfig struct {
	Logger       *slog.Logger
	ErrorHandler *ErrorHandler
	TokenManager *auth.TokenManager
	Users        mw.UserResolver

	// UserLookupTimeout bounds the account check on protected routes.
	UserLookupTimeout time.Duration

	Events    *EventHandler
	Auth      *AuthHandler
	WebSocket *WebSocketHandler
	Health    *HealthHandler

	CORSOrigins []string

	// TrustProxy rewrites the client address from proxy headers before any
	// rate limiter sees it. Without it only the socket peer address counts.
	TrustProxy bool

	GeneralLimiter *mw.RateLimiter
	AuthLimiter    *mw.RateLimiter
	WriteLimiter   *mw.RateLimiter
}

// NewRouter builds the HTTP surface: health probes at the root and the
// versioned API under /api/v1.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(mw.RequestLogger(cfg.Logger))
	r.Use(mw.RecoveryLogger(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type", mw.RequestIDHeader},
		ExposedHeaders:   []string{mw.RequestIDHeader, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if cfg.GeneralLimiter != nil {
		r.Use(cfg.GeneralLimiter.Middleware)
	}

	// Health check endpoints (outside /api/v1 for standard probe paths)
	if cfg.Health != nil {
		cfg.Health.RegisterRoutes(r)
	}

	onError := cfg.ErrorHandler.Handle
	protect := []func(http.Handler) http.Handler{
		mw.JWTMiddleware(cfg.TokenManager, onError),
		mw.RequireUser(cfg.Users, cfg.UserLookupTimeout, onError),
	}
	if cfg.WriteLimiter != nil {
		protect = append(protect, cfg.WriteLimiter.Middleware)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Public auth routes with stricter rate limiting
		r.Group(func(r chi.Router) {
			if cfg.AuthLimiter != nil {
				r.Use(cfg.AuthLimiter.Middleware)
			}
			r.Route("/auth", cfg.Auth.RegisterRoutes)
		})

		// Subscribers are anonymous.
		r.Get("/ws", cfg.WebSocket.ServeHTTP)

		r.Route("/events", func(r chi.Router) {
			cfg.Events.RegisterRoutes(r, protect...)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: "Not found", Code: "NOT_FOUND"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method not allowed", Code: "METHOD_NOT_ALLOWED"})
	})

	return r
}
