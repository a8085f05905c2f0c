package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lorrc/event-attendance-backend/internal/adapters/primary/validation"
	"github.com/lorrc/event-attendance-backend/internal/auth"
	"github.com/lorrc/event-attendance-backend/internal/core/domain"
	"github.com/lorrc/event-attendance-backend/internal/core/ports"
)

// AuthHandler issues bearer tokens for registered accounts.
type AuthHandler struct {
	authService  ports.AuthService
	tokenManager *auth.TokenManager
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	authService ports.AuthService,
	tokenManager *auth.TokenManager,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		tokenManager: tokenManager,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "auth"),
	}
}

// RegisterRoutes sets up the routing for auth endpoints.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/register", h.HandleRegister)
	r.Post("/login", h.HandleLogin)
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries the issued token and the account it names.
type TokenResponse struct {
	Token string              `json:"token"`
	User  domain.UserSnapshot `json:"user"`
}

// HandleRegister creates an account and signs the caller in.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeJSON[RegisterRequest](w, r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	user, err := h.authService.Register(r.Context(), req.Name, req.Email, req.Password)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	response, err := h.issue(user)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	h.logger.InfoContext(r.Context(), "user registered", "user_id", user.ID)
	WriteCreated(w, response)
}

// HandleLogin verifies credentials and returns a fresh token.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeJSON[LoginRequest](w, r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	user, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	response, err := h.issue(user)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteOK(w, response)
}

func (h *AuthHandler) issue(user *domain.User) (*TokenResponse, error) {
	token, err := h.tokenManager.GenerateToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{Token: token, User: domain.NewUserSnapshot(user.Info())}, nil
}
