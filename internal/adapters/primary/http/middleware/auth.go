package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lorrc/event-attendance-backend/internal/auth"
	"github.com/lorrc/event-attendance-backend/internal/core/domain"
	apperrors "github.com/lorrc/event-attendance-backend/internal/core/errors"
	"github.com/lorrc/event-attendance-backend/internal/infrastructure/logging"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// UserClaimsKey is the key used to store user claims in the request context.
const UserClaimsKey contextKey = "userClaims"

// ErrorResponder writes err to w. The HTTP error handler satisfies it.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// DefaultUserLookupTimeout bounds the account lookup in RequireUser when no
// timeout is configured.
const DefaultUserLookupTimeout = 5 * time.Second

// UserResolver looks up the account behind a verified token.
type UserResolver interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// JWTMiddleware validates the JWT token from the Authorization header.
// Missing, malformed and invalid tokens are all reported as ErrUnauthorized.
func JWTMiddleware(tm *auth.TokenManager, onError ErrorResponder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				onError(w, r, err)
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				onError(w, r, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err))
				return
			}

			ctx := context.WithValue(r.Context(), UserClaimsKey, claims)
			ctx = logging.WithUserID(ctx, claims.UserID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser rejects requests whose verified token names an account that no
// longer exists. It must run after JWTMiddleware. The lookup is bounded by
// timeout; expiry is reported as ErrTimeout.
func RequireUser(users UserResolver, timeout time.Duration, onError ErrorResponder) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultUserLookupTimeout
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				onError(w, r, apperrors.ErrUnauthorized)
				return
			}

			if err := lookupUser(r.Context(), users, userID, timeout); err != nil {
				onError(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func lookupUser(ctx context.Context, users UserResolver, userID uuid.UUID, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := users.GetUser(ctx, userID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperrors.ErrUserNotFound):
		return fmt.Errorf("%w: %v", apperrors.ErrForbidden, err)
	case errors.Is(err, apperrors.ErrTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: user lookup: %v", apperrors.ErrTimeout, err)
	default:
		return err
	}
}

// GetClaims returns the verified token claims, if any.
func GetClaims(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(UserClaimsKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// UserIDFromContext returns the verified user id.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	claims, ok := GetClaims(ctx)
	if !ok || claims.UserID == uuid.Nil {
		return uuid.Nil, false
	}
	return claims.UserID, true
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("%w: authorization header is required", apperrors.ErrUnauthorized)
	}

	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: authorization header format must be Bearer {token}", apperrors.ErrUnauthorized)
	}
	return strings.TrimSpace(token), nil
}
