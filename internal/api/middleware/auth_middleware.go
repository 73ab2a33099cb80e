package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/auth"
)

type UserIDKey struct{}

type tokenKey struct{}

// TokenValidator validates a bearer token. *auth.TokenService implements it.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*auth.Claims, error)
}

// GetUserIDFromContext retrieves the user ID from the context.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey{}).(string)
	return userID, ok
}

// GetTokenFromContext retrieves the raw bearer token of an authenticated request.
func GetTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// writeJSONError writes a JSON error response
func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(map[string]string{"error": message})
}

// AuthMiddleware rejects requests without a valid bearer token and stores the
// authenticated user ID in the request context.
func AuthMiddleware(tokens TokenValidator, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	logger = logger.WithField("component", "AuthMiddleware")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				writeJSONError(w, http.StatusUnauthorized, "Authorization header is required")
				return
			}
			tokenString, ok := BearerToken(r)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "Invalid Authorization header format. Must be 'Bearer <token>'")
				return
			}

			claims, err := tokens.Validate(r.Context(), tokenString)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrTokenRevoked) {
					logger.WithError(err).Error("token validation failed")
					writeJSONError(w, http.StatusInternalServerError, "Internal server error")
					return
				}
				logger.WithError(err).Debug("rejected token")
				writeJSONError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey{}, claims.UserID())
			ctx = context.WithValue(ctx, tokenKey{}, tokenString)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
