package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gymflow/server/internal/auth"
)

type contextKey string

const (
	claimsKey    contextKey = "claims"
	profileIDKey contextKey = "profile_id"
)

// Authenticator verifies an access token and its session
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*auth.JWTClaims, error)
}

// AuthMiddleware validates access tokens, rejects tokens whose session was
// replaced by a newer login, and attaches the claims to the context.
func AuthMiddleware(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondWithError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				respondWithError(w, http.StatusUnauthorized, "missing token")
				return
			}

			claims, err := authenticator.Authenticate(r.Context(), tokenString)
			if err != nil {
				if auth.IsKind(err, auth.KindInternal) {
					respondWithError(w, http.StatusInternalServerError, "internal error")
					return
				}
				respondWithError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = context.WithValue(ctx, profileIDKey, claims.ProfileID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims returns the access token claims attached by AuthMiddleware
func GetClaims(ctx context.Context) (*auth.JWTClaims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.JWTClaims)
	return c, ok
}

// GetProfileID extracts the profile ID from context
func GetProfileID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(profileIDKey).(uuid.UUID)
	return id, ok
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}
