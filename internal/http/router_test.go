package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymflow/server/internal/auth"
	"github.com/gymflow/server/internal/http/handlers"
	"github.com/gymflow/server/internal/metrics"
	"github.com/gymflow/server/internal/middleware"
	"github.com/gymflow/server/internal/model"
)

type routerService struct{}

func (routerService) Login(context.Context, auth.Credentials) (*auth.LoginResult, error) {
	return nil, &auth.Error{Kind: auth.KindAccountNotFound, Message: "Conta não encontrada."}
}

func (routerService) Refresh(context.Context, string) (*auth.RefreshResult, error) {
	return &auth.RefreshResult{AccessToken: "a", ExpiresIn: time.Hour}, nil
}

func (routerService) Logout(context.Context, string) error { return nil }

func (routerService) Me(_ context.Context, c *auth.JWTClaims) (*auth.MeResult, error) {
	return &auth.MeResult{Profile: model.Profile{ID: c.ProfileID, Username: "lucas"}, Role: c.Role, Panel: c.Panel}, nil
}

type tokenAuthenticator struct{ valid string }

func (a tokenAuthenticator) Authenticate(_ context.Context, token string) (*auth.JWTClaims, error) {
	if token != a.valid {
		return nil, auth.ErrSessionInvalid
	}
	return &auth.JWTClaims{ProfileID: uuid.New(), Role: model.RoleClient, Panel: model.PanelClient}, nil
}

func newTestRouter(limiter *middleware.RateLimiter) http.Handler {
	return NewRouter(RouterConfig{
		Auth:           handlers.NewAuthHandler(routerService{}, nil),
		Health:         handlers.NewHealthHandler(nil),
		Authenticator:  tokenAuthenticator{valid: "good"},
		Metrics:        metrics.New().Handler(),
		AllowedOrigins: []string{"https://app.academia.example"},
		IPLimiter:      limiter,
	})
}

func TestRouter_Routes(t *testing.T) {
	r := newTestRouter(nil)

	tests := []struct {
		method, path, body, auth string
		status                   int
	}{
		{http.MethodGet, "/health", "", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", "", http.StatusOK},
		{http.MethodPost, "/auth/login", `{"username":"x","password":"y"}`, "", http.StatusUnauthorized},
		{http.MethodPost, "/auth/refresh", `{"refresh_token":"t"}`, "", http.StatusOK},
		{http.MethodPost, "/auth/logout", `{"refresh_token":"t"}`, "", http.StatusOK},
		{http.MethodGet, "/auth/me", "", "", http.StatusUnauthorized},
		{http.MethodGet, "/auth/me", "", "Bearer stale", http.StatusUnauthorized},
		{http.MethodGet, "/auth/me", "", "Bearer good", http.StatusOK},
		{http.MethodGet, "/auth/login", "", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
		if tt.auth != "" {
			req.Header.Set("Authorization", tt.auth)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, tt.status, rec.Code, "%s %s", tt.method, tt.path)
	}
}

func TestRouter_CORS(t *testing.T) {
	r := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "https://app.academia.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.academia.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_IPLimiter(t *testing.T) {
	limiter := middleware.NewRateLimiter(time.Minute, 2)
	defer limiter.Stop()
	r := newTestRouter(limiter)

	var codes []int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"x","password":"y"}`))
		req.RemoteAddr = "203.0.113.7:4000"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Len(t, codes, 3)
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)

	// health is outside /auth
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.7:4000"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
