package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/gymflow/server/internal/http/handlers"
	"github.com/gymflow/server/internal/middleware"
)

// RouterConfig carries the pieces NewRouter wires together
type RouterConfig struct {
	Auth           *handlers.AuthHandler
	Health         *handlers.HealthHandler
	Authenticator  middleware.Authenticator
	Metrics        http.Handler
	AllowedOrigins []string
	// IPLimiter throttles /auth requests per client IP; nil disables it
	IPLimiter *middleware.RateLimiter
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}).Handler)

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.ServeHTTP)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		if cfg.IPLimiter != nil {
			r.Use(middleware.RateLimitMiddleware(cfg.IPLimiter, middleware.GetIPKey))
		}
		r.Post("/login", cfg.Auth.HandleLogin)
		r.Post("/refresh", cfg.Auth.HandleRefresh)
		r.Post("/logout", cfg.Auth.HandleLogout)

		// Protected routes (require a current session)
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(cfg.Authenticator))
			r.Get("/me", cfg.Auth.HandleMe)
		})
	})

	return r
}
