package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gymflow/server/internal/auth"
	"github.com/gymflow/server/internal/config"
	"github.com/gymflow/server/internal/db"
	httphandler "github.com/gymflow/server/internal/http"
	"github.com/gymflow/server/internal/http/handlers"
	"github.com/gymflow/server/internal/logger"
	"github.com/gymflow/server/internal/metrics"
	"github.com/gymflow/server/internal/middleware"
	"github.com/gymflow/server/internal/repo"
)

func main() {
	// Load .env from CWD or server/ so it works from repo root or server/ (env vars override)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("server/.env")

	cfg, err := config.Load()
	if err != nil {
		// logger config depends on cfg; fall back to a production logger
		zap.Must(zap.NewProduction()).Fatal("failed to load configuration", zap.Error(err))
	}

	log, err := logger.New(cfg.DevMode)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL, db.DefaultPool, log)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Initialize repositories
	profileRepo := repo.NewProfileRepo(database)
	licenseRepo := repo.NewLicenseRepo(database)
	pregenRepo := repo.NewPreGeneratedRepo(database)
	sessionRepo := repo.NewSessionRepo(database)
	masterRepo := repo.NewMasterRepo(database)
	identityRepo := repo.NewIdentityRepo(database)

	attempts, closeAttempts := newAttemptStore(ctx, cfg, log)
	defer closeAttempts()

	m := metrics.New()

	// Initialize auth services
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL)
	authService := auth.NewAuthService(
		auth.NewResolver(masterRepo, pregenRepo, profileRepo, licenseRepo),
		auth.NewIdentityBridge(
			auth.NewLocalIdentityProvider(identityRepo, cfg.BcryptCost),
			cfg.IdentityEmailDomain, cfg.IdentityTimeout, log,
		),
		auth.NewProfileStore(profileRepo),
		auth.NewLicenseManager(licenseRepo, pregenRepo, cfg.TrialDefaultDays),
		auth.NewSessionGuard(sessionRepo),
		jwtService,
		auth.WithFailureLimiter(auth.NewFailureLimiter(attempts, cfg.LoginMaxFailures, cfg.LoginFailureWindow, log)),
		auth.WithMetrics(m),
		auth.WithLogger(log),
	)

	ipLimiter := middleware.NewRateLimiter(time.Minute, 60)
	defer ipLimiter.Stop()

	router := httphandler.NewRouter(httphandler.RouterConfig{
		Auth:           handlers.NewAuthHandler(authService, log),
		Health:         handlers.NewHealthHandler(database),
		Authenticator:  authService,
		Metrics:        m.Handler(),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		IPLimiter:      ipLimiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

// newAttemptStore uses Redis when REDIS_ADDR is set and reachable, and an
// in-process store otherwise.
func newAttemptStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (auth.AttemptStore, func()) {
	if cfg.RedisAddr == "" {
		log.Info("login failure counter uses in-memory store")
		return auth.NewMemoryAttemptStore(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable, login failure counter uses in-memory store",
			zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = client.Close()
		return auth.NewMemoryAttemptStore(), func() {}
	}
	log.Info("login failure counter uses redis", zap.String("addr", cfg.RedisAddr))
	return auth.NewRedisAttemptStore(client), func() { _ = client.Close() }
}
