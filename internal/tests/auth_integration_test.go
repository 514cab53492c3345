package tests

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymflow/server/internal/admin"
	"github.com/gymflow/server/internal/auth"
	"github.com/gymflow/server/internal/config"
	httphandler "github.com/gymflow/server/internal/http"
	"github.com/gymflow/server/internal/http/handlers"
	"github.com/gymflow/server/internal/metrics"
	"github.com/gymflow/server/internal/model"
	"github.com/gymflow/server/internal/repo"
)

func TestMain(m *testing.M) {
	// Set env if unset. Do NOT set DATABASE_URL; integration tests skip if missing.
	if os.Getenv("JWT_SECRET") == "" {
		os.Setenv("JWT_SECRET", "test-jwt-secret-at-least-32-characters-long")
	}
	if os.Getenv("BCRYPT_COST") == "" {
		os.Setenv("BCRYPT_COST", "4")
	}

	code := m.Run()
	os.Exit(code)
}

// testServer holds the server and DB for integration tests
type testServer struct {
	Server *httptest.Server
	DB     *sql.DB
	Admin  *admin.Admin
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err, "config load must succeed for integration test")

	database, err := OpenDatabase(context.Background(), cfg.DatabaseURL)
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that test DB exists")
	t.Cleanup(func() { database.Close() })

	profileRepo := repo.NewProfileRepo(database)
	licenseRepo := repo.NewLicenseRepo(database)
	pregenRepo := repo.NewPreGeneratedRepo(database)
	masterRepo := repo.NewMasterRepo(database)

	authService := auth.NewAuthService(
		auth.NewResolver(masterRepo, pregenRepo, profileRepo, licenseRepo),
		auth.NewIdentityBridge(
			auth.NewLocalIdentityProvider(repo.NewIdentityRepo(database), cfg.BcryptCost),
			cfg.IdentityEmailDomain, cfg.IdentityTimeout, nil,
		),
		auth.NewProfileStore(profileRepo),
		auth.NewLicenseManager(licenseRepo, pregenRepo, cfg.TrialDefaultDays),
		auth.NewSessionGuard(repo.NewSessionRepo(database)),
		auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL),
		auth.WithFailureLimiter(auth.NewFailureLimiter(auth.NewMemoryAttemptStore(), cfg.LoginMaxFailures, cfg.LoginFailureWindow, nil)),
		auth.WithMetrics(metrics.New()),
	)

	router := httphandler.NewRouter(httphandler.RouterConfig{
		Auth:           handlers.NewAuthHandler(authService, nil),
		Health:         handlers.NewHealthHandler(database),
		Authenticator:  authService,
		AllowedOrigins: []string{"*"},
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{
		Server: server,
		DB:     database,
		Admin:  admin.New(profileRepo, licenseRepo, pregenRepo, masterRepo, cfg.BcryptCost, cfg.TrialDefaultDays),
	}
}

func (s *testServer) BaseURL() string { return s.Server.URL }

func (s *testServer) Reset(t *testing.T) {
	t.Helper()
	require.NoError(t, ResetDatabase(s.DB), "reset database")
}

type licenseBody struct {
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	ExpiresAt       *time.Time `json:"expires_at"`
	TimeRemainingMS *int64     `json:"time_remaining_ms"`
}

// loginBody matches both the success and the failure JSON of POST /auth/login
type loginBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	User    struct {
		ID        string `json:"id"`
		ProfileID string `json:"profile_id"`
		Username  string `json:"username"`
		FullName  string `json:"full_name"`
		Role      string `json:"role"`
	} `json:"user"`
	License *licenseBody `json:"license"`
	Session struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	} `json:"session"`
}

func (s *testServer) login(t *testing.T, username, password, panel string) (int, loginBody) {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{
		"username": username, "password": password, "panelType": panel, "deviceInfo": "integration",
	})
	resp, err := s.Server.Client().Post(s.BaseURL()+"/auth/login", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw := readBody(resp)
	var body loginBody
	require.NoError(t, json.Unmarshal([]byte(raw), &body), "body: %s", raw)
	return resp.StatusCode, body
}

func (s *testServer) me(t *testing.T, accessToken string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.BaseURL()+"/auth/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := s.Server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestAuthIntegration(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	ts := newTestServer(t)
	ctx := context.Background()

	t.Run("A_HealthCheck", func(t *testing.T) {
		resp, err := ts.Server.Client().Get(ts.BaseURL() + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, "GET /health must return 200")
		var body map[string]bool
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.True(t, body["ok"], "response must contain {\"ok\":true}")
	})

	t.Run("B_DemoLogin", func(t *testing.T) {
		ts.Reset(t)
		status, body := ts.login(t, "teste", "2026", "client")
		require.Equal(t, http.StatusOK, status, "demo login must succeed: %+v", body)
		assert.Equal(t, "client", body.User.Role)
		require.NotNil(t, body.License)
		assert.Equal(t, "demo", body.License.Type)
		require.NotNil(t, body.License.TimeRemainingMS)
		assert.InDelta(t, (30 * time.Minute).Milliseconds(), *body.License.TimeRemainingMS, float64(time.Minute.Milliseconds()))
	})

	t.Run("C_PreGeneratedConsumedOnce", func(t *testing.T) {
		ts.Reset(t)
		days := 30
		acc, err := SeedPreGenerated(ctx, ts.DB, model.AccountFull, &days)
		require.NoError(t, err)

		status, first := ts.login(t, acc.Username, acc.LicenseKey, "client")
		require.Equal(t, http.StatusOK, status, "first login must consume the account: %+v", first)
		require.NotNil(t, first.License.ExpiresAt)

		stored, err := repo.NewPreGeneratedRepo(ts.DB).GetByUsername(ctx, acc.Username)
		require.NoError(t, err)
		assert.True(t, stored.IsUsed)

		status, second := ts.login(t, acc.Username, acc.LicenseKey, "client")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, first.User.ProfileID, second.User.ProfileID)
		assert.True(t, first.License.ExpiresAt.Equal(*second.License.ExpiresAt), "expiry must not move on re-login")

		status, wrong := ts.login(t, acc.Username, "WRONG-KEY0", "client")
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "account_not_found", wrong.Code)
	})

	t.Run("D_SingleActiveSession", func(t *testing.T) {
		ts.Reset(t)
		acc, err := SeedPreGenerated(ctx, ts.DB, model.AccountClient, nil)
		require.NoError(t, err)

		status, first := ts.login(t, acc.Username, acc.LicenseKey, "client")
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, http.StatusOK, ts.me(t, first.Session.AccessToken))

		status, second := ts.login(t, acc.Username, acc.LicenseKey, "client")
		require.Equal(t, http.StatusOK, status)

		assert.Equal(t, http.StatusUnauthorized, ts.me(t, first.Session.AccessToken), "older session must be invalid")
		assert.Equal(t, http.StatusOK, ts.me(t, second.Session.AccessToken))
	})

	t.Run("E_PanelDenied", func(t *testing.T) {
		ts.Reset(t)
		acc, err := SeedPreGenerated(ctx, ts.DB, model.AccountClient, nil)
		require.NoError(t, err)

		status, body := ts.login(t, acc.Username, acc.LicenseKey, "admin")
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "panel_access_denied", body.Code)
		assert.Contains(t, body.Error, "painel do cliente")
	})

	t.Run("F_BlockedAndUnblocked", func(t *testing.T) {
		ts.Reset(t)
		acc, err := SeedPreGenerated(ctx, ts.DB, model.AccountFull, nil)
		require.NoError(t, err)
		status, _ := ts.login(t, acc.Username, acc.LicenseKey, "client")
		require.Equal(t, http.StatusOK, status)

		require.NoError(t, ts.Admin.Block(ctx, acc.Username))
		status, body := ts.login(t, acc.Username, acc.LicenseKey, "client")
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "license_blocked", body.Code)

		require.NoError(t, ts.Admin.Unblock(ctx, acc.Username))
		status, _ = ts.login(t, acc.Username, acc.LicenseKey, "client")
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("G_ExpiredIsMarkedOnLogin", func(t *testing.T) {
		ts.Reset(t)
		days := 10
		acc, err := SeedPreGenerated(ctx, ts.DB, model.AccountFull, &days)
		require.NoError(t, err)
		status, first := ts.login(t, acc.Username, acc.LicenseKey, "client")
		require.Equal(t, http.StatusOK, status)

		_, err = ts.DB.ExecContext(ctx,
			`UPDATE licenses SET expires_at = now() - interval '1 minute' WHERE profile_id = $1`, first.User.ProfileID)
		require.NoError(t, err)

		status, body := ts.login(t, acc.Username, acc.LicenseKey, "client")
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "license_expired", body.Code)

		var dbStatus string
		require.NoError(t, ts.DB.QueryRowContext(ctx,
			`SELECT status FROM licenses WHERE profile_id = $1`, first.User.ProfileID).Scan(&dbStatus))
		assert.Equal(t, "expired", dbStatus)
	})

	t.Run("H_RevokedAfterConsumption", func(t *testing.T) {
		ts.Reset(t)
		acc, err := SeedPreGenerated(ctx, ts.DB, model.AccountFull, nil)
		require.NoError(t, err)
		status, _ := ts.login(t, acc.Username, acc.LicenseKey, "client")
		require.Equal(t, http.StatusOK, status)

		require.NoError(t, ts.Admin.Revoke(ctx, acc.Username))
		status, body := ts.login(t, acc.Username, acc.LicenseKey, "client")
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "license_revoked", body.Code)

		revived, err := ts.Admin.Revive(ctx, acc.Username, nil)
		require.NoError(t, err)
		status, _ = ts.login(t, acc.Username, revived.LicenseKey, "client")
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("I_MasterAnyPanel", func(t *testing.T) {
		ts.Reset(t)
		_, err := ts.Admin.CreateMaster(ctx, "dono", "senha-master", "Dono da Academia")
		require.NoError(t, err)

		for _, panel := range []string{"client", "instructor", "admin"} {
			status, body := ts.login(t, "dono", "senha-master", panel)
			require.Equal(t, http.StatusOK, status, "panel %s: %+v", panel, body)
			assert.Equal(t, "master", body.User.Role)
			assert.Nil(t, body.License.TimeRemainingMS)
		}

		status, body := ts.login(t, "dono", "errada", "client")
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "invalid_credential", body.Code)
	})

	t.Run("J_UnknownAccount", func(t *testing.T) {
		ts.Reset(t)
		status, body := ts.login(t, "ninguem", "1234", "client")
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "account_not_found", body.Code)
		assert.False(t, body.Success)
	})
}

func readBody(resp *http.Response) string {
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}
