package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gymflow/server/internal/auth"
	"github.com/gymflow/server/internal/middleware"
	"github.com/gymflow/server/internal/model"
)

const maxBodyBytes = 1 << 16

// AuthService is the part of auth.AuthService the handlers need
type AuthService interface {
	Login(ctx context.Context, c auth.Credentials) (*auth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.RefreshResult, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, claims *auth.JWTClaims) (*auth.MeResult, error)
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService AuthService
	log         *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService AuthService, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{authService: authService, log: log}
}

// loginRequest is the request body for POST /auth/login
type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	DeviceInfo string `json:"deviceInfo,omitempty"`
	PanelType  string `json:"panelType,omitempty"`
}

// userResponse is the user object in API responses
type userResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	ProfileID string     `json:"profile_id"`
	Username  string     `json:"username"`
	FullName  string     `json:"full_name"`
	Role      model.Role `json:"role"`
}

// licenseResponse describes a license; time_remaining_ms is null for licenses without expiry
type licenseResponse struct {
	Type            model.LicenseType   `json:"type"`
	Status          model.LicenseStatus `json:"status"`
	ExpiresAt       *time.Time          `json:"expires_at"`
	TimeRemainingMS *int64              `json:"time_remaining_ms"`
}

type sessionResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// loginResponse is the JSON response for a successful login
type loginResponse struct {
	Success bool             `json:"success"`
	User    userResponse     `json:"user"`
	License *licenseResponse `json:"license,omitempty"`
	Session sessionResponse  `json:"session"`
}

// errorResponse is the JSON body of every failure
type errorResponse struct {
	Success bool             `json:"success"`
	Error   string           `json:"error"`
	Code    string           `json:"code"`
	License *licenseResponse `json:"license,omitempty"`
}

func newLicenseResponse(lic model.License, remaining time.Duration, unlimited bool) *licenseResponse {
	out := &licenseResponse{Type: lic.Type, Status: lic.Status, ExpiresAt: lic.ExpiresAt}
	if !unlimited {
		ms := remaining.Milliseconds()
		out.TimeRemainingMS = &ms
	}
	return out
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Informe usuário e senha.")
		return
	}
	panel, ok := model.ParsePanel(strings.TrimSpace(req.PanelType))
	if !ok {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Painel inválido.")
		return
	}

	res, err := h.authService.Login(r.Context(), auth.Credentials{
		Username:   req.Username,
		Password:   req.Password,
		Panel:      panel,
		DeviceInfo: strings.TrimSpace(req.DeviceInfo),
	})
	if err != nil {
		h.respondWithAuthError(w, err)
		return
	}

	response := loginResponse{
		Success: true,
		User: userResponse{
			ID:        res.Profile.ID.String(),
			Email:     res.Email,
			ProfileID: res.Profile.ID.String(),
			Username:  res.Profile.Username,
			FullName:  res.Profile.FullName,
			Role:      res.Role,
		},
		License: newLicenseResponse(res.License, res.TimeRemaining, res.Unlimited),
		Session: sessionResponse{
			AccessToken:  res.AccessToken,
			RefreshToken: res.RefreshToken,
		},
	}
	h.respond(w, http.StatusOK, response)
}

// refreshRequest is the request body for POST /auth/refresh and /auth/logout
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refreshResponse is the JSON response for refresh
type refreshResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// HandleRefresh handles POST /auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "refresh_token é obrigatório.")
		return
	}
	res, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.respondWithAuthError(w, err)
		return
	}
	h.respond(w, http.StatusOK, refreshResponse{
		Success:     true,
		AccessToken: res.AccessToken,
		TokenType:   "bearer",
		ExpiresIn:   int64(res.ExpiresIn.Seconds()),
	})
}

// HandleLogout handles POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "refresh_token é obrigatório.")
		return
	}
	if err := h.authService.Logout(r.Context(), req.RefreshToken); err != nil {
		h.respondWithAuthError(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{"success": true})
}

type meResponse struct {
	Success bool             `json:"success"`
	User    userResponse     `json:"user"`
	Panel   model.Panel      `json:"panel"`
	License *licenseResponse `json:"license,omitempty"`
}

// HandleMe handles GET /auth/me (protected)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || claims == nil {
		respondWithError(w, http.StatusUnauthorized, string(auth.KindSessionInvalid), "Não autorizado.")
		return
	}

	res, err := h.authService.Me(r.Context(), claims)
	if err != nil {
		h.respondWithAuthError(w, err)
		return
	}

	email := ""
	if res.Profile.Email != nil {
		email = *res.Profile.Email
	}
	response := meResponse{
		Success: true,
		User: userResponse{
			ID:        res.Profile.ID.String(),
			Email:     email,
			ProfileID: res.Profile.ID.String(),
			Username:  res.Profile.Username,
			FullName:  res.Profile.FullName,
			Role:      res.Role,
		},
		Panel: res.Panel,
	}
	if res.License != nil {
		response.License = newLicenseResponse(*res.License, res.TimeRemaining, res.Unlimited)
	}
	h.respond(w, http.StatusOK, response)
}

// StatusFor maps an error kind to its HTTP status
func StatusFor(kind auth.ErrorKind) int {
	switch kind {
	case auth.KindAccountNotFound, auth.KindInvalidCredential, auth.KindSessionInvalid:
		return http.StatusUnauthorized
	case auth.KindLicenseExpired, auth.KindLicenseBlocked, auth.KindLicenseRevoked, auth.KindPanelAccessDenied:
		return http.StatusForbidden
	case auth.KindTooManyAttempts:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (h *AuthHandler) respondWithAuthError(w http.ResponseWriter, err error) {
	var authErr *auth.Error
	if !errors.As(err, &authErr) {
		h.log.Error("unexpected auth error", zap.Error(err))
		authErr = &auth.Error{Kind: auth.KindInternal}
	}
	message := authErr.Message
	if message == "" {
		message = "Erro interno. Tente novamente mais tarde."
	}

	body := errorResponse{Error: message, Code: string(authErr.Kind)}
	if authErr.License != nil {
		// failed licenses have no time left
		body.License = newLicenseResponse(*authErr.License, 0, false)
	}
	h.respond(w, StatusFor(authErr.Kind), body)
}

func (h *AuthHandler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn("failed to encode response", zap.Error(err))
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Requisição inválida.")
		return false
	}
	return true
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message, Code: code})
}
