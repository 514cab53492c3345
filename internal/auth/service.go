package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gymflow/server/internal/logger"
	"github.com/gymflow/server/internal/metrics"
	"github.com/gymflow/server/internal/model"
)

// LoginResult is a successful login
type LoginResult struct {
	Profile       model.Profile
	Email         string
	Role          model.Role
	License       model.License
	TimeRemaining time.Duration
	// Unlimited is set for licenses without expiry
	Unlimited    bool
	SessionID    uuid.UUID
	AccessToken  string
	RefreshToken string
}

// RefreshResult is a new access token for a still-current session
type RefreshResult struct {
	AccessToken string
	ExpiresIn   time.Duration
}

// MeResult describes the signed-in account
type MeResult struct {
	Profile       model.Profile
	Role          model.Role
	Panel         model.Panel
	License       *model.License
	TimeRemaining time.Duration
	Unlimited     bool
}

// AuthService orchestrates authentication operations
type AuthService struct {
	resolver *Resolver
	identity *IdentityBridge
	profiles *ProfileStore
	licenses *LicenseManager
	sessions *SessionGuard
	jwt      *JWTService
	limiter  *FailureLimiter
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// Option configures an AuthService
type Option func(*AuthService)

// WithFailureLimiter throttles repeated credential failures per username
func WithFailureLimiter(l *FailureLimiter) Option {
	return func(s *AuthService) { s.limiter = l }
}

// WithMetrics records login outcomes, license expiries and session rotations
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *AuthService) { s.metrics = m }
}

// WithLogger sets the service logger
func WithLogger(log *zap.Logger) Option {
	return func(s *AuthService) { s.log = log }
}

// WithClock replaces time.Now for license and token decisions
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) {
		s.licenses.now = now
		s.jwt.now = now
	}
}

// NewAuthService creates a new auth service
func NewAuthService(
	resolver *Resolver,
	identity *IdentityBridge,
	profiles *ProfileStore,
	licenses *LicenseManager,
	sessions *SessionGuard,
	jwtService *JWTService,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		resolver: resolver,
		identity: identity,
		profiles: profiles,
		licenses: licenses,
		sessions: sessions,
		jwt:      jwtService,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics != nil {
		s.licenses.onExpire = s.metrics.LicensesExpired.Inc
		s.sessions.onRotate = s.metrics.SessionRotations.Inc
	}
	return s
}

// Login runs the credentials through resolution, identity, profile, license
// and panel checks, in that order, and rotates the session once all pass.
func (s *AuthService) Login(ctx context.Context, c Credentials) (*LoginResult, error) {
	if c.Panel == "" {
		c.Panel = model.PanelClient
	}

	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, c.Username); err != nil {
			return nil, s.fail(ctx, c, err)
		}
	}

	res, err := s.resolver.Resolve(ctx, c)
	if err != nil {
		return nil, s.fail(ctx, c, err)
	}

	identity, err := s.identity.Ensure(ctx, res.Username, c.Password)
	if err != nil {
		return nil, s.fail(ctx, c, err)
	}

	profile, err := s.profiles.Ensure(ctx, res, identity)
	if err != nil {
		return nil, s.fail(ctx, c, err)
	}

	lic, err := s.licenses.Ensure(ctx, profile, res)
	if err != nil {
		return nil, s.fail(ctx, c, err)
	}
	lic, err = s.licenses.Validate(ctx, lic)
	if err != nil {
		return nil, s.fail(ctx, c, err)
	}

	// a denied panel must leave the session on the other device intact
	if err := AuthorizePanel(res.Role, c.Panel); err != nil {
		return nil, s.fail(ctx, c, err)
	}

	session, refreshToken, err := s.sessions.Rotate(ctx, profile.ID, res.Role, c.Panel, c.DeviceInfo)
	if err != nil {
		return nil, s.fail(ctx, c, err)
	}

	accessToken, err := s.jwt.SignAccessToken(profile.ID, session.ID, res.Role, c.Panel)
	if err != nil {
		return nil, s.fail(ctx, c, internalError("sign access token", err))
	}

	if s.limiter != nil {
		s.limiter.Reset(ctx, c.Username)
	}
	s.observe("success")

	remaining, bounded := s.licenses.TimeRemaining(lic)
	s.log.Info("login succeeded",
		zap.String("username", logger.MaskUsername(res.Username)),
		zap.String("source", string(res.Source)),
		zap.String("role", string(res.Role)),
		zap.String("panel", string(c.Panel)),
	)

	return &LoginResult{
		Profile:       profile,
		Email:         identity.Email,
		Role:          res.Role,
		License:       lic,
		TimeRemaining: remaining,
		Unlimited:     !bounded,
		SessionID:     session.ID,
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
	}, nil
}

// Refresh issues a new access token for the session behind refreshToken as
// long as the session is current and the license still valid.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	session, err := s.sessions.Lookup(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if _, err := s.licenses.Current(ctx, session.ProfileID); err != nil {
		return nil, err
	}
	accessToken, err := s.jwt.SignAccessToken(session.ProfileID, session.ID, session.Role, session.Panel)
	if err != nil {
		return nil, internalError("sign access token", err)
	}
	return &RefreshResult{AccessToken: accessToken, ExpiresIn: s.jwt.TTL()}, nil
}

// Logout ends the session behind refreshToken
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.End(ctx, refreshToken)
}

// Authenticate verifies an access token and that its session was not replaced
// by a later login.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*JWTClaims, error) {
	claims, err := s.jwt.VerifyToken(accessToken)
	if err != nil {
		return nil, newError(KindSessionInvalid, err)
	}
	session, err := s.sessions.Validate(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if session.ProfileID != claims.ProfileID {
		return nil, newError(KindSessionInvalid, nil)
	}
	return claims, nil
}

// Me describes the account behind authenticated claims. Expired or blocked
// licenses are reported, not rejected.
func (s *AuthService) Me(ctx context.Context, claims *JWTClaims) (*MeResult, error) {
	profile, err := s.profiles.Get(ctx, claims.ProfileID)
	if err != nil {
		return nil, err
	}
	out := &MeResult{Profile: profile, Role: claims.Role, Panel: claims.Panel}

	lic, err := s.licenses.Current(ctx, claims.ProfileID)
	var authErr *Error
	switch {
	case err == nil:
		out.License = &lic
	case errors.As(err, &authErr) && authErr.License != nil:
		out.License = authErr.License
	case errors.Is(err, ErrLicenseRevoked):
	default:
		return nil, err
	}
	if out.License != nil {
		remaining, bounded := s.licenses.TimeRemaining(*out.License)
		out.TimeRemaining = remaining
		out.Unlimited = !bounded
	}
	return out, nil
}

func (s *AuthService) fail(ctx context.Context, c Credentials, err error) error {
	var authErr *Error
	if !errors.As(err, &authErr) {
		authErr = internalError("login", err)
	}

	if s.limiter != nil && authErr.Credential() {
		s.limiter.RecordFailure(ctx, c.Username)
	}
	s.observe(string(authErr.Kind))

	fields := []zap.Field{
		zap.String("username", logger.MaskUsername(c.Username)),
		zap.String("kind", string(authErr.Kind)),
		zap.String("panel", string(c.Panel)),
	}
	switch authErr.Kind {
	case KindInternal, KindIdentityProvider:
		s.log.Error("login failed", append(fields, zap.Error(authErr.Err))...)
	default:
		s.log.Info("login rejected", fields...)
	}
	return authErr
}

func (s *AuthService) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.Logins.WithLabelValues(outcome).Inc()
	}
}
