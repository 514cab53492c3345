package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/gymflow/server/internal/model"
	"github.com/gymflow/server/internal/repo"
)

type sessionStore interface {
	Replace(ctx context.Context, s model.Session) (model.Session, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (model.Session, error)
	Touch(ctx context.Context, id uuid.UUID) error
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
}

// SessionGuard keeps a single valid session per profile
type SessionGuard struct {
	sessions sessionStore
	onRotate func()
}

func NewSessionGuard(sessions sessionStore) *SessionGuard {
	return &SessionGuard{sessions: sessions, onRotate: func() {}}
}

// Rotate discards every session of the profile and opens a new one. The
// returned token is the only copy; the store keeps its hash.
func (g *SessionGuard) Rotate(ctx context.Context, profileID uuid.UUID, role model.Role, panel model.Panel, deviceInfo string) (model.Session, string, error) {
	token, hash, err := GenerateSessionToken()
	if err != nil {
		return model.Session{}, "", internalError("generate session token", err)
	}
	s := model.Session{
		ProfileID: profileID,
		TokenHash: hash,
		Role:      role,
		Panel:     panel,
		IsValid:   true,
	}
	if deviceInfo != "" {
		s.DeviceInfo = &deviceInfo
	}
	stored, err := g.sessions.Replace(ctx, s)
	if err != nil {
		return model.Session{}, "", internalError("replace session", err)
	}
	g.onRotate()
	return stored, token, nil
}

// Validate returns the session if it is still the profile's current one
func (g *SessionGuard) Validate(ctx context.Context, sessionID uuid.UUID) (model.Session, error) {
	s, err := g.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Session{}, newError(KindSessionInvalid, nil)
	}
	if err != nil {
		return model.Session{}, internalError("get session", err)
	}
	if !s.IsValid {
		return model.Session{}, newError(KindSessionInvalid, nil)
	}
	return s, nil
}

// Lookup resolves a refresh token to its session and records the activity
func (g *SessionGuard) Lookup(ctx context.Context, token string) (model.Session, error) {
	if token == "" {
		return model.Session{}, newError(KindSessionInvalid, nil)
	}
	s, err := g.sessions.GetByTokenHash(ctx, HashToken(token))
	if errors.Is(err, repo.ErrNotFound) {
		return model.Session{}, newError(KindSessionInvalid, nil)
	}
	if err != nil {
		return model.Session{}, internalError("get session", err)
	}
	if !s.IsValid {
		return model.Session{}, newError(KindSessionInvalid, nil)
	}
	if err := g.sessions.Touch(ctx, s.ID); err != nil {
		return model.Session{}, internalError("touch session", err)
	}
	return s, nil
}

// End deletes the session behind token
func (g *SessionGuard) End(ctx context.Context, token string) error {
	if token == "" {
		return newError(KindSessionInvalid, nil)
	}
	err := g.sessions.DeleteByTokenHash(ctx, HashToken(token))
	if errors.Is(err, repo.ErrNotFound) {
		return newError(KindSessionInvalid, nil)
	}
	if err != nil {
		return internalError("delete session", err)
	}
	return nil
}
