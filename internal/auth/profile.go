package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/gymflow/server/internal/model"
	"github.com/gymflow/server/internal/repo"
)

type profileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.Profile, error)
	GetByUsername(ctx context.Context, username string) (model.Profile, error)
	GetByIdentityUserID(ctx context.Context, identityUserID uuid.UUID) (model.Profile, error)
	GetOrCreate(ctx context.Context, p model.Profile) (model.Profile, error)
	LinkIdentity(ctx context.Context, profileID, identityUserID uuid.UUID) error
}

// ProfileStore keeps application profiles linked to their identity users
type ProfileStore struct {
	profiles profileStore
}

func NewProfileStore(profiles profileStore) *ProfileStore {
	return &ProfileStore{profiles: profiles}
}

// Get returns a profile by id
func (s *ProfileStore) Get(ctx context.Context, id uuid.UUID) (model.Profile, error) {
	p, err := s.profiles.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Profile{}, newError(KindSessionInvalid, err)
	}
	if err != nil {
		return model.Profile{}, internalError("get profile", err)
	}
	return p, nil
}

// Ensure returns the profile of the resolved account linked to identity,
// repairing a stale link or creating the profile on first login.
func (s *ProfileStore) Ensure(ctx context.Context, res Resolution, identity model.IdentityUser) (model.Profile, error) {
	p, err := s.profiles.GetByIdentityUserID(ctx, identity.ID)
	if err == nil && strings.EqualFold(p.Username, res.Username) {
		return p, nil
	}
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return model.Profile{}, internalError("lookup profile by identity", err)
	}

	p, err = s.profiles.GetByUsername(ctx, res.Username)
	switch {
	case err == nil:
		if p.IdentityUserID == nil || *p.IdentityUserID != identity.ID {
			if err := s.profiles.LinkIdentity(ctx, p.ID, identity.ID); err != nil {
				return model.Profile{}, internalError("repair profile link", err)
			}
			id := identity.ID
			p.IdentityUserID = &id
		}
		return p, nil
	case errors.Is(err, repo.ErrNotFound):
	default:
		return model.Profile{}, internalError("lookup profile", err)
	}

	id := identity.ID
	email := identity.Email
	np := model.Profile{
		IdentityUserID: &id,
		Username:       res.Username,
		FullName:       displayName(res),
		Email:          &email,
	}
	if res.AccountType != "" {
		accountType := res.AccountType
		np.AccountType = &accountType
	}
	p, err = s.profiles.GetOrCreate(ctx, np)
	if err != nil {
		return model.Profile{}, internalError("create profile", err)
	}
	// a concurrent login may have created the row without our link
	if p.IdentityUserID == nil || *p.IdentityUserID != identity.ID {
		if err := s.profiles.LinkIdentity(ctx, p.ID, identity.ID); err != nil {
			return model.Profile{}, internalError("link profile", err)
		}
		p.IdentityUserID = &id
	}
	return p, nil
}

// displayName derives the name shown for a profile created on first login
func displayName(res Resolution) string {
	switch res.Source {
	case SourceDemo:
		return "Usuário Demonstração"
	case SourceMaster:
		if res.DisplayName != "" {
			return res.DisplayName
		}
		return "Master " + res.Username
	}
	switch strings.ToLower(res.AccountType) {
	case model.AccountInstructor:
		return "Instrutor " + res.Username
	case model.AccountAdmin, model.AccountAdminDemo:
		return "Gerente " + res.Username
	case model.AccountDemo:
		return "Demo " + res.Username
	case model.AccountTrial:
		return "Teste " + res.Username
	default:
		return "Cliente " + res.Username
	}
}
