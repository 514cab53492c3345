package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/gymflow/server/internal/model"
	"github.com/gymflow/server/internal/repo"
)

// Hard-coded demonstration account
const (
	DemoUsername = "teste"
	DemoPassword = "2026"
)

// Source identifies which credential class resolved a login
type Source string

const (
	SourceDemo         Source = "demo"
	SourceMaster       Source = "master"
	SourcePreGenerated Source = "pre_generated"
	SourceRegular      Source = "regular"
)

// Credentials is a login attempt as submitted by the client
type Credentials struct {
	Username   string
	Password   string
	Panel      model.Panel
	DeviceInfo string
}

// Resolution is the outcome of credential resolution. Only the fields of the
// resolving Source are set: DisplayName for masters, PreGenerated for
// pre-generated accounts, Profile and License for regular accounts.
type Resolution struct {
	Source      Source
	Username    string
	Role        model.Role
	LicenseType model.LicenseType
	AccountType string
	DisplayName string

	PreGenerated *model.PreGeneratedAccount
	Profile      *model.Profile
	License      *model.License
}

type masterStore interface {
	GetActiveByUsername(ctx context.Context, username string) (model.MasterCredential, error)
	VerifyPassword(ctx context.Context, id uuid.UUID, password string) (bool, error)
}

type preGeneratedLookup interface {
	GetByUsername(ctx context.Context, username string) (model.PreGeneratedAccount, error)
}

type profileLookup interface {
	GetByUsername(ctx context.Context, username string) (model.Profile, error)
}

type licenseLookup interface {
	GetByProfileID(ctx context.Context, profileID uuid.UUID) (model.License, error)
}

// resolveStep reports entered=false when the credentials do not belong to its
// credential class. Once a step enters, its result is final.
type resolveStep func(ctx context.Context, c Credentials) (res Resolution, entered bool, err error)

// Resolver classifies credentials by trying its steps in order
type Resolver struct {
	masters  masterStore
	pregen   preGeneratedLookup
	profiles profileLookup
	licenses licenseLookup
	steps    []resolveStep
}

// NewResolver creates a resolver with the demo, master, pre-generated and regular steps
func NewResolver(masters masterStore, pregen preGeneratedLookup, profiles profileLookup, licenses licenseLookup) *Resolver {
	r := &Resolver{
		masters:  masters,
		pregen:   pregen,
		profiles: profiles,
		licenses: licenses,
	}
	r.steps = []resolveStep{r.demo, r.master, r.preGenerated, r.regular}
	return r
}

// Resolve returns the resolution of the first step that enters
func (r *Resolver) Resolve(ctx context.Context, c Credentials) (Resolution, error) {
	c.Username = strings.TrimSpace(c.Username)
	if c.Username == "" || c.Password == "" {
		return Resolution{}, newError(KindAccountNotFound, nil)
	}
	for _, step := range r.steps {
		res, entered, err := step(ctx, c)
		if entered || err != nil {
			return res, err
		}
	}
	return Resolution{}, newError(KindAccountNotFound, nil)
}

func (r *Resolver) demo(_ context.Context, c Credentials) (Resolution, bool, error) {
	if !strings.EqualFold(c.Username, DemoUsername) {
		return Resolution{}, false, nil
	}
	if !keysEqual(c.Password, DemoPassword) {
		return Resolution{}, true, newError(KindInvalidCredential, nil)
	}
	return Resolution{
		Source:      SourceDemo,
		Username:    DemoUsername,
		Role:        model.RoleClient,
		LicenseType: model.LicenseDemo,
		AccountType: model.AccountDemo,
	}, true, nil
}

func (r *Resolver) master(ctx context.Context, c Credentials) (Resolution, bool, error) {
	cred, err := r.masters.GetActiveByUsername(ctx, c.Username)
	if errors.Is(err, repo.ErrNotFound) {
		return Resolution{}, false, nil
	}
	if err != nil {
		return Resolution{}, true, internalError("lookup master credential", err)
	}
	ok, err := r.masters.VerifyPassword(ctx, cred.ID, c.Password)
	if err != nil {
		return Resolution{}, true, internalError("verify master credential", err)
	}
	if !ok {
		return Resolution{}, true, newError(KindInvalidCredential, nil)
	}
	return Resolution{
		Source:      SourceMaster,
		Username:    cred.Username,
		Role:        model.RoleMaster,
		LicenseType: model.LicenseMaster,
		DisplayName: cred.DisplayName,
	}, true, nil
}

// preGenerated only enters for unused accounts whose username is not yet
// provisioned; consumed ones are served by the regular step through the
// license created on first login.
func (r *Resolver) preGenerated(ctx context.Context, c Credentials) (Resolution, bool, error) {
	acc, err := r.pregen.GetByUsername(ctx, c.Username)
	if errors.Is(err, repo.ErrNotFound) {
		return Resolution{}, false, nil
	}
	if err != nil {
		return Resolution{}, true, internalError("lookup pre-generated account", err)
	}
	if acc.IsUsed {
		return Resolution{}, false, nil
	}
	provisioned, err := r.provisioned(ctx, acc.Username)
	if err != nil {
		return Resolution{}, true, err
	}
	if provisioned {
		// the username belongs to a licensed profile; its own key decides
		return Resolution{}, false, nil
	}
	if !keysEqual(c.Password, acc.LicenseKey) {
		return Resolution{}, true, newError(KindInvalidCredential, nil)
	}
	return Resolution{
		Source:       SourcePreGenerated,
		Username:     acc.Username,
		Role:         roleForAccountType(acc.AccountType),
		LicenseType:  LicenseTypeFor(acc.AccountType),
		AccountType:  acc.AccountType,
		PreGenerated: &acc,
	}, true, nil
}

func (r *Resolver) regular(ctx context.Context, c Credentials) (Resolution, bool, error) {
	profile, err := r.profiles.GetByUsername(ctx, c.Username)
	if errors.Is(err, repo.ErrNotFound) {
		return Resolution{}, true, newError(KindAccountNotFound, nil)
	}
	if err != nil {
		return Resolution{}, true, internalError("lookup profile", err)
	}

	lic, err := r.licenses.GetByProfileID(ctx, profile.ID)
	if errors.Is(err, repo.ErrNotFound) {
		if r.revoked(ctx, c) {
			return Resolution{}, true, newError(KindLicenseRevoked, nil)
		}
		return Resolution{}, true, newError(KindAccountNotFound, nil)
	}
	if err != nil {
		return Resolution{}, true, internalError("lookup license", err)
	}
	if !keysEqual(c.Password, lic.LicenseKey) {
		return Resolution{}, true, newError(KindAccountNotFound, nil)
	}

	accountType := ""
	if profile.AccountType != nil {
		accountType = *profile.AccountType
	}
	return Resolution{
		Source:      SourceRegular,
		Username:    profile.Username,
		Role:        inferRole(profile),
		LicenseType: lic.Type,
		AccountType: accountType,
		Profile:     &profile,
		License:     &lic,
	}, true, nil
}

// revoked reports whether the credentials belong to a consumed pre-generated
// account whose license has since been removed. Such accounts are never
// re-provisioned automatically.
// provisioned reports whether username already has a profile with a license
func (r *Resolver) provisioned(ctx context.Context, username string) (bool, error) {
	profile, err := r.profiles.GetByUsername(ctx, username)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, internalError("lookup profile", err)
	}
	_, err = r.licenses.GetByProfileID(ctx, profile.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, internalError("lookup license", err)
	}
	return true, nil
}

func (r *Resolver) revoked(ctx context.Context, c Credentials) bool {
	acc, err := r.pregen.GetByUsername(ctx, c.Username)
	if err != nil {
		return false
	}
	return acc.IsUsed && keysEqual(c.Password, acc.LicenseKey)
}

// inferRole derives the role of a regular account
func inferRole(p model.Profile) model.Role {
	name := strings.ToLower(p.Username)
	if strings.HasPrefix(name, "gerente") || strings.HasPrefix(name, "admin") {
		return model.RoleAdmin
	}
	if p.ProfessionalID != nil && strings.TrimSpace(*p.ProfessionalID) != "" {
		return model.RoleInstructor
	}
	if p.AccountType != nil {
		return roleForAccountType(*p.AccountType)
	}
	return model.RoleClient
}

func roleForAccountType(accountType string) model.Role {
	switch strings.ToLower(accountType) {
	case model.AccountInstructor:
		return model.RoleInstructor
	case model.AccountAdmin, model.AccountAdminDemo:
		return model.RoleAdmin
	default:
		return model.RoleClient
	}
}

// LicenseTypeFor maps a pre-generated account type to the type of its license
func LicenseTypeFor(accountType string) model.LicenseType {
	switch strings.ToLower(accountType) {
	case model.AccountDemo, model.AccountAdminDemo:
		return model.LicenseDemo
	case model.AccountTrial:
		return model.LicenseTrial
	default:
		return model.LicenseFull
	}
}
