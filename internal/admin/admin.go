// Package admin holds the operator actions behind cmd/gymadmin: issuing
// pre-generated accounts and master credentials, and the explicit license
// overrides (block, unblock, revive, revoke).
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gymflow/server/internal/auth"
	"github.com/gymflow/server/internal/model"
	"github.com/gymflow/server/internal/repo"
)

type profileLookup interface {
	GetByUsername(ctx context.Context, username string) (model.Profile, error)
}

type licenseAdmin interface {
	GetByProfileID(ctx context.Context, profileID uuid.UUID) (model.License, error)
	SetStatus(ctx context.Context, profileID uuid.UUID, status model.LicenseStatus) error
	Reissue(ctx context.Context, nl model.NewLicense) (model.License, error)
	Delete(ctx context.Context, profileID uuid.UUID) error
}

type batchCreator interface {
	CreateBatch(ctx context.Context, accounts []model.PreGeneratedAccount) (int, error)
}

type masterAdmin interface {
	Create(ctx context.Context, username, passwordHash, displayName string) (model.MasterCredential, error)
	SetActive(ctx context.Context, username string, active bool) error
}

// Admin runs operator actions against the repositories
type Admin struct {
	profiles   profileLookup
	licenses   licenseAdmin
	pregen     batchCreator
	masters    masterAdmin
	bcryptCost int
	trialDays  int
	now        func() time.Time
}

// New creates an Admin
func New(profiles profileLookup, licenses licenseAdmin, pregen batchCreator, masters masterAdmin, bcryptCost, trialDays int) *Admin {
	return &Admin{
		profiles:   profiles,
		licenses:   licenses,
		pregen:     pregen,
		masters:    masters,
		bcryptCost: bcryptCost,
		trialDays:  trialDays,
		now:        time.Now,
	}
}

// BatchRequest describes a batch of pre-generated accounts. Usernames are
// Prefix followed by a zero-padded sequence number starting at Start.
type BatchRequest struct {
	Count       int
	Prefix      string
	Start       int
	AccountType string
	// Duration follows the license window rules: negative minutes, positive days
	Duration *int
}

var accountTypes = map[string]bool{
	model.AccountDemo:       true,
	model.AccountAdminDemo:  true,
	model.AccountTrial:      true,
	model.AccountFull:       true,
	model.AccountClient:     true,
	model.AccountInstructor: true,
	model.AccountAdmin:      true,
}

// GenerateBatch creates the accounts of req with random license keys
func (a *Admin) GenerateBatch(ctx context.Context, req BatchRequest) ([]model.PreGeneratedAccount, error) {
	if req.Count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", req.Count)
	}
	prefix := strings.TrimSpace(req.Prefix)
	if prefix == "" {
		return nil, errors.New("prefix is required")
	}
	accountType := strings.ToLower(strings.TrimSpace(req.AccountType))
	if !accountTypes[accountType] {
		return nil, fmt.Errorf("unknown account type %q", req.AccountType)
	}
	start := req.Start
	if start <= 0 {
		start = 1
	}

	width := len(fmt.Sprint(start + req.Count - 1))
	if width < 3 {
		width = 3
	}

	accounts := make([]model.PreGeneratedAccount, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		username := fmt.Sprintf("%s_%0*d", prefix, width, start+i)
		_, err := a.profiles.GetByUsername(ctx, username)
		switch {
		case err == nil:
			return nil, fmt.Errorf("username %q already belongs to a profile", username)
		case !errors.Is(err, repo.ErrNotFound):
			return nil, err
		}

		key, err := auth.GenerateLicenseKey(4)
		if err != nil {
			return nil, fmt.Errorf("generate license key: %w", err)
		}
		accounts = append(accounts, model.PreGeneratedAccount{
			Username:    username,
			LicenseKey:  key,
			AccountType: accountType,
			Duration:    req.Duration,
		})
	}

	if _, err := a.pregen.CreateBatch(ctx, accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// CreateMaster stores a master credential with a bcrypt hash of password
func (a *Admin) CreateMaster(ctx context.Context, username, password, displayName string) (model.MasterCredential, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return model.MasterCredential{}, errors.New("username and password are required")
	}
	if displayName == "" {
		displayName = username
	}
	hash, err := auth.HashPassword(password, a.bcryptCost)
	if err != nil {
		return model.MasterCredential{}, err
	}
	return a.masters.Create(ctx, username, hash, displayName)
}

// SetMasterActive enables or disables a master credential
func (a *Admin) SetMasterActive(ctx context.Context, username string, active bool) error {
	return a.masters.SetActive(ctx, strings.TrimSpace(username), active)
}

// Block blocks the license of username
func (a *Admin) Block(ctx context.Context, username string) error {
	return a.setStatus(ctx, username, model.LicenseBlocked)
}

// Unblock returns the license of username to active without touching its timers.
// A license past its expiry is marked expired again on the next login.
func (a *Admin) Unblock(ctx context.Context, username string) error {
	return a.setStatus(ctx, username, model.LicenseActive)
}

func (a *Admin) setStatus(ctx context.Context, username string, status model.LicenseStatus) error {
	p, err := a.profile(ctx, username)
	if err != nil {
		return err
	}
	return a.licenses.SetStatus(ctx, p.ID, status)
}

// Revive reissues the license of username as active with a fresh window.
// The key and type of an existing license are kept.
func (a *Admin) Revive(ctx context.Context, username string, duration *int) (model.License, error) {
	p, err := a.profile(ctx, username)
	if err != nil {
		return model.License{}, err
	}

	accountType := model.AccountFull
	if p.AccountType != nil {
		accountType = *p.AccountType
	}
	nl := model.NewLicense{ProfileID: p.ID, Type: auth.LicenseTypeFor(accountType), StartedAt: a.now()}

	current, err := a.licenses.GetByProfileID(ctx, p.ID)
	switch {
	case err == nil:
		nl.LicenseKey = current.LicenseKey
		nl.Type = current.Type
	case errors.Is(err, repo.ErrNotFound):
		if nl.LicenseKey, err = auth.GenerateLicenseKey(4); err != nil {
			return model.License{}, fmt.Errorf("generate license key: %w", err)
		}
	default:
		return model.License{}, err
	}

	if d, bounded := auth.Window(accountType, duration, a.trialDays); bounded {
		t := nl.StartedAt.Add(d)
		nl.ExpiresAt = &t
	}
	return a.licenses.Reissue(ctx, nl)
}

// Revoke deletes the license of username
func (a *Admin) Revoke(ctx context.Context, username string) error {
	p, err := a.profile(ctx, username)
	if err != nil {
		return err
	}
	return a.licenses.Delete(ctx, p.ID)
}

func (a *Admin) profile(ctx context.Context, username string) (model.Profile, error) {
	p, err := a.profiles.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repo.ErrNotFound) {
		return model.Profile{}, fmt.Errorf("no profile for %q: %w", username, err)
	}
	return p, err
}
