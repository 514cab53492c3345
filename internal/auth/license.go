package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gymflow/server/internal/model"
	"github.com/gymflow/server/internal/repo"
)

// DemoWindow is the fixed validity of demo licenses
const DemoWindow = 30 * time.Minute

// licenseStore is the login-side view of the license table. It has no method
// that writes started_at or expires_at of an existing row.
type licenseStore interface {
	GetByProfileID(ctx context.Context, profileID uuid.UUID) (model.License, error)
	Create(ctx context.Context, nl model.NewLicense) (model.License, error)
	MarkExpired(ctx context.Context, id uuid.UUID) (bool, error)
}

type preGeneratedConsumer interface {
	Consume(ctx context.Context, accountID uuid.UUID, nl model.NewLicense) (model.License, error)
}

// LicenseManager creates licenses on first login and enforces their state
type LicenseManager struct {
	licenses  licenseStore
	pregen    preGeneratedConsumer
	trialDays int
	now       func() time.Time
	onExpire  func()
}

// NewLicenseManager creates a license manager. trialDays applies to trial
// accounts issued without an explicit duration.
func NewLicenseManager(licenses licenseStore, pregen preGeneratedConsumer, trialDays int) *LicenseManager {
	return &LicenseManager{
		licenses:  licenses,
		pregen:    pregen,
		trialDays: trialDays,
		now:       time.Now,
		onExpire:  func() {},
	}
}

// Ensure returns the profile's license, creating it when the profile has
// none. Existing licenses are returned untouched.
func (m *LicenseManager) Ensure(ctx context.Context, profile model.Profile, res Resolution) (model.License, error) {
	if res.License != nil && res.License.ProfileID == profile.ID {
		return *res.License, nil
	}

	lic, err := m.licenses.GetByProfileID(ctx, profile.ID)
	if err == nil {
		// a pre-generated account only ever yields the license it created
		if res.Source == SourcePreGenerated && !keysEqual(lic.LicenseKey, res.PreGenerated.LicenseKey) {
			return model.License{}, newError(KindInvalidCredential, nil)
		}
		return lic, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return model.License{}, internalError("lookup license", err)
	}

	switch res.Source {
	case SourceDemo:
		return m.create(ctx, model.NewLicense{
			ProfileID:  profile.ID,
			LicenseKey: DemoPassword,
			Type:       model.LicenseDemo,
		}, m.expiry(model.AccountDemo, nil))
	case SourceMaster:
		key, err := GenerateLicenseKey(4)
		if err != nil {
			return model.License{}, internalError("generate license key", err)
		}
		return m.create(ctx, model.NewLicense{
			ProfileID:  profile.ID,
			LicenseKey: key,
			Type:       model.LicenseMaster,
		}, nil)
	case SourcePreGenerated:
		return m.consume(ctx, profile, res)
	default:
		// a regular account resolved with a license that vanished since
		return model.License{}, newError(KindLicenseRevoked, nil)
	}
}

func (m *LicenseManager) create(ctx context.Context, nl model.NewLicense, expiresIn *time.Duration) (model.License, error) {
	nl.StartedAt = m.now()
	if expiresIn != nil {
		t := nl.StartedAt.Add(*expiresIn)
		nl.ExpiresAt = &t
	}
	lic, err := m.licenses.Create(ctx, nl)
	if err != nil {
		return model.License{}, internalError("create license", err)
	}
	return lic, nil
}

func (m *LicenseManager) consume(ctx context.Context, profile model.Profile, res Resolution) (model.License, error) {
	acc := res.PreGenerated
	nl := model.NewLicense{
		ProfileID:  profile.ID,
		LicenseKey: acc.LicenseKey,
		Type:       res.LicenseType,
		StartedAt:  m.now(),
	}
	if d := m.expiry(acc.AccountType, acc.Duration); d != nil {
		t := nl.StartedAt.Add(*d)
		nl.ExpiresAt = &t
	}

	lic, err := m.pregen.Consume(ctx, acc.ID, nl)
	if errors.Is(err, repo.ErrAlreadyConsumed) {
		// a concurrent login consumed it; its license is ours as well
		lic, err = m.licenses.GetByProfileID(ctx, profile.ID)
		if errors.Is(err, repo.ErrNotFound) {
			return model.License{}, newError(KindLicenseRevoked, nil)
		}
		if err == nil && !keysEqual(lic.LicenseKey, acc.LicenseKey) {
			return model.License{}, newError(KindInvalidCredential, nil)
		}
	}
	if err != nil {
		return model.License{}, internalError("consume pre-generated account", err)
	}
	return lic, nil
}

// expiry returns the validity of a new license, nil meaning no expiry
func (m *LicenseManager) expiry(accountType string, duration *int) *time.Duration {
	d, bounded := Window(accountType, duration, m.trialDays)
	if !bounded {
		return nil
	}
	return &d
}

// Window computes the validity of a fresh license. Demo accounts always get
// DemoWindow. A negative duration counts minutes, any other explicit duration
// whole days, so an explicit zero expires at once. An absent duration means
// trialDays for trial accounts and no expiry otherwise.
func Window(accountType string, duration *int, trialDays int) (time.Duration, bool) {
	switch strings.ToLower(accountType) {
	case model.AccountDemo, model.AccountAdminDemo:
		return DemoWindow, true
	}
	if duration == nil {
		if strings.EqualFold(accountType, model.AccountTrial) {
			return time.Duration(trialDays) * 24 * time.Hour, true
		}
		return 0, false
	}
	if d := *duration; d < 0 {
		return time.Duration(-d) * time.Minute, true
	}
	return time.Duration(*duration) * 24 * time.Hour, true
}

// Validate fails unless the license is active and unexpired. An active
// license past its expiry is marked expired here, once.
func (m *LicenseManager) Validate(ctx context.Context, lic model.License) (model.License, error) {
	switch lic.Status {
	case model.LicenseBlocked:
		return lic, licenseError(KindLicenseBlocked, lic)
	case model.LicenseExpired:
		return lic, licenseError(KindLicenseExpired, lic)
	case model.LicenseActive:
	default:
		return lic, internalError("validate license", fmt.Errorf("unknown status %q", lic.Status))
	}

	if lic.ExpiresAt == nil || m.now().Before(*lic.ExpiresAt) {
		return lic, nil
	}

	changed, err := m.licenses.MarkExpired(ctx, lic.ID)
	if err != nil {
		return lic, internalError("mark license expired", err)
	}
	if changed {
		m.onExpire()
	}
	lic.Status = model.LicenseExpired
	return lic, licenseError(KindLicenseExpired, lic)
}

// Current reads and validates the license of an already signed-in profile
func (m *LicenseManager) Current(ctx context.Context, profileID uuid.UUID) (model.License, error) {
	lic, err := m.licenses.GetByProfileID(ctx, profileID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.License{}, newError(KindLicenseRevoked, nil)
	}
	if err != nil {
		return model.License{}, internalError("lookup license", err)
	}
	return m.Validate(ctx, lic)
}

// TimeRemaining returns how long lic stays valid. The second value is false
// for licenses without expiry.
func (m *LicenseManager) TimeRemaining(lic model.License) (time.Duration, bool) {
	return timeRemaining(lic, m.now())
}

func timeRemaining(lic model.License, now time.Time) (time.Duration, bool) {
	if lic.Status != model.LicenseActive {
		return 0, true
	}
	if lic.ExpiresAt == nil {
		return 0, false
	}
	if d := lic.ExpiresAt.Sub(now); d > 0 {
		return d, true
	}
	return 0, true
}
