package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/gymflow/server/internal/model"
)

// LicenseRepo defines the interface for license repository operations.
// Create and Reissue are the only writers of started_at/expires_at.
type LicenseRepo interface {
	GetByProfileID(ctx context.Context, profileID uuid.UUID) (model.License, error)
	Create(ctx context.Context, nl model.NewLicense) (model.License, error)
	MarkExpired(ctx context.Context, id uuid.UUID) (bool, error)
	SetStatus(ctx context.Context, profileID uuid.UUID, status model.LicenseStatus) error
	Reissue(ctx context.Context, nl model.NewLicense) (model.License, error)
	Delete(ctx context.Context, profileID uuid.UUID) error
}

type licenseRepo struct {
	db *sql.DB
}

// NewLicenseRepo creates a new LicenseRepo instance
func NewLicenseRepo(db *sql.DB) LicenseRepo {
	return &licenseRepo{db: db}
}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const licenseColumns = `id, profile_id, license_key, type, status, started_at, expires_at, created_at`

func scanLicense(row scanner) (model.License, error) {
	var l model.License
	var typ, status string
	err := row.Scan(
		&l.ID,
		&l.ProfileID,
		&l.LicenseKey,
		&typ,
		&status,
		&l.StartedAt,
		&l.ExpiresAt,
		&l.CreatedAt,
	)
	l.Type = model.LicenseType(typ)
	l.Status = model.LicenseStatus(status)
	return l, err
}

func getLicenseByProfile(ctx context.Context, q querier, profileID uuid.UUID) (model.License, error) {
	row := q.QueryRowContext(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE profile_id = $1`, profileID)
	l, err := scanLicense(row)
	if err != nil {
		return model.License{}, wrapErr("get license", err)
	}
	return l, nil
}

// insertLicense inserts nl unless the profile already holds a license; the
// stored row is returned either way, so an existing timer is never replaced.
func insertLicense(ctx context.Context, q querier, nl model.NewLicense) (model.License, error) {
	_, err := q.ExecContext(ctx, `
		INSERT INTO licenses (profile_id, license_key, type, status, started_at, expires_at)
		VALUES ($1, $2, $3, 'active', $4, $5)
		ON CONFLICT (profile_id) DO NOTHING
	`, nl.ProfileID, nl.LicenseKey, string(nl.Type), nl.StartedAt, nl.ExpiresAt)
	if err != nil {
		return model.License{}, wrapErr("insert license", err)
	}
	return getLicenseByProfile(ctx, q, nl.ProfileID)
}

// GetByProfileID retrieves the license of a profile
func (r *licenseRepo) GetByProfileID(ctx context.Context, profileID uuid.UUID) (model.License, error) {
	return getLicenseByProfile(ctx, r.db, profileID)
}

// Create inserts a new active license for a profile that has none
func (r *licenseRepo) Create(ctx context.Context, nl model.NewLicense) (model.License, error) {
	return insertLicense(ctx, r.db, nl)
}

// MarkExpired flips an active license to expired. Returns false when the row
// was not active anymore (already expired, blocked or missing).
func (r *licenseRepo) MarkExpired(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE licenses SET status = 'expired', updated_at = now()
		WHERE id = $1 AND status = 'active'
	`, id)
	if err != nil {
		return false, wrapErr("mark license expired", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

// SetStatus is the administrative status override (block, unblock, revive)
func (r *licenseRepo) SetStatus(ctx context.Context, profileID uuid.UUID, status model.LicenseStatus) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE licenses SET status = $2, updated_at = now() WHERE profile_id = $1
	`, profileID, string(status))
	if err != nil {
		return wrapErr("set license status", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("set license status: license %w", ErrNotFound)
	}
	return nil
}

// Reissue replaces a profile's license with a fresh active one. Administrative only.
func (r *licenseRepo) Reissue(ctx context.Context, nl model.NewLicense) (model.License, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO licenses (profile_id, license_key, type, status, started_at, expires_at)
		VALUES ($1, $2, $3, 'active', $4, $5)
		ON CONFLICT (profile_id) DO UPDATE
		SET license_key = EXCLUDED.license_key,
		    type = EXCLUDED.type,
		    status = 'active',
		    started_at = EXCLUDED.started_at,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = now()
		RETURNING `+licenseColumns,
		nl.ProfileID, nl.LicenseKey, string(nl.Type), nl.StartedAt, nl.ExpiresAt)
	l, err := scanLicense(row)
	if err != nil {
		return model.License{}, wrapErr("reissue license", err)
	}
	return l, nil
}

// Delete removes a profile's license. A pre-generated account consumed by the
// profile is not re-provisioned afterwards.
func (r *licenseRepo) Delete(ctx context.Context, profileID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM licenses WHERE profile_id = $1`, profileID)
	if err != nil {
		return wrapErr("delete license", err)
	}
	return nil
}
