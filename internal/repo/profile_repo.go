package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/gymflow/server/internal/model"
)

// ProfileRepo defines the interface for profile repository operations
type ProfileRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.Profile, error)
	GetByUsername(ctx context.Context, username string) (model.Profile, error)
	GetByIdentityUserID(ctx context.Context, identityUserID uuid.UUID) (model.Profile, error)
	GetOrCreate(ctx context.Context, p model.Profile) (model.Profile, error)
	LinkIdentity(ctx context.Context, profileID, identityUserID uuid.UUID) error
}

type profileRepo struct {
	db *sql.DB
}

// NewProfileRepo creates a new ProfileRepo instance
func NewProfileRepo(db *sql.DB) ProfileRepo {
	return &profileRepo{db: db}
}

const profileColumns = `id, identity_user_id, username, full_name, email, professional_id, account_type, created_at, updated_at`

func scanProfile(row scanner) (model.Profile, error) {
	var p model.Profile
	err := row.Scan(
		&p.ID,
		&p.IdentityUserID,
		&p.Username,
		&p.FullName,
		&p.Email,
		&p.ProfessionalID,
		&p.AccountType,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

// GetByID retrieves a profile by ID
func (r *profileRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Profile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	p, err := scanProfile(row)
	if err != nil {
		return model.Profile{}, wrapErr("get profile by id", err)
	}
	return p, nil
}

// GetByUsername retrieves a profile by username, case-insensitively
func (r *profileRepo) GetByUsername(ctx context.Context, username string) (model.Profile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE lower(username) = lower($1)`, username)
	p, err := scanProfile(row)
	if err != nil {
		return model.Profile{}, wrapErr("get profile by username", err)
	}
	return p, nil
}

// GetByIdentityUserID retrieves the profile linked to an identity-provider user
func (r *profileRepo) GetByIdentityUserID(ctx context.Context, identityUserID uuid.UUID) (model.Profile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE identity_user_id = $1`, identityUserID)
	p, err := scanProfile(row)
	if err != nil {
		return model.Profile{}, wrapErr("get profile by identity user", err)
	}
	return p, nil
}

// GetOrCreate inserts the profile unless one with the same username exists,
// then returns the stored row.
func (r *profileRepo) GetOrCreate(ctx context.Context, p model.Profile) (model.Profile, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (identity_user_id, username, full_name, email, professional_id, account_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ((lower(username))) DO NOTHING
	`, p.IdentityUserID, p.Username, p.FullName, p.Email, p.ProfessionalID, p.AccountType)
	if err != nil {
		return model.Profile{}, wrapErr("insert profile", err)
	}
	return r.GetByUsername(ctx, p.Username)
}

// LinkIdentity points the profile at an identity-provider user, overwriting any previous link
func (r *profileRepo) LinkIdentity(ctx context.Context, profileID, identityUserID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE profiles SET identity_user_id = $2, updated_at = now() WHERE id = $1
	`, profileID, identityUserID)
	if err != nil {
		return wrapErr("link identity", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("link identity: profile %w", ErrNotFound)
	}
	return nil
}
