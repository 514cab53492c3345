package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/gymflow/server/internal/model"
)

// IdentityRepo stores the users of the local identity provider
type IdentityRepo interface {
	GetByEmail(ctx context.Context, email string) (model.IdentityUser, error)
	Create(ctx context.Context, email, passwordHash string) (model.IdentityUser, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error
	RecordSignIn(ctx context.Context, id uuid.UUID) error
}

type identityRepo struct {
	db *sql.DB
}

// NewIdentityRepo creates a new IdentityRepo instance
func NewIdentityRepo(db *sql.DB) IdentityRepo {
	return &identityRepo{db: db}
}

// GetByEmail retrieves an identity user by email
func (r *identityRepo) GetByEmail(ctx context.Context, email string) (model.IdentityUser, error) {
	var u model.IdentityUser
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, last_sign_in_at
		FROM identity_users
		WHERE email = lower($1)
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.LastSignInAt)
	if err != nil {
		return model.IdentityUser{}, wrapErr("get identity user", err)
	}
	return u, nil
}

// Create inserts an identity user; ErrDuplicate when the email is taken
func (r *identityRepo) Create(ctx context.Context, email, passwordHash string) (model.IdentityUser, error) {
	u := model.IdentityUser{PasswordHash: passwordHash}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO identity_users (email, password_hash)
		VALUES (lower($1), $2)
		RETURNING id, email, created_at
	`, email, passwordHash).Scan(&u.ID, &u.Email, &u.CreatedAt)
	if err != nil {
		return model.IdentityUser{}, wrapErr("create identity user", err)
	}
	return u, nil
}

// UpdatePasswordHash replaces the stored password hash
func (r *identityRepo) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE identity_users SET password_hash = $2, updated_at = now() WHERE id = $1
	`, id, passwordHash)
	if err != nil {
		return wrapErr("update identity password", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("update identity password: %w", ErrNotFound)
	}
	return nil
}

// RecordSignIn stamps last_sign_in_at
func (r *identityRepo) RecordSignIn(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE identity_users SET last_sign_in_at = now() WHERE id = $1`, id)
	if err != nil {
		return wrapErr("record sign in", err)
	}
	return nil
}
