package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/gymflow/server/internal/model"
)

// MasterRepo defines the interface for master credential operations. Password
// checks run inside Postgres (pgcrypto crypt), never in application code.
type MasterRepo interface {
	GetActiveByUsername(ctx context.Context, username string) (model.MasterCredential, error)
	VerifyPassword(ctx context.Context, id uuid.UUID, password string) (bool, error)
	Create(ctx context.Context, username, passwordHash, displayName string) (model.MasterCredential, error)
	SetActive(ctx context.Context, username string, active bool) error
}

type masterRepo struct {
	db *sql.DB
}

// NewMasterRepo creates a new MasterRepo instance
func NewMasterRepo(db *sql.DB) MasterRepo {
	return &masterRepo{db: db}
}

// GetActiveByUsername retrieves an active master credential
func (r *masterRepo) GetActiveByUsername(ctx context.Context, username string) (model.MasterCredential, error) {
	var m model.MasterCredential
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, display_name, active, created_at
		FROM master_credentials
		WHERE lower(username) = lower($1) AND active
	`, username).Scan(&m.ID, &m.Username, &m.DisplayName, &m.Active, &m.CreatedAt)
	if err != nil {
		return model.MasterCredential{}, wrapErr("get master credential", err)
	}
	return m, nil
}

// VerifyPassword compares password against the stored bcrypt hash server-side
func (r *masterRepo) VerifyPassword(ctx context.Context, id uuid.UUID, password string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT password_hash = crypt($2, password_hash)
		FROM master_credentials
		WHERE id = $1 AND active
	`, id, password).Scan(&ok)
	if err != nil {
		return false, wrapErr("verify master credential", err)
	}
	return ok, nil
}

// Create stores a new active master credential
func (r *masterRepo) Create(ctx context.Context, username, passwordHash, displayName string) (model.MasterCredential, error) {
	m := model.MasterCredential{Username: username, DisplayName: displayName, Active: true}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO master_credentials (username, password_hash, display_name)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, username, passwordHash, displayName).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return model.MasterCredential{}, wrapErr("create master credential", err)
	}
	return m, nil
}

// SetActive toggles a master credential
func (r *masterRepo) SetActive(ctx context.Context, username string, active bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE master_credentials SET active = $2 WHERE lower(username) = lower($1)
	`, username, active)
	if err != nil {
		return wrapErr("set master credential active", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("set master credential active: %w", ErrNotFound)
	}
	return nil
}
