package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/gymflow/server/internal/model"
)

// SessionRepo defines the interface for login session repository operations
type SessionRepo interface {
	Replace(ctx context.Context, s model.Session) (model.Session, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (model.Session, error)
	Touch(ctx context.Context, id uuid.UUID) error
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	CountForProfile(ctx context.Context, profileID uuid.UUID) (int, error)
}

type sessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a new SessionRepo instance
func NewSessionRepo(db *sql.DB) SessionRepo {
	return &sessionRepo{db: db}
}

const sessionColumns = `id, profile_id, token_hash, device_info, role, panel, is_valid, created_at, last_seen_at`

func scanSession(row scanner) (model.Session, error) {
	var s model.Session
	var role, panel string
	err := row.Scan(
		&s.ID,
		&s.ProfileID,
		&s.TokenHash,
		&s.DeviceInfo,
		&role,
		&panel,
		&s.IsValid,
		&s.CreatedAt,
		&s.LastSeenAt,
	)
	s.Role = model.Role(role)
	s.Panel = model.Panel(panel)
	return s, err
}

// Replace deletes every session of the profile and inserts s as its only valid
// one. An advisory lock on the profile serializes concurrent logins, so exactly
// one row survives.
func (r *sessionRepo) Replace(ctx context.Context, s model.Session) (model.Session, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Session{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(2, hashtext($1))`, s.ProfileID.String())
	if err != nil {
		return model.Session{}, fmt.Errorf("advisory lock: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM user_sessions WHERE profile_id = $1`, s.ProfileID)
	if err != nil {
		return model.Session{}, fmt.Errorf("delete existing sessions: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO user_sessions (profile_id, token_hash, device_info, role, panel, is_valid)
		VALUES ($1, $2, $3, $4, $5, true)
		RETURNING `+sessionColumns,
		s.ProfileID, s.TokenHash, s.DeviceInfo, string(s.Role), string(s.Panel))
	stored, err := scanSession(row)
	if err != nil {
		return model.Session{}, wrapErr("insert session", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Session{}, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

// GetByID returns the session if it still exists and is valid
func (r *sessionRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM user_sessions WHERE id = $1 AND is_valid`, id)
	s, err := scanSession(row)
	if err != nil {
		return model.Session{}, wrapErr("get session", err)
	}
	return s, nil
}

// GetByTokenHash returns the valid session holding the token
func (r *sessionRepo) GetByTokenHash(ctx context.Context, tokenHash string) (model.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM user_sessions WHERE token_hash = $1 AND is_valid`, tokenHash)
	s, err := scanSession(row)
	if err != nil {
		return model.Session{}, wrapErr("get session by token", err)
	}
	return s, nil
}

// Touch records activity on the session
func (r *sessionRepo) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE user_sessions SET last_seen_at = now() WHERE id = $1`, id)
	if err != nil {
		return wrapErr("touch session", err)
	}
	return nil
}

// DeleteByTokenHash ends the session holding the token
func (r *sessionRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return wrapErr("delete session", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("delete session: %w", ErrNotFound)
	}
	return nil
}

// CountForProfile returns the number of session rows of a profile
func (r *sessionRepo) CountForProfile(ctx context.Context, profileID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_sessions WHERE profile_id = $1`, profileID).Scan(&count)
	if err != nil {
		return 0, wrapErr("count sessions", err)
	}
	return count, nil
}
