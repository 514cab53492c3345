package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/gymflow/server/internal/db"
	"github.com/gymflow/server/internal/model"
)

// PreGeneratedRepo defines the interface for pre-generated account operations
type PreGeneratedRepo interface {
	GetByUsername(ctx context.Context, username string) (model.PreGeneratedAccount, error)
	Consume(ctx context.Context, accountID uuid.UUID, nl model.NewLicense) (model.License, error)
	CreateBatch(ctx context.Context, accounts []model.PreGeneratedAccount) (int, error)
}

type preGeneratedRepo struct {
	db *sql.DB
}

// NewPreGeneratedRepo creates a new PreGeneratedRepo instance
func NewPreGeneratedRepo(db *sql.DB) PreGeneratedRepo {
	return &preGeneratedRepo{db: db}
}

// GetByUsername retrieves a pre-generated account by username, case-insensitively
func (r *preGeneratedRepo) GetByUsername(ctx context.Context, username string) (model.PreGeneratedAccount, error) {
	var a model.PreGeneratedAccount
	var duration sql.NullInt32
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, license_key, account_type, duration, is_used, used_by, used_at, created_at
		FROM pre_generated_accounts
		WHERE lower(username) = lower($1)
	`, username).Scan(
		&a.ID,
		&a.Username,
		&a.LicenseKey,
		&a.AccountType,
		&duration,
		&a.IsUsed,
		&a.UsedBy,
		&a.UsedAt,
		&a.CreatedAt,
	)
	if err != nil {
		return model.PreGeneratedAccount{}, wrapErr("get pre-generated account", err)
	}
	if duration.Valid {
		d := int(duration.Int32)
		a.Duration = &d
	}
	return a, nil
}

// Consume marks the account used by nl.ProfileID and creates its license in
// one transaction. Returns ErrAlreadyConsumed when another login got there first.
func (r *preGeneratedRepo) Consume(ctx context.Context, accountID uuid.UUID, nl model.NewLicense) (model.License, error) {
	var lic model.License
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE pre_generated_accounts
			SET is_used = true, used_by = $2, used_at = now()
			WHERE id = $1 AND is_used = false
		`, accountID, nl.ProfileID)
		if err != nil {
			return wrapErr("mark pre-generated account used", err)
		}
		n, _ := result.RowsAffected()
		if n == 0 {
			return ErrAlreadyConsumed
		}

		lic, err = insertLicense(ctx, tx, nl)
		return err
	})
	if err != nil {
		return model.License{}, err
	}
	return lic, nil
}

// CreateBatch inserts bulk-issued accounts in a single transaction
func (r *preGeneratedRepo) CreateBatch(ctx context.Context, accounts []model.PreGeneratedAccount) (int, error) {
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO pre_generated_accounts (username, license_key, account_type, duration)
			VALUES ($1, $2, $3, $4)
		`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, a := range accounts {
			if _, err := stmt.ExecContext(ctx, a.Username, a.LicenseKey, a.AccountType, a.Duration); err != nil {
				return wrapErr(fmt.Sprintf("insert pre-generated account %q", a.Username), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(accounts), nil
}
