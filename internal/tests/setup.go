package tests

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/brianvoe/gofakeit/v6"
	"go.uber.org/zap"

	"github.com/gymflow/server/internal/db"
	"github.com/gymflow/server/internal/model"
	"github.com/gymflow/server/internal/repo"
)

// OpenDatabase connects to databaseURL and applies the embedded migrations.
func OpenDatabase(ctx context.Context, databaseURL string) (*sql.DB, error) {
	database, err := db.Open(ctx, databaseURL, db.DefaultPool, zap.NewNop())
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// ResetDatabase empties every application table for a clean test state.
func ResetDatabase(database *sql.DB) error {
	if err := db.Truncate(database); err != nil {
		return fmt.Errorf("reset database: %w", err)
	}
	return nil
}

// SeedPreGenerated inserts one unused pre-generated account with a random
// username and returns it.
func SeedPreGenerated(ctx context.Context, database *sql.DB, accountType string, duration *int) (model.PreGeneratedAccount, error) {
	acc := model.PreGeneratedAccount{
		Username:    fmt.Sprintf("%s_%03d", gofakeit.LetterN(6), gofakeit.Number(1, 999)),
		LicenseKey:  gofakeit.Regex(`[A-HJ-NP-Z2-9]{4}-[A-HJ-NP-Z2-9]{4}`),
		AccountType: accountType,
		Duration:    duration,
	}
	if _, err := repo.NewPreGeneratedRepo(database).CreateBatch(ctx, []model.PreGeneratedAccount{acc}); err != nil {
		return model.PreGeneratedAccount{}, err
	}
	return acc, nil
}
