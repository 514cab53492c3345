package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/gymflow/server/internal/admin"
	"github.com/gymflow/server/internal/config"
	"github.com/gymflow/server/internal/db"
	"github.com/gymflow/server/internal/logger"
	"github.com/gymflow/server/internal/repo"
)

const usage = `usage: gymadmin <command> [flags]

commands:
  migrate                                   apply database migrations
  pregen  -count N -prefix P -type T [-duration D] [-start S]
                                            create pre-generated accounts, print CSV
  master  -username U -password P [-name N] create a master credential
  master-disable -username U                disable a master credential
  master-enable  -username U                enable a master credential
  block   -username U                       block a license
  unblock -username U                       unblock a license
  revive  -username U [-duration D]         reissue a license with a fresh window
  revoke  -username U                       delete a license
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	_ = godotenv.Load(".env")
	_ = godotenv.Load("server/.env")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.DevMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	database, err := db.Open(ctx, cfg.DatabaseURL, db.DefaultPool, log)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer database.Close()

	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "migrate" {
		if err := db.Migrate(database); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
		log.Info("migrations applied")
		return
	}

	a := admin.New(
		repo.NewProfileRepo(database),
		repo.NewLicenseRepo(database),
		repo.NewPreGeneratedRepo(database),
		repo.NewMasterRepo(database),
		cfg.BcryptCost,
		cfg.TrialDefaultDays,
	)
	if err := run(ctx, a, cmd, args); err != nil {
		log.Fatal("command failed", zap.String("command", cmd), zap.Error(err))
	}
}

func run(ctx context.Context, a *admin.Admin, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	username := fs.String("username", "", "account username")

	switch cmd {
	case "pregen":
		count := fs.Int("count", 0, "number of accounts")
		prefix := fs.String("prefix", "", "username prefix")
		start := fs.Int("start", 1, "first sequence number")
		accountType := fs.String("type", "full", "account type")
		duration := fs.String("duration", "", "negative minutes or positive days; empty for the default")
		_ = fs.Parse(args)

		d, err := parseDuration(*duration)
		if err != nil {
			return err
		}
		accounts, err := a.GenerateBatch(ctx, admin.BatchRequest{
			Count: *count, Prefix: *prefix, Start: *start, AccountType: *accountType, Duration: d,
		})
		if err != nil {
			return err
		}
		w := csv.NewWriter(os.Stdout)
		_ = w.Write([]string{"username", "license_key", "account_type"})
		for _, acc := range accounts {
			_ = w.Write([]string{acc.Username, acc.LicenseKey, acc.AccountType})
		}
		w.Flush()
		return w.Error()

	case "master":
		password := fs.String("password", "", "master password")
		name := fs.String("name", "", "display name")
		_ = fs.Parse(args)
		m, err := a.CreateMaster(ctx, *username, *password, *name)
		if err != nil {
			return err
		}
		fmt.Printf("master credential %s created (%s)\n", m.Username, m.ID)
		return nil

	case "master-disable", "master-enable":
		_ = fs.Parse(args)
		return a.SetMasterActive(ctx, *username, cmd == "master-enable")

	case "block":
		_ = fs.Parse(args)
		return a.Block(ctx, *username)

	case "unblock":
		_ = fs.Parse(args)
		return a.Unblock(ctx, *username)

	case "revive":
		duration := fs.String("duration", "", "negative minutes or positive days; empty for the default")
		_ = fs.Parse(args)
		d, err := parseDuration(*duration)
		if err != nil {
			return err
		}
		lic, err := a.Revive(ctx, *username, d)
		if err != nil {
			return err
		}
		if lic.ExpiresAt != nil {
			fmt.Printf("license of %s active until %s\n", *username, lic.ExpiresAt.Local().Format(time.RFC3339))
		} else {
			fmt.Printf("license of %s active without expiry\n", *username)
		}
		return nil

	case "revoke":
		_ = fs.Parse(args)
		return a.Revoke(ctx, *username)

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func parseDuration(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var d int
	if _, err := fmt.Sscan(s, &d); err != nil {
		return nil, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return &d, nil
}
