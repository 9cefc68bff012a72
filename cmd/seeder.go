package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	coreUser "github.com/frahmantamala/leave-portal/internal/core/user"
	"github.com/frahmantamala/leave-portal/internal/quota"
	"github.com/frahmantamala/leave-portal/internal/store"
	"github.com/frahmantamala/leave-portal/internal/store/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with the college admin and principal accounts and the admin access code.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		if clearData {
			if err := clearTables(ctx, db); err != nil {
				log.Fatalf("failed to clear data: %v", err)
			}
			fmt.Println("Cleared users and leave requests")
		}

		gdb, err := openGorm(db, cfg.Database.Driver)
		if err != nil {
			log.Fatalf("failed to open gorm: %v", err)
		}
		repo := postgres.NewRepository(gdb)

		defaults, err := quota.FromMap(cfg.Portal.DefaultQuotas, quota.Default())
		if err != nil {
			log.Fatalf("invalid default quotas: %v", err)
		}

		password := "password"
		hash, err := bcrypt.GenerateFromPassword([]byte(password), cfg.Security.BCryptCost)
		if err != nil {
			log.Fatalf("failed to hash password: %v", err)
		}

		accounts := []coreUser.User{
			{
				Email:      "admin@scoe.edu",
				Name:       "College Admin",
				Role:       coreUser.RoleAdmin1,
				Department: coreUser.DeptCOMPS,
			},
			{
				Email:      "principal@scoe.edu",
				Name:       "Dr. Manjusha Deshmukh",
				Role:       coreUser.RolePrincipal,
				Department: coreUser.DeptCOMPS,
			},
		}

		for _, a := range accounts {
			_, err := repo.GetUserByEmail(ctx, a.Email)
			if err == nil {
				fmt.Println("user already exists:", a.Email)
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				log.Fatalf("failed to look up %s: %v", a.Email, err)
			}

			account := a
			account.PasswordHash = string(hash)
			account.Quotas = defaults.Clone()
			if _, err := repo.UpsertUser(ctx, &account); err != nil {
				log.Fatalf("failed to insert %s: %v", a.Email, err)
			}
			fmt.Println("Seeded user:", a.Email)
		}

		if _, err := repo.GetAccessCode(ctx); errors.Is(err, store.ErrNotFound) || clearData {
			if err := repo.SetAccessCode(ctx, cfg.Portal.DefaultAccessCode); err != nil {
				log.Fatalf("failed to store access code: %v", err)
			}
			fmt.Println("Stored the admin access code")
		}

		fmt.Println("Seeding finished; seeded accounts use the password:", password)
	},
}

func clearTables(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"leave_requests", "users", "settings"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}
