package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/frahmantamala/leave-portal/db"
	"github.com/frahmantamala/leave-portal/internal/store/postgres"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

var (
	migrateCmd = &cobra.Command{
		RunE:  runMigration,
		Use:   "migrate",
		Short: "to run the embedded db migrations",
	}
	migrateRollback bool
)

func init() {
	migrateCmd.Flags().BoolVarP(&migrateRollback, "rollback", "r", false, "to rollback the latest version of sql migration")
}

func runMigration(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	cfg, err := loadConfig(".")
	if err != nil {
		log.Fatal(err)
	}

	conn, err := initDB(cfg.Database)
	if err != nil {
		log.Fatalf("migrate: failed to open DB: %v\n", err)
	}
	defer conn.Close()

	// the SQL files are written for postgres; sqlite databases are created
	// from the GORM models instead
	if cfg.Database.Driver == "sqlite" {
		if migrateRollback {
			return errors.New("rollback is only supported on postgres")
		}
		gdb, err := openGorm(conn, cfg.Database.Driver)
		if err != nil {
			return fmt.Errorf("open gorm: %w", err)
		}
		if err := gdb.WithContext(ctx).AutoMigrate(postgres.Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		log.Println("sqlite schema is up to date")
		return nil
	}

	goose.SetBaseFS(db.Migrations)
	goose.SetTableName("schema_migrations")
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}

	command := "up"
	if migrateRollback {
		command = "down"
	}
	if err := goose.RunContext(ctx, command, conn.DB, db.MigrationsDir); err != nil {
		log.Fatalf("goose %s: %v", command, err)
	}

	return nil
}
