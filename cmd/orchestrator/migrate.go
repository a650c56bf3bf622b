package main

import (
	"database/sql"
	"fmt"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/database"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var migrationsPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run history database migration commands",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSQLDB(func(db *sql.DB, dialect string) error {
				if err := database.RunMigrations(db, dialect, migrationsPath); err != nil {
					return fmt.Errorf("failed to run migrations: %w", err)
				}
				printMigrationVersion(db, dialect, migrationsPath)
				printMessage("Migrations applied successfully")
				return nil
			})
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSQLDB(func(db *sql.DB, dialect string) error {
				if err := database.RollbackMigration(db, dialect, migrationsPath); err != nil {
					return fmt.Errorf("failed to rollback migration: %w", err)
				}
				printMessage("Migration rolled back successfully")
				return nil
			})
		},
	}

	cmd.AddCommand(upCmd)
	cmd.AddCommand(downCmd)
	cmd.PersistentFlags().StringVarP(&migrationsPath, "path", "p", "", "migrations directory path (default: embedded migrations)")
	return cmd
}

// withSQLDB connects to the configured database without migrating it.
func withSQLDB(fn func(db *sql.DB, dialect string) error) error {
	cfg, err := LoadConfig(flagConfig)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dbCfg := databaseConfig(cfg.Database)
	db, err := database.Connect(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	defer sqlDB.Close()

	return fn(sqlDB, dbCfg.Dialect())
}

func printMigrationVersion(db *sql.DB, dialect, path string) {
	version, dirty, err := database.MigrationVersion(db, dialect, path)
	if err != nil {
		return
	}
	msg := fmt.Sprintf("Schema version: %d", version)
	if dirty {
		msg += " (dirty)"
	}
	printMessage(msg)
}
