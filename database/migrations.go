package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies all pending migrations. An empty path uses the
// migrations compiled into the binary.
func RunMigrations(db *sql.DB, dialect, path string) error {
	m, err := newMigrate(db, dialect, path)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// RollbackMigration reverts the most recent migration.
func RollbackMigration(db *sql.DB, dialect, path string) error {
	m, err := newMigrate(db, dialect, path)
	if err != nil {
		return err
	}

	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	return nil
}

// MigrationVersion returns the applied schema version and whether it is dirty.
func MigrationVersion(db *sql.DB, dialect, path string) (uint, bool, error) {
	m, err := newMigrate(db, dialect, path)
	if err != nil {
		return 0, false, err
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// newMigrate wires a migrate instance to db without taking ownership of it.
func newMigrate(db *sql.DB, dialect, path string) (*migrate.Migrate, error) {
	driver, err := migrationDriver(db, dialect)
	if err != nil {
		return nil, err
	}

	if path != "" {
		m, err := migrate.NewWithDatabaseInstance("file://"+path, dialect, driver)
		if err != nil {
			return nil, fmt.Errorf("failed to load migrations from %s: %w", path, err)
		}
		return m, nil
	}

	var src source.Driver
	src, err = iofs.New(embeddedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, dialect, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

func migrationDriver(db *sql.DB, dialect string) (migratedb.Driver, error) {
	switch (Config{Type: dialect}).Dialect() {
	case TypeSQLite:
		return migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case TypeMySQL:
		return migratemysql.WithInstance(db, &migratemysql.Config{})
	case TypePostgres:
		return migratepostgres.WithInstance(db, &migratepostgres.Config{})
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dialect)
	}
}
