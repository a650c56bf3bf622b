package testutil

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite database for testing. The pool is held
// to one connection so every query sees the same in-memory database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return db
}

// AutoMigrate runs GORM auto-migrations for the given models.
func AutoMigrate(t *testing.T, db *gorm.DB, models ...interface{}) {
	t.Helper()

	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("failed to auto-migrate: %v", err)
	}
}
