// Package database opens the run history database and manages its schema.
package database

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Supported database types.
const (
	TypeSQLite   = "sqlite"
	TypeMySQL    = "mysql"
	TypePostgres = "postgres"
)

// Config holds database connection configuration.
type Config struct {
	Type         string
	Path         string // sqlite file
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
}

// Dialect returns the normalized database type. Empty means sqlite.
func (c Config) Dialect() string {
	t := strings.ToLower(strings.TrimSpace(c.Type))
	if t == "" {
		return TypeSQLite
	}
	return t
}

// DSN builds the driver connection string for the configured type.
func (c Config) DSN() (string, error) {
	switch c.Dialect() {
	case TypeSQLite:
		if c.Path == "" {
			return "", fmt.Errorf("sqlite path is required")
		}
		return c.Path, nil
	case TypeMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC&multiStatements=true",
			c.User, c.Password, c.Host, c.Port, c.Database), nil
	case TypePostgres:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			c.Host, c.Port, c.User, c.Password, c.Database), nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", c.Type)
	}
}

// Connect opens the database and configures the connection pool.
func Connect(cfg Config) (*gorm.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch cfg.Dialect() {
	case TypeSQLite:
		dialector = sqlite.Open(dsn)
	case TypeMySQL:
		dialector = mysql.Open(dsn)
	case TypePostgres:
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Dialect(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.Dialect() == TypeSQLite {
		// sqlite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}
