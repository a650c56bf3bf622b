package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/history"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/testutil"
)

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{name: "sqlite default type", cfg: Config{Path: "runs.db"}, want: "runs.db"},
		{name: "sqlite without path", cfg: Config{Type: "sqlite"}, wantErr: true},
		{
			name: "mysql",
			cfg:  Config{Type: "MySQL", Host: "db", Port: 3306, User: "root", Password: "pw", Database: "shots"},
			want: "root:pw@tcp(db:3306)/shots?charset=utf8mb4&parseTime=True&loc=UTC&multiStatements=true",
		},
		{
			name: "postgres",
			cfg:  Config{Type: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Database: "shots"},
			want: "host=db port=5432 user=u password=p dbname=shots sslmode=disable TimeZone=UTC",
		},
		{name: "unknown", cfg: Config{Type: "oracle"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.DSN()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConnect_SQLite(t *testing.T) {
	db, err := Connect(Config{Type: TypeSQLite, Path: filepath.Join(t.TempDir(), "history.db")})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()
	assert.NoError(t, sqlDB.Ping())
}

func TestMigrations_UpAndDown(t *testing.T) {
	db := testutil.SetupTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	require.NoError(t, RunMigrations(sqlDB, TypeSQLite, ""))
	for _, table := range []string{"runs", "run_targets", "run_comparisons"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}

	version, dirty, err := MigrationVersion(sqlDB, TypeSQLite, "")
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Applying again is a no-op.
	require.NoError(t, RunMigrations(sqlDB, TypeSQLite, ""))

	// The migrated schema accepts what the history store writes.
	store := history.NewSQLStore(db, logger.NewTestLogger())
	run := &history.Run{
		Modes:     "web",
		Status:    history.StatusPassed,
		StartedAt: time.Now(),
		Targets:   []history.RunTarget{{Target: "web", Success: true, Comparisons: []history.RunComparison{{Name: "home", IsNewBaseline: true}}}},
	}
	require.NoError(t, store.Create(context.Background(), run))
	got, err := store.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, got.Targets, 1)
	assert.Len(t, got.Targets[0].Comparisons, 1)

	require.NoError(t, RollbackMigration(sqlDB, TypeSQLite, ""))
	assert.False(t, db.Migrator().HasTable("runs"))
}

func TestMigrations_UnsupportedDialect(t *testing.T) {
	db := testutil.SetupTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	assert.Error(t, RunMigrations(sqlDB, "oracle", ""))
}
