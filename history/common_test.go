package history

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/testutil"
)

// setupTestStore creates a test database and history store for testing.
func setupTestStore(t *testing.T) (*gorm.DB, Store) {
	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db, Models()...)

	log := logger.NewTestLogger()
	store := NewSQLStore(db, log)

	return db, store
}

// createTestRun creates a run with one web target and one comparison.
func createTestRun(modes string, startedAt time.Time) *Run {
	matched := true
	return &Run{
		Modes:     modes,
		Status:    StatusPassed,
		StartedAt: startedAt,
		Targets: []RunTarget{
			{
				Target:      "web",
				Success:     true,
				Screenshots: 1,
				StartedAt:   startedAt,
				CompletedAt: startedAt.Add(time.Second),
				Comparisons: []RunComparison{
					{Name: "home", CurrentPath: "home_1.png", BaselinePath: "home.png", Matched: &matched},
				},
			},
		},
	}
}
