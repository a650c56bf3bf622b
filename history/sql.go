package history

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
)

// SQLStore implements the Store interface using GORM.
type SQLStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewSQLStore creates a new GORM-backed history store.
func NewSQLStore(db *gorm.DB, log logger.Logger) *SQLStore {
	return &SQLStore{
		db:     db,
		logger: log,
	}
}

// Models lists the tables the store needs, in creation order.
func Models() []interface{} {
	return []interface{}{&Run{}, &RunTarget{}, &RunComparison{}}
}

// Create stores a run and its associations in one transaction.
func (s *SQLStore) Create(ctx context.Context, run *Run) error {
	if err := run.Validate(); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		s.logger.Error(ctx, "failed to create run", map[string]interface{}{
			"error": err.Error(),
			"modes": run.Modes,
		})
		return err
	}

	s.logger.Info(ctx, "run recorded", map[string]interface{}{
		"run_id":  run.ID.String(),
		"status":  string(run.Status),
		"targets": len(run.Targets),
	})

	return nil
}

// GetByID retrieves a run by its ID.
func (s *SQLStore) GetByID(ctx context.Context, id uuid.UUID) (*Run, error) {
	var run Run
	err := s.db.WithContext(ctx).
		Preload("Targets", func(db *gorm.DB) *gorm.DB {
			return db.Order("started_at ASC")
		}).
		Preload("Targets.Comparisons").
		Where("id = ?", id).
		First(&run).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		s.logger.Error(ctx, "failed to get run by ID", map[string]interface{}{
			"error":  err.Error(),
			"run_id": id.String(),
		})
		return nil, err
	}

	return &run, nil
}

// List retrieves a paginated list of runs, most recent first.
func (s *SQLStore) List(ctx context.Context, limit, offset int) ([]*Run, error) {
	var runs []*Run
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&runs).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list runs", map[string]interface{}{
			"error":  err.Error(),
			"limit":  limit,
			"offset": offset,
		})
		return nil, err
	}

	return runs, nil
}
