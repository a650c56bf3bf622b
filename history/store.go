package history

import (
	"context"

	"github.com/google/uuid"
)

// Store defines the interface for run history persistence operations.
type Store interface {
	// Create stores a run together with its targets and comparisons.
	Create(ctx context.Context, run *Run) error

	// GetByID retrieves a run with its targets and comparisons.
	GetByID(ctx context.Context, id uuid.UUID) (*Run, error)

	// List retrieves a page of runs, most recent first, without their targets.
	List(ctx context.Context, limit, offset int) ([]*Run, error)
}
