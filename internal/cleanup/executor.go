package cleanup

import (
	"context"
	"fmt"

	"github.com/rpattn/histprune/internal/domain"
	"github.com/rpattn/histprune/internal/repository"
)

// Executor deletes flagged version rows, or merely counts them in dry-run.
type Executor struct {
	repo repository.HistoryRepository
}

// NewExecutor creates an executor over the given repository.
func NewExecutor(repo repository.HistoryRepository) *Executor {
	return &Executor{repo: repo}
}

// WithRepository returns an executor bound to another repository, typically one
// scoped to a batch transaction.
func (e *Executor) WithRepository(repo repository.HistoryRepository) *Executor {
	return &Executor{repo: repo}
}

// Apply removes exactly the given version ids and reports how many rows were
// deleted. Fewer rows than ids is success: another process removed them first.
// In dry-run mode it reports the candidate count without touching the table.
func (e *Executor) Apply(ctx context.Context, model domain.TrackedModel, versionIDs []int64, dryRun bool) (int64, error) {
	if len(versionIDs) == 0 {
		return 0, nil
	}
	if dryRun {
		return int64(len(versionIDs)), nil
	}

	removed, err := e.repo.DeleteVersions(ctx, model, versionIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to delete flagged versions: %w", err)
	}
	return removed, nil
}
