package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/histprune/internal/domain"
)

// HistoryRepository defines the operations the cleaner runs against a tracked
// model's history table. All reads and deletes are scoped to a half-open
// entity-id range so callers can bound the working set per batch.
type HistoryRepository interface {
	// HistoryTableExists reports whether the model's history table is present.
	HistoryTableExists(ctx context.Context, model domain.TrackedModel) (bool, error)

	// CountVersions counts history rows, optionally restricted to rows recorded
	// at or after cutoff.
	CountVersions(ctx context.Context, model domain.TrackedModel, cutoff *time.Time) (int64, error)

	// MaxEntityID returns the largest entity id present (0 when the table is
	// empty), a point-in-time snapshot used to plan batches.
	MaxEntityID(ctx context.Context, model domain.TrackedModel, cutoff *time.Time) (int64, error)

	// ListVersions fetches the version rows whose entity id falls in idRange.
	// With a cutoff, rows recorded before it are excluded except for one extra
	// row per entity immediately preceding the window, so adjacency checks can
	// see across the window boundary. No ordering is guaranteed.
	ListVersions(ctx context.Context, model domain.TrackedModel, idRange domain.IDRange, cutoff *time.Time) ([]domain.VersionRecord, error)

	// FindDuplicateIDs runs the windowed-SQL duplicate scan for one batch and
	// returns the version ids of redundant rows.
	FindDuplicateIDs(ctx context.Context, model domain.TrackedModel, idRange domain.IDRange, cutoff *time.Time) ([]int64, error)

	// DeleteVersions removes exactly the given version ids and returns the
	// number of rows actually deleted.
	DeleteVersions(ctx context.Context, model domain.TrackedModel, versionIDs []int64) (int64, error)

	// CountVersionsBefore counts rows in idRange recorded before the threshold.
	CountVersionsBefore(ctx context.Context, model domain.TrackedModel, idRange domain.IDRange, before time.Time) (int64, error)

	// DeleteVersionsBefore removes rows in idRange recorded before the threshold.
	DeleteVersionsBefore(ctx context.Context, model domain.TrackedModel, idRange domain.IDRange, before time.Time) (int64, error)

	// WithTx returns a repository bound to the given transaction.
	WithTx(tx pgx.Tx) HistoryRepository
}
