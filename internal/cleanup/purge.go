package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/rpattn/histprune/internal/domain"
)

// PurgeOptions controls removal of history older than a threshold.
type PurgeOptions struct {
	// OlderThanDays removes versions recorded more than N days ago.
	OlderThanDays int
	// DryRun reports candidate counts without deleting anything.
	DryRun bool
	// StepSize overrides the service's batch width when positive.
	StepSize int64
}

// Purge deletes history rows recorded before the age threshold, batch by batch
// with the same one-transaction-per-batch discipline as duplicate cleaning.
// Unlike duplicate cleaning it removes matching rows unconditionally, anchors
// included; it is the retention counterpart, not a dedup pass.
func (s *Service) Purge(ctx context.Context, models []domain.TrackedModel, opts PurgeOptions) (Report, error) {
	report := Report{
		RunID:     uuid.New(),
		StartedAt: s.now(),
		DryRun:    opts.DryRun,
	}

	if opts.OlderThanDays <= 0 {
		report.FinishedAt = s.now()
		return report, fmt.Errorf("purge threshold must be positive, got %d days", opts.OlderThanDays)
	}
	threshold := s.now().AddDate(0, 0, -opts.OlderThanDays)

	stepSize := s.stepSize
	if opts.StepSize > 0 {
		stepSize = opts.StepSize
	}

	logger := s.logger.With(
		zap.String("run_id", report.RunID.String()),
		zap.Bool("dry_run", opts.DryRun),
		zap.Time("threshold", threshold),
	)

	for _, model := range models {
		result, err := s.purgeModel(ctx, logger, model, threshold, stepSize, opts.DryRun)
		report.Results = append(report.Results, result)
		if err != nil {
			report.FinishedAt = s.now()
			return report, fmt.Errorf("failed to purge %s: %w", model.Name, err)
		}
	}

	report.FinishedAt = s.now()
	return report, nil
}

func (s *Service) purgeModel(
	ctx context.Context,
	logger *zap.Logger,
	model domain.TrackedModel,
	threshold time.Time,
	stepSize int64,
	dryRun bool,
) (ModelResult, error) {
	result := ModelResult{Model: model.Name}

	exists, err := s.repo.HistoryTableExists(ctx, model)
	if err != nil {
		return result, err
	}
	if !exists {
		result.Skipped = true
		result.SkipReason = fmt.Sprintf("%v: history table %s not found", domain.ErrUnknownModel, model.HistoryTable)
		logger.Warn("skipping model without history table",
			zap.String("model", model.Name),
			zap.String("history_table", model.HistoryTable))
		return result, nil
	}

	count, err := s.repo.CountVersions(ctx, model, nil)
	if err != nil {
		return result, err
	}
	result.Examined = count
	if count == 0 {
		return result, nil
	}

	maxEntityID, err := s.repo.MaxEntityID(ctx, model, nil)
	if err != nil {
		return result, err
	}

	for _, batch := range PlanBatches(maxEntityID, stepSize) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		removed, err := s.purgeBatch(ctx, model, batch, threshold, dryRun)
		if err != nil {
			batchErr := &BatchError{Model: model.Name, Range: batch, Err: err}
			result.BatchErrors = append(result.BatchErrors, batchErr)
			logger.Warn("history batch failed",
				zap.String("model", model.Name),
				zap.String("range", batch.String()),
				zap.Error(err))
			continue
		}
		result.Removed += removed
	}

	logger.Info("purged historical records",
		zap.String("model", model.Name),
		zap.Int64("count", result.Removed))
	return result, nil
}

func (s *Service) purgeBatch(
	ctx context.Context,
	model domain.TrackedModel,
	batch domain.IDRange,
	threshold time.Time,
	dryRun bool,
) (int64, error) {
	var removed int64
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		repo := s.repo.WithTx(tx)
		if dryRun {
			var err error
			removed, err = repo.CountVersionsBefore(ctx, model, batch, threshold)
			return err
		}
		var err error
		removed, err = repo.DeleteVersionsBefore(ctx, model, batch, threshold)
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
