package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/rpattn/histprune/internal/domain"
	"github.com/rpattn/histprune/internal/repository"
)

// TxRunner executes a function inside one database transaction. Each batch of
// work runs through it independently, so a failed batch never unwinds deletions
// committed by earlier batches.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// BatchError records the failure of a single batch. The run continues with the
// next batch; the affected model's removed count becomes a lower bound.
type BatchError struct {
	Model string
	Range domain.IDRange
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %s of %s: %v", e.Range, e.Model, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// RunOptions controls a cleaning run.
type RunOptions struct {
	// CutoffMinutes restricts the scan to versions recorded within the last N
	// minutes. Nil scans the full history.
	CutoffMinutes *int
	// DryRun reports candidate counts without deleting anything.
	DryRun bool
	// StepSize overrides the service's batch width when positive.
	StepSize int64
}

// ModelResult is the outcome of cleaning one tracked model.
type ModelResult struct {
	Model       string
	Examined    int64
	Removed     int64
	Skipped     bool
	SkipReason  string
	BatchErrors []*BatchError
}

// Report summarises one run across all requested models.
type Report struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Results    []ModelResult
}

// RemovedByModel returns the per-model removed counts.
func (r Report) RemovedByModel() map[string]int64 {
	removed := make(map[string]int64, len(r.Results))
	for _, result := range r.Results {
		removed[result.Model] = result.Removed
	}
	return removed
}

// Service drives duplicate cleaning across tracked models: plan the batches,
// detect redundant versions per batch, delete them, accumulate counts. Models
// share no state; they are processed sequentially so at most one bounded batch
// holds locks at any time.
type Service struct {
	tx       TxRunner
	repo     repository.HistoryRepository
	logger   *zap.Logger
	stepSize int64
	windowed bool
	now      func() time.Time
}

// Option customises the service.
type Option func(*Service)

// WithStepSize sets the default entity-id width of one batch.
func WithStepSize(size int64) Option {
	return func(s *Service) {
		if size > 0 {
			s.stepSize = size
		}
	}
}

// WithPortableScan switches duplicate detection from the windowed SQL query to
// the in-process scan.
func WithPortableScan() Option {
	return func(s *Service) {
		s.windowed = false
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a cleaning service.
func NewService(tx TxRunner, repo repository.HistoryRepository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	service := &Service{
		tx:       tx,
		repo:     repo,
		logger:   logger,
		stepSize: DefaultStepSize,
		windowed: true,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Run cleans duplicate history rows for every given model and reports per-model
// counts. Model-level problems (unknown table, nothing to compare) skip the
// model; batch-level failures skip the batch; storage-level failures end the
// run with the partial report.
func (s *Service) Run(ctx context.Context, models []domain.TrackedModel, opts RunOptions) (Report, error) {
	report := Report{
		RunID:     uuid.New(),
		StartedAt: s.now(),
		DryRun:    opts.DryRun,
	}

	stepSize := s.stepSize
	if opts.StepSize > 0 {
		stepSize = opts.StepSize
	}

	var cutoff *time.Time
	if opts.CutoffMinutes != nil {
		stop := s.now().Add(-time.Duration(*opts.CutoffMinutes) * time.Minute)
		cutoff = &stop
	}

	logger := s.logger.With(
		zap.String("run_id", report.RunID.String()),
		zap.Bool("dry_run", opts.DryRun),
	)

	for _, model := range models {
		result, err := s.cleanModel(ctx, logger, model, cutoff, stepSize, opts.DryRun)
		report.Results = append(report.Results, result)
		if err != nil {
			report.FinishedAt = s.now()
			return report, fmt.Errorf("failed to clean %s: %w", model.Name, err)
		}
	}

	report.FinishedAt = s.now()
	return report, nil
}

func (s *Service) cleanModel(
	ctx context.Context,
	logger *zap.Logger,
	model domain.TrackedModel,
	cutoff *time.Time,
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

	detector, err := NewDetector(s.repo, model, s.windowed)
	if err != nil {
		if errors.Is(err, domain.ErrNoTrackedFields) {
			result.Skipped = true
			result.SkipReason = err.Error()
			logger.Warn("skipping model with no tracked fields", zap.String("model", model.Name))
			return result, nil
		}
		return result, err
	}

	count, err := s.repo.CountVersions(ctx, model, cutoff)
	if err != nil {
		return result, err
	}
	result.Examined = count
	logger.Debug("model has historical entries",
		zap.String("model", model.Name),
		zap.Int64("count", count))
	if count == 0 {
		return result, nil
	}

	maxEntityID, err := s.repo.MaxEntityID(ctx, model, cutoff)
	if err != nil {
		return result, err
	}

	executor := NewExecutor(s.repo)
	for _, batch := range PlanBatches(maxEntityID, stepSize) {
		if err := ctx.Err(); err != nil {
			// Stopping between batches is safe; committed batches stand.
			return result, err
		}

		removed, err := s.runBatch(ctx, model, detector, executor, batch, cutoff, dryRun)
		if err != nil {
			if errors.Is(err, domain.ErrSchemaMismatch) {
				return result, err
			}
			batchErr := &BatchError{Model: model.Name, Range: batch, Err: err}
			result.BatchErrors = append(result.BatchErrors, batchErr)
			logger.Warn("history batch failed",
				zap.String("model", model.Name),
				zap.String("range", batch.String()),
				zap.Error(err))
			continue
		}
		result.Removed += removed
		logger.Debug("history batch cleaned",
			zap.String("model", model.Name),
			zap.String("range", batch.String()),
			zap.Int64("removed", removed))
	}

	logger.Info("removed historical records",
		zap.String("model", model.Name),
		zap.Int64("count", result.Removed))
	return result, nil
}

// runBatch detects and deletes one batch's duplicates inside a single
// transaction, so a failure rolls back only this batch's work.
func (s *Service) runBatch(
	ctx context.Context,
	model domain.TrackedModel,
	detector *Detector,
	executor *Executor,
	batch domain.IDRange,
	cutoff *time.Time,
	dryRun bool,
) (int64, error) {
	var removed int64
	err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		repo := s.repo.WithTx(tx)
		ids, err := detector.WithRepository(repo).FindDuplicates(ctx, batch, cutoff)
		if err != nil {
			return err
		}
		removed, err = executor.WithRepository(repo).Apply(ctx, model, ids, dryRun)
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
