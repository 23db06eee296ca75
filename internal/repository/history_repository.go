package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/histprune/internal/db"
	"github.com/rpattn/histprune/internal/domain"
)

// historyRepository implements HistoryRepository against Postgres
type historyRepository struct {
	db db.DBTX
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(exec db.DBTX) HistoryRepository {
	return &historyRepository{db: exec}
}

// WithTx returns a repository bound to the given transaction
func (r *historyRepository) WithTx(tx pgx.Tx) HistoryRepository {
	return &historyRepository{db: tx}
}

func (r *historyRepository) HistoryTableExists(ctx context.Context, model domain.TrackedModel) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", model.HistoryTable).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check history table for %s: %w", model.Name, err)
	}
	return exists, nil
}

func (r *historyRepository) CountVersions(ctx context.Context, model domain.TrackedModel, cutoff *time.Time) (int64, error) {
	query := "SELECT COUNT(*) FROM " + quoteIdentifier(model.HistoryTable)
	args := []any{}
	if cutoff != nil {
		query += " WHERE recorded_at >= $1"
		args = append(args, *cutoff)
	}

	var count int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count versions for %s: %w", model.Name, err)
	}
	return count, nil
}

func (r *historyRepository) MaxEntityID(ctx context.Context, model domain.TrackedModel, cutoff *time.Time) (int64, error) {
	query := "SELECT COALESCE(MAX(entity_id), 0) FROM " + quoteIdentifier(model.HistoryTable)
	args := []any{}
	if cutoff != nil {
		query += " WHERE recorded_at >= $1"
		args = append(args, *cutoff)
	}

	var maxID int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("failed to compute max entity id for %s: %w", model.Name, err)
	}
	return maxID, nil
}

func (r *historyRepository) ListVersions(ctx context.Context, model domain.TrackedModel, idRange domain.IDRange, cutoff *time.Time) ([]domain.VersionRecord, error) {
	args := []any{idRange.Start, idRange.End}
	if cutoff != nil {
		args = append(args, *cutoff)
	}

	rows, err := r.db.Query(ctx, buildScanQuery(model, cutoff != nil), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions for %s: %w", model.Name, err)
	}
	records, err := r.scanVersionRecords(model, rows)
	if err != nil {
		return nil, err
	}

	if cutoff != nil {
		boundaryRows, err := r.db.Query(ctx, buildBoundaryQuery(model), idRange.Start, idRange.End, *cutoff)
		if err != nil {
			return nil, fmt.Errorf("failed to list boundary versions for %s: %w", model.Name, err)
		}
		boundary, err := r.scanVersionRecords(model, boundaryRows)
		if err != nil {
			return nil, err
		}
		records = append(records, boundary...)
	}

	return records, nil
}

func (r *historyRepository) FindDuplicateIDs(ctx context.Context, model domain.TrackedModel, idRange domain.IDRange, cutoff *time.Time) ([]int64, error) {
	if len(model.DataFields()) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoTrackedFields, model.Name)
	}

	args := []any{idRange.Start, idRange.End}
	if cutoff != nil {
		args = append(args, *cutoff)
	}

	rows, err := r.db.Query(ctx, buildWindowQuery(model, cutoff != nil), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan duplicates for %s: %w", model.Name, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate id for %s: %w", model.Name, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate duplicate ids for %s: %w", model.Name, err)
	}
	return ids, nil
}

func (r *historyRepository) DeleteVersions(ctx context.Context, model domain.TrackedModel, versionIDs []int64) (int64, error) {
	if len(versionIDs) == 0 {
		return 0, nil
	}

	tag, err := r.db.Exec(ctx, buildDeleteQuery(model), versionIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to delete versions for %s: %w", model.Name, err)
	}
	return tag.RowsAffected(), nil
}

func (r *historyRepository) CountVersionsBefore(ctx context.Context, model domain.TrackedModel, idRange domain.IDRange, before time.Time) (int64, error) {
	query := "SELECT COUNT(*) FROM " + quoteIdentifier(model.HistoryTable) +
		" WHERE entity_id >= $1 AND entity_id < $2 AND recorded_at < $3"

	var count int64
	if err := r.db.QueryRow(ctx, query, idRange.Start, idRange.End, before).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count old versions for %s: %w", model.Name, err)
	}
	return count, nil
}

func (r *historyRepository) DeleteVersionsBefore(ctx context.Context, model domain.TrackedModel, idRange domain.IDRange, before time.Time) (int64, error) {
	query := "DELETE FROM " + quoteIdentifier(model.HistoryTable) +
		" WHERE entity_id >= $1 AND entity_id < $2 AND recorded_at < $3"

	tag, err := r.db.Exec(ctx, query, idRange.Start, idRange.End, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old versions for %s: %w", model.Name, err)
	}
	return tag.RowsAffected(), nil
}

func (r *historyRepository) scanVersionRecords(model domain.TrackedModel, rows pgx.Rows) ([]domain.VersionRecord, error) {
	defer rows.Close()

	fields := model.DataFields()
	var records []domain.VersionRecord
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read version row for %s: %w", model.Name, err)
		}
		if len(values) != versionMetadataColumns+len(fields) {
			return nil, fmt.Errorf("unexpected column count %d for model %s", len(values), model.Name)
		}

		record := domain.VersionRecord{Model: model.Name}
		if record.VersionID, err = asInt64(values[0], domain.ColumnVersionID); err != nil {
			return nil, fmt.Errorf("model %s: %w", model.Name, err)
		}
		if record.EntityID, err = asInt64(values[1], domain.ColumnEntityID); err != nil {
			return nil, fmt.Errorf("model %s: %w", model.Name, err)
		}
		recordedAt, ok := values[2].(time.Time)
		if !ok {
			return nil, fmt.Errorf("model %s: column %s is not a timestamp: %T", model.Name, domain.ColumnRecordedAt, values[2])
		}
		record.RecordedAt = recordedAt
		if kind, ok := values[3].(string); ok {
			record.ChangeKind = domain.ChangeKind(kind)
		}
		record.Actor = optionalString(values[4])
		record.ChangeReason = optionalString(values[5])

		record.Fields = make(map[string]any, len(fields))
		for i, field := range fields {
			record.Fields[field.Name] = values[versionMetadataColumns+i]
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate version rows for %s: %w", model.Name, err)
	}
	return records, nil
}

func asInt64(value any, column string) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("column %s is not an integer: %T", column, value)
	}
}

func optionalString(value any) *string {
	if s, ok := value.(string); ok {
		return &s
	}
	return nil
}
