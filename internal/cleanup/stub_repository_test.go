package cleanup

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/histprune/internal/domain"
	"github.com/rpattn/histprune/internal/repository"
)

var errStubBatch = errors.New("stub batch failure")

// stubTxRunner satisfies TxRunner without a database; the stub repository
// ignores the transaction handle.
type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return fn(nil)
}

// stubHistoryRepo keeps version rows in memory and mimics the Postgres
// repository closely enough for orchestration and detection tests, including
// an independent emulation of the windowed duplicate query.
type stubHistoryRepo struct {
	records       []domain.VersionRecord
	missingTables map[string]bool
	failRanges    map[string]bool
	deleteErr     error
	deleted       []int64
}

func newStubHistoryRepo(records ...domain.VersionRecord) *stubHistoryRepo {
	return &stubHistoryRepo{
		records:       records,
		missingTables: map[string]bool{},
		failRanges:    map[string]bool{},
	}
}

func (s *stubHistoryRepo) WithTx(tx pgx.Tx) repository.HistoryRepository { return s }

func (s *stubHistoryRepo) HistoryTableExists(ctx context.Context, model domain.TrackedModel) (bool, error) {
	return !s.missingTables[model.Name], nil
}

func (s *stubHistoryRepo) modelRecords(model domain.TrackedModel) []domain.VersionRecord {
	var out []domain.VersionRecord
	for _, record := range s.records {
		if record.Model == model.Name {
			out = append(out, record)
		}
	}
	return out
}

func (s *stubHistoryRepo) CountVersions(ctx context.Context, model domain.TrackedModel, cutoff *time.Time) (int64, error) {
	var count int64
	for _, record := range s.modelRecords(model) {
		if cutoff != nil && record.RecordedAt.Before(*cutoff) {
			continue
		}
		count++
	}
	return count, nil
}

func (s *stubHistoryRepo) MaxEntityID(ctx context.Context, model domain.TrackedModel, cutoff *time.Time) (int64, error) {
	var max int64
	for _, record := range s.modelRecords(model) {
		if cutoff != nil && record.RecordedAt.Before(*cutoff) {
			continue
		}
		if record.EntityID > max {
			max = record.EntityID
		}
	}
	return max, nil
}

func (s *stubHistoryRepo) ListVersions(ctx context.Context, model domain.TrackedModel, idRange domain.IDRange, cutoff *time.Time) ([]domain.VersionRecord, error) {
	if s.failRanges[idRange.String()] {
		return nil, errStubBatch
	}

	var out []domain.VersionRecord
	boundary := map[int64]domain.VersionRecord{}
	for _, record := range s.modelRecords(model) {
		if !idRange.Contains(record.EntityID) {
			continue
		}
		if cutoff != nil && record.RecordedAt.Before(*cutoff) {
			best, seen := boundary[record.EntityID]
			if !seen || record.RecordedAt.After(best.RecordedAt) ||
				(record.RecordedAt.Equal(best.RecordedAt) && record.VersionID > best.VersionID) {
				boundary[record.EntityID] = record
			}
			continue
		}
		out = append(out, record)
	}
	for _, record := range boundary {
		out = append(out, record)
	}
	return out, nil
}

func (s *stubHistoryRepo) FindDuplicateIDs(ctx context.Context, model domain.TrackedModel, idRange domain.IDRange, cutoff *time.Time) ([]int64, error) {
	if s.failRanges[idRange.String()] {
		return nil, errStubBatch
	}

	// Emulates the windowed SQL: per partition ordered newest first, a row is
	// flagged when its tracked fields equal the adjacent newer row's, it has an
	// older neighbour, and it falls inside the time window.
	partitions := map[int64][]domain.VersionRecord{}
	for _, record := range s.modelRecords(model) {
		if idRange.Contains(record.EntityID) {
			partitions[record.EntityID] = append(partitions[record.EntityID], record)
		}
	}

	var ids []int64
	for _, partition := range partitions {
		sort.Slice(partition, func(i, j int) bool {
			if !partition[i].RecordedAt.Equal(partition[j].RecordedAt) {
				return partition[i].RecordedAt.After(partition[j].RecordedAt)
			}
			return partition[i].VersionID > partition[j].VersionID
		})
		for i := 1; i < len(partition)-1; i++ {
			if cutoff != nil && partition[i].RecordedAt.Before(*cutoff) {
				continue
			}
			if reflect.DeepEqual(partition[i].Fields, partition[i-1].Fields) {
				ids = append(ids, partition[i].VersionID)
			}
		}
	}
	return ids, nil
}

func (s *stubHistoryRepo) DeleteVersions(ctx context.Context, model domain.TrackedModel, versionIDs []int64) (int64, error) {
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}

	flagged := make(map[int64]struct{}, len(versionIDs))
	for _, id := range versionIDs {
		flagged[id] = struct{}{}
	}

	var kept []domain.VersionRecord
	var removed int64
	for _, record := range s.records {
		if _, ok := flagged[record.VersionID]; ok && record.Model == model.Name {
			removed++
			s.deleted = append(s.deleted, record.VersionID)
			continue
		}
		kept = append(kept, record)
	}
	s.records = kept
	return removed, nil
}

func (s *stubHistoryRepo) CountVersionsBefore(ctx context.Context, model domain.TrackedModel, idRange domain.IDRange, before time.Time) (int64, error) {
	if s.failRanges[idRange.String()] {
		return 0, errStubBatch
	}
	var count int64
	for _, record := range s.modelRecords(model) {
		if idRange.Contains(record.EntityID) && record.RecordedAt.Before(before) {
			count++
		}
	}
	return count, nil
}

func (s *stubHistoryRepo) DeleteVersionsBefore(ctx context.Context, model domain.TrackedModel, idRange domain.IDRange, before time.Time) (int64, error) {
	if s.failRanges[idRange.String()] {
		return 0, errStubBatch
	}

	var kept []domain.VersionRecord
	var removed int64
	for _, record := range s.records {
		if record.Model == model.Name && idRange.Contains(record.EntityID) && record.RecordedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, record)
	}
	s.records = kept
	return removed, nil
}
