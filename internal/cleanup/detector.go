package cleanup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rpattn/histprune/internal/domain"
	"github.com/rpattn/histprune/internal/repository"
)

// Detector finds redundant version rows of one tracked model inside a bounded
// entity-id range. Two interchangeable strategies exist: a single windowed SQL
// query executed by the repository, and a portable in-process scan over the
// fetched rows. Both produce identical duplicate sets.
type Detector struct {
	repo       repository.HistoryRepository
	model      domain.TrackedModel
	comparator *domain.Comparator
	windowed   bool
}

// NewDetector builds a detector for the model. It fails with
// domain.ErrNoTrackedFields when the model's schema leaves nothing to compare.
func NewDetector(repo repository.HistoryRepository, model domain.TrackedModel, windowed bool) (*Detector, error) {
	comparator, err := domain.NewComparator(model)
	if err != nil {
		return nil, err
	}
	return &Detector{repo: repo, model: model, comparator: comparator, windowed: windowed}, nil
}

// WithRepository returns a detector bound to another repository, typically one
// scoped to a batch transaction.
func (d *Detector) WithRepository(repo repository.HistoryRepository) *Detector {
	clone := *d
	clone.repo = repo
	return &clone
}

// FindDuplicates returns the version ids of redundant rows whose entity id
// falls inside idRange and, when cutoff is set, whose recorded_at is at or
// after the cutoff. The read is side-effect free.
func (d *Detector) FindDuplicates(ctx context.Context, idRange domain.IDRange, cutoff *time.Time) ([]int64, error) {
	if d.windowed {
		return d.repo.FindDuplicateIDs(ctx, d.model, idRange, cutoff)
	}

	records, err := d.repo.ListVersions(ctx, d.model, idRange, cutoff)
	if err != nil {
		return nil, err
	}
	return d.markDuplicates(records, cutoff)
}

// markDuplicates runs the portable sort-then-linear-scan. Rows are partitioned
// by entity and ordered newest first; within each partition the older row of an
// equivalent adjacent pair is marked, except the partition's oldest row, which
// anchors the entity's timeline. With a cutoff, rows recorded before it take
// part in comparisons but are never marked.
func (d *Detector) markDuplicates(records []domain.VersionRecord, cutoff *time.Time) ([]int64, error) {
	sortVersions(records)

	var duplicates []int64
	for start := 0; start < len(records); {
		end := start
		for end < len(records) && records[end].EntityID == records[start].EntityID {
			end++
		}
		partition := records[start:end]

		for i := 1; i < len(partition)-1; i++ {
			if cutoff != nil && partition[i].RecordedAt.Before(*cutoff) {
				continue
			}
			equivalent, err := d.comparator.Equivalent(partition[i-1], partition[i])
			if err != nil {
				return nil, fmt.Errorf("compare versions %d and %d: %w",
					partition[i-1].VersionID, partition[i].VersionID, err)
			}
			if equivalent {
				duplicates = append(duplicates, partition[i].VersionID)
			}
		}

		start = end
	}
	return duplicates, nil
}

func sortVersions(records []domain.VersionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].EntityID != records[j].EntityID {
			return records[i].EntityID < records[j].EntityID
		}
		if !records[i].RecordedAt.Equal(records[j].RecordedAt) {
			return records[i].RecordedAt.After(records[j].RecordedAt)
		}
		return records[i].VersionID > records[j].VersionID
	})
}
