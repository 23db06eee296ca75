package cleanup

import "github.com/rpattn/histprune/internal/domain"

// DefaultStepSize bounds the entity-id width of one batch. Small enough to keep
// any single read or delete short-lived, large enough to amortise per-batch
// transaction overhead on big history tables.
const DefaultStepSize int64 = 100_000

// PlanBatches partitions [0, maxEntityID] into contiguous half-open id ranges
// of width stepSize. An empty table (maxEntityID < 0 is never produced by the
// repository, which reports 0) still yields the single range covering id 0.
func PlanBatches(maxEntityID, stepSize int64) []domain.IDRange {
	if stepSize < 1 || maxEntityID < 0 {
		return nil
	}

	ranges := make([]domain.IDRange, 0, maxEntityID/stepSize+1)
	for start := int64(0); start <= maxEntityID; start += stepSize {
		ranges = append(ranges, domain.IDRange{Start: start, End: start + stepSize})
	}
	return ranges
}
