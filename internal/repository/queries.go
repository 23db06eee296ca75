package repository

import (
	"fmt"
	"strings"

	"github.com/rpattn/histprune/internal/domain"
)

const versionMetadataColumns = 6

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func versionSelectList(model domain.TrackedModel) string {
	columns := []string{
		domain.ColumnVersionID,
		domain.ColumnEntityID,
		domain.ColumnRecordedAt,
		domain.ColumnChangeKind,
		domain.ColumnActor,
		domain.ColumnChangeReason,
	}
	columns = append(columns, model.DataColumns()...)
	quoted := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = quoteIdentifier(column)
	}
	return strings.Join(quoted, ", ")
}

// buildScanQuery selects the version rows of one batch for the in-process scan.
func buildScanQuery(model domain.TrackedModel, withCutoff bool) string {
	var builder strings.Builder
	builder.WriteString("SELECT ")
	builder.WriteString(versionSelectList(model))
	builder.WriteString(" FROM ")
	builder.WriteString(quoteIdentifier(model.HistoryTable))
	builder.WriteString(" WHERE entity_id >= $1 AND entity_id < $2")
	if withCutoff {
		builder.WriteString(" AND recorded_at >= $3")
	}
	builder.WriteString(" ORDER BY entity_id, recorded_at DESC, history_id DESC")
	return builder.String()
}

// buildBoundaryQuery selects, per entity in the batch, the single newest row
// recorded before the cutoff. Its presence tells the scan that the oldest
// in-window row is not the entity's creation anchor.
func buildBoundaryQuery(model domain.TrackedModel) string {
	var builder strings.Builder
	builder.WriteString("SELECT DISTINCT ON (entity_id) ")
	builder.WriteString(versionSelectList(model))
	builder.WriteString(" FROM ")
	builder.WriteString(quoteIdentifier(model.HistoryTable))
	builder.WriteString(" WHERE entity_id >= $1 AND entity_id < $2 AND recorded_at < $3")
	builder.WriteString(" ORDER BY entity_id, recorded_at DESC, history_id DESC")
	return builder.String()
}

// buildWindowQuery produces the single-query duplicate scan. Per partition
// (entity), ordered newest first, LAG exposes the adjacent newer row's fields
// and LEAD(history_id) proves an older neighbour exists. A row is redundant
// when every tracked field matches its newer neighbour and it is not the
// partition's oldest row; with a cutoff, only in-window rows qualify, while the
// window functions still see the rows just before the cutoff.
func buildWindowQuery(model domain.TrackedModel, withCutoff bool) string {
	columns := model.DataColumns()

	var builder strings.Builder
	builder.WriteString("SELECT history_id FROM (SELECT history_id, recorded_at, ")
	builder.WriteString("LEAD(history_id) OVER w AS older_id")
	for idx, column := range columns {
		fmt.Fprintf(&builder, ", %s AS field_%d, LAG(%s) OVER w AS newer_%d",
			quoteIdentifier(column), idx, quoteIdentifier(column), idx)
	}
	builder.WriteString(" FROM ")
	builder.WriteString(quoteIdentifier(model.HistoryTable))
	builder.WriteString(" WHERE entity_id >= $1 AND entity_id < $2")
	builder.WriteString(" WINDOW w AS (PARTITION BY entity_id ORDER BY recorded_at DESC, history_id DESC)")
	builder.WriteString(") AS versions WHERE older_id IS NOT NULL")
	if withCutoff {
		builder.WriteString(" AND recorded_at >= $3")
	}
	for idx := range columns {
		fmt.Fprintf(&builder, " AND (field_%d = newer_%d OR (field_%d IS NULL AND newer_%d IS NULL))",
			idx, idx, idx, idx)
	}
	return builder.String()
}

func buildDeleteQuery(model domain.TrackedModel) string {
	return "DELETE FROM " + quoteIdentifier(model.HistoryTable) + " WHERE history_id = ANY($1)"
}
