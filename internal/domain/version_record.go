package domain

import (
	"time"
)

// ChangeKind describes why a version row was written.
type ChangeKind string

const (
	ChangeKindCreated ChangeKind = "created"
	ChangeKindUpdated ChangeKind = "updated"
	ChangeKindDeleted ChangeKind = "deleted"
)

// VersionRecord is one row of a model's history table: a snapshot of the tracked
// fields of an entity at the time of a save. Within one entity, rows are totally
// ordered by (recorded_at desc, version_id desc).
type VersionRecord struct {
	Model        string
	EntityID     int64
	VersionID    int64
	RecordedAt   time.Time
	ChangeKind   ChangeKind
	Actor        *string
	ChangeReason *string
	Fields       map[string]any
}
