package domain

// Metadata columns present on every history table. They describe provenance of a
// version row and are never part of duplicate comparison.
const (
	ColumnVersionID    = "history_id"
	ColumnEntityID     = "entity_id"
	ColumnRecordedAt   = "recorded_at"
	ColumnChangeKind   = "change_kind"
	ColumnActor        = "actor"
	ColumnChangeReason = "change_reason"
)

var metadataColumns = map[string]struct{}{
	ColumnVersionID:    {},
	ColumnEntityID:     {},
	ColumnRecordedAt:   {},
	ColumnChangeKind:   {},
	ColumnActor:        {},
	ColumnChangeReason: {},
}

// FieldType represents the storage type of a tracked field
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeInteger   FieldType = "integer"
	FieldTypeFloat     FieldType = "float"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeJSON      FieldType = "json"
)

// ValidFieldType reports whether t is one of the supported field types.
func ValidFieldType(t FieldType) bool {
	switch t {
	case FieldTypeString, FieldTypeInteger, FieldTypeFloat,
		FieldTypeBoolean, FieldTypeTimestamp, FieldTypeJSON:
		return true
	}
	return false
}

// FieldDefinition represents one tracked column of an entity type
type FieldDefinition struct {
	Name string    `json:"name" mapstructure:"name"`
	Type FieldType `json:"type" mapstructure:"type"`
}

// TrackedModel is the statically declared schema of one entity type whose saves
// are recorded in a history table. The field list is resolved once at startup;
// every version row of the model is assumed to expose the same field set.
type TrackedModel struct {
	Name         string            `json:"name" mapstructure:"name"`
	Table        string            `json:"table" mapstructure:"table"`
	HistoryTable string            `json:"history_table" mapstructure:"history_table"`
	Fields       []FieldDefinition `json:"fields" mapstructure:"fields"`
}

// DataFields returns the declared fields minus the history metadata columns, in
// declaration order. These are the columns duplicate detection compares.
func (m TrackedModel) DataFields() []FieldDefinition {
	fields := make([]FieldDefinition, 0, len(m.Fields))
	for _, field := range m.Fields {
		if _, meta := metadataColumns[field.Name]; meta {
			continue
		}
		fields = append(fields, field)
	}
	return fields
}

// DataColumns returns the names of the tracked data columns in declaration order.
func (m TrackedModel) DataColumns() []string {
	fields := m.DataFields()
	columns := make([]string, 0, len(fields))
	for _, field := range fields {
		columns = append(columns, field.Name)
	}
	return columns
}
