package domain

import (
	"bytes"
	"fmt"
	"reflect"
	"time"
)

// Comparator decides whether two version records of one model carry identical
// tracked data. Comparison is restricted to the model's data fields; provenance
// metadata never participates.
type Comparator struct {
	model  string
	fields []FieldDefinition
}

// NewComparator builds a comparator for the model's declared data fields.
func NewComparator(model TrackedModel) (*Comparator, error) {
	fields := model.DataFields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoTrackedFields, model.Name)
	}
	return &Comparator{model: model.Name, fields: fields}, nil
}

// Equivalent reports whether a and b hold the same value for every tracked
// field. Two values match when both are null, or both are non-null and equal
// under the native equality of the scanned type.
func (c *Comparator) Equivalent(a, b VersionRecord) (bool, error) {
	if a.Model != c.model || b.Model != c.model {
		return false, fmt.Errorf("%w: comparator for %q given records of %q and %q",
			ErrSchemaMismatch, c.model, a.Model, b.Model)
	}
	for _, field := range c.fields {
		if !valuesEqual(a.Fields[field.Name], b.Fields[field.Name]) {
			return false, nil
		}
	}
	return true, nil
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	}
	return reflect.DeepEqual(a, b)
}
