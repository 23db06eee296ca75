package domain

import "errors"

var (
	// ErrSchemaMismatch reports a comparison across records of different entity
	// types. Correct orchestration builds one comparator per model, so hitting
	// this is a programmer error and callers should fail rather than skip.
	ErrSchemaMismatch = errors.New("version records belong to different model schemas")

	// ErrNoTrackedFields reports a model whose declared schema leaves no data
	// columns once metadata columns are excluded. On the empty field set every
	// row compares equal, so deleting "duplicates" would erase real history;
	// callers skip such models instead.
	ErrNoTrackedFields = errors.New("model declares no tracked data fields")

	// ErrUnknownModel reports a model reference that is not registered or whose
	// history table does not exist.
	ErrUnknownModel = errors.New("model is not tracked")
)
