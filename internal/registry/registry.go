package registry

import (
	"fmt"
	"sort"

	"github.com/rpattn/histprune/internal/domain"
)

// Registry holds the tracked models declared in configuration, keyed by name.
// It is resolved once at startup; lookups afterwards are read-only.
type Registry struct {
	models map[string]domain.TrackedModel
	order  []string
}

// New builds a registry from declared models. Duplicate names and models
// without a history table are rejected so a bad config fails fast.
func New(models []domain.TrackedModel) (*Registry, error) {
	r := &Registry{models: make(map[string]domain.TrackedModel, len(models))}
	for _, model := range models {
		if model.Name == "" {
			return nil, fmt.Errorf("tracked model with empty name")
		}
		if model.HistoryTable == "" {
			return nil, fmt.Errorf("tracked model %s has no history table", model.Name)
		}
		if _, exists := r.models[model.Name]; exists {
			return nil, fmt.Errorf("duplicate tracked model %s", model.Name)
		}
		r.models[model.Name] = model
		r.order = append(r.order, model.Name)
	}
	return r, nil
}

// All returns every tracked model in declaration order.
func (r *Registry) All() []domain.TrackedModel {
	out := make([]domain.TrackedModel, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.models[name])
	}
	return out
}

// Get looks up a single model by name.
func (r *Registry) Get(name string) (domain.TrackedModel, error) {
	model, ok := r.models[name]
	if !ok {
		return domain.TrackedModel{}, fmt.Errorf("%w: %s", domain.ErrUnknownModel, name)
	}
	return model, nil
}

// Resolve maps requested names to models. Unknown names are returned
// separately so the caller can warn and carry on with the rest.
func (r *Registry) Resolve(names []string) (models []domain.TrackedModel, unknown []string) {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		model, ok := r.models[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		models = append(models, model)
	}
	sort.Strings(unknown)
	return models, unknown
}
