package pipeline

import (
	"sort"

	"github.com/castline/castline/internal/errors"
)

// Registry maps a step's declared handler key to its implementation.
// Lookups of unregistered keys are fatal configuration errors, never
// runtime conditions to recover from.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler key. Re-registering a key replaces the handler;
// the built-in set registers each key exactly once.
func (r *Registry) Register(key string, h Handler) {
	r.handlers[key] = h
}

// Lookup resolves a step's handler.
func (r *Registry) Lookup(step Step) (Handler, error) {
	h, ok := r.handlers[step.Uses]
	if !ok {
		return nil, errors.NewUnknownHandlerError(step.ID, step.Uses)
	}
	return h, nil
}

// Keys returns the registered handler keys, sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
