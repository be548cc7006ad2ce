package engine

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps task categories to handler instances. Registration is a
// startup-time concern; lookups are safe for unsynchronized concurrent use
// once registration is done.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Category]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[Category]Handler),
	}
}

// Register adds a handler under its category. Registering the same category
// twice is a wiring bug and is rejected.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return NewConfigurationError("handler is nil", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cat := h.Category()
	if cat == "" {
		return NewConfigurationError("handler has no category", nil).WithHandler(h.Name())
	}
	if _, exists := r.handlers[cat]; exists {
		return NewConfigurationError(
			fmt.Sprintf("handler already registered for category %q", cat), nil,
		).WithCategory(cat)
	}

	r.handlers[cat] = h
	return nil
}

// Lookup resolves the handler for a category.
func (r *Registry) Lookup(cat Category) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[cat]
	return h, ok
}

// Categories returns the registered categories in sorted order.
func (r *Registry) Categories() []Category {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cats := make([]Category, 0, len(r.handlers))
	for c := range r.handlers {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
