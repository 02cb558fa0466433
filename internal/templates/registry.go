package templates

import (
	"fmt"
	"sync"
	"time"
)

// Registry holds registered workflow templates keyed by name. Reads are
// concurrent; registration is serialized so duplicate inserts cannot race.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry creates an empty template registry.
func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[string]Template),
	}
}

// Register validates and stores a template. The stored copy is deep-cloned
// so the caller cannot mutate it after registration.
func (r *Registry) Register(t Template) error {
	if t.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if len(t.Steps) == 0 {
		return fmt.Errorf("%w: at least one step is required", ErrInvalid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[t.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, t.Name)
	}

	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	r.templates[t.Name] = t.Clone()
	return nil
}

// Get returns a copy of the named template.
func (r *Registry) Get(name string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[name]
	if !ok {
		return Template{}, false
	}
	return t.Clone(), true
}

// List returns a snapshot of all registered templates.
func (r *Registry) List() []Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t.Clone())
	}
	return out
}
