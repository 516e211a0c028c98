package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds entity types by name
type Registry struct {
	types map[string]*EntityType
	mu    sync.RWMutex
}

// NewRegistry creates a new type registry
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[string]*EntityType),
	}
}

// Register normalizes and registers an entity type
func (r *Registry) Register(t *EntityType) error {
	if err := t.Normalize(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[t.Name]; exists {
		return fmt.Errorf("entity type %s is already registered", t.Name)
	}
	r.types[t.Name] = t
	return nil
}

// Get retrieves an entity type by name
func (r *Registry) Get(name string) (*EntityType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.types[name]
	return t, exists
}

// List returns registered type names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered types
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.types)
}

// ValidateAll checks that every relation has a known kind and target.
// Forward references are allowed until this is called.
func (r *Registry) ValidateAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range sortedTypeNames(r.types) {
		t := r.types[name]
		relNames := make([]string, 0, len(t.Relations))
		for rel := range t.Relations {
			relNames = append(relNames, rel)
		}
		sort.Strings(relNames)

		for _, relName := range relNames {
			rel := t.Relations[relName]
			if !rel.Kind.Valid() {
				return fmt.Errorf("%s.%s: unknown relation kind %q", t.Name, relName, rel.Kind)
			}
			if _, ok := r.types[rel.Related]; !ok {
				return fmt.Errorf("%s.%s: unknown related type %s", t.Name, relName, rel.Related)
			}
		}
	}
	return nil
}

func sortedTypeNames(m map[string]*EntityType) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
