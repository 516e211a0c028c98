package schema

import (
	"context"
	"fmt"
	"sync"

	"github.com/conduit-lang/orm/internal/orm/query"
)

// ScopeFunc constrains every query of an entity type
type ScopeFunc func(ctx context.Context, b query.Builder)

// LocalScope is a named, explicitly applied query modifier
type LocalScope func(b query.Builder, args ...interface{}) error

// ScopeRegistry holds the global scopes of one entity type in
// registration order
type ScopeRegistry struct {
	mu     sync.RWMutex
	names  []string
	scopes map[string]ScopeFunc
}

// NewScopeRegistry creates an empty registry
func NewScopeRegistry() *ScopeRegistry {
	return &ScopeRegistry{scopes: make(map[string]ScopeFunc)}
}

// Add registers a global scope
func (r *ScopeRegistry) Add(name string, fn ScopeFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.scopes[name]; exists {
		return fmt.Errorf("global scope %s is already registered", name)
	}
	r.names = append(r.names, name)
	r.scopes[name] = fn
	return nil
}

// Remove unregisters a global scope
func (r *ScopeRegistry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.scopes[name]; !exists {
		return
	}
	delete(r.scopes, name)
	for i, n := range r.names {
		if n == name {
			r.names = append(r.names[:i], r.names[i+1:]...)
			break
		}
	}
}

// Names returns scope names in registration order
func (r *ScopeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.names...)
}

// Len returns the number of registered scopes
func (r *ScopeRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// Apply runs every scope not listed in excluded against b
func (r *ScopeRegistry) Apply(ctx context.Context, b query.Builder, excluded map[string]bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.names {
		if excluded[name] {
			continue
		}
		r.scopes[name](ctx, b)
	}
}
