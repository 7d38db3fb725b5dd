// Package variables holds the user-defined workflow variables the expression
// resolver reads through {{variable.name}} references.
package variables

import "sync"

// Store is a concurrency-safe variable store scoped to one run.
type Store struct {
	mu   sync.RWMutex
	vars map[string]any
}

// New creates a store seeded with the given values. A nil seed is allowed.
func New(seed map[string]any) *Store {
	vars := make(map[string]any, len(seed))
	for k, v := range seed {
		vars[k] = v
	}
	return &Store{vars: vars}
}

// Get returns the value of a variable and whether it exists.
func (s *Store) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Set writes a variable. Later reads observe the new value; resolution of a
// single expression always happens against one consistent read.
func (s *Store) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = value
}

// Snapshot returns a shallow copy of all variables.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}
