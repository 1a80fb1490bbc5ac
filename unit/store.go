// Package unit holds the bytecode produced by compiling one source unit.
//
// A Store maps fully qualified class names to encoded class bytes. It is
// filled by the compiler backend, sealed by the orchestrator once
// compilation succeeds, and from then on shared read-only between class
// resolvers and runners.
package unit

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
)

// ErrNotFound is returned by Get for names the store does not contain.
var ErrNotFound = errors.New("class not in unit")

// ErrSealed is returned by Put after the store has been sealed.
var ErrSealed = errors.New("unit is sealed")

// DuplicateClassError reports a second Put for the same class name. It always
// indicates a code generation bug.
type DuplicateClassError struct {
	Name string
}

func (e *DuplicateClassError) Error() string {
	return fmt.Sprintf("duplicate class %s in unit", e.Name)
}

// Store is the set of generated classes of one compiled source unit.
type Store struct {
	mu      sync.RWMutex
	classes map[string][]byte
	sealed  bool
}

// NewStore creates an empty, unsealed store.
func NewStore() *Store {
	return &Store{classes: make(map[string][]byte)}
}

// Put records the bytes of a class. The store keeps its own copy.
func (s *Store) Put(name string, data []byte) error {
	if name == "" {
		return fmt.Errorf("put: empty class name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return fmt.Errorf("put %s: %w", name, ErrSealed)
	}
	if _, exists := s.classes[name]; exists {
		return &DuplicateClassError{Name: name}
	}
	s.classes[name] = bytes.Clone(data)
	return nil
}

// Get returns a copy of the bytes stored for name.
func (s *Store) Get(name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.classes[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return bytes.Clone(data), nil
}

// Has reports whether the store owns name.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.classes[name]
	return ok
}

// Names returns the contained class names in sorted order. The sequence is
// computed when iterated, so it can be ranged over any number of times.
func (s *Store) Names() iter.Seq[string] {
	return func(yield func(string) bool) {
		s.mu.RLock()
		names := make([]string, 0, len(s.classes))
		for name := range s.classes {
			names = append(names, name)
		}
		s.mu.RUnlock()
		slices.Sort(names)
		for _, name := range names {
			if !yield(name) {
				return
			}
		}
	}
}

// Len returns the number of classes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.classes)
}

// Seal forbids further writes.
func (s *Store) Seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (s *Store) Sealed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sealed
}
