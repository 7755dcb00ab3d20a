// Package scope provides a small scoped resource registry: named
// constructor/release pairs, constructed on first use, torn down in
// reverse construction order when the scope closes.
package scope

import (
	"errors"
	"fmt"
	"sync"
)

// Constructor builds a resource. It may resolve other resources from the
// same scope; cycles fail at Resolve time.
type Constructor func(s *Scope) (any, error)

// Release tears a resource down.
type Release func(resource any) error

// ErrClosed is returned when a closed scope is used.
var ErrClosed = errors.New("scope is closed")

type factory struct {
	construct Constructor
	release   Release
}

type built struct {
	name     string
	resource any
	release  Release
}

// Scope owns a set of resources for the duration of some piece of work.
// All methods are safe for concurrent use; each resource is constructed
// at most once.
type Scope struct {
	mu        sync.Mutex
	factories map[string]factory
	resources map[string]any
	order     []built // construction order, for LIFO teardown
	resolving map[string]bool
	closed    bool
}

// New creates an empty scope.
func New() *Scope {
	return &Scope{
		factories: make(map[string]factory),
		resources: make(map[string]any),
		resolving: make(map[string]bool),
	}
}

// Register declares a resource by name. release may be nil for resources
// with no teardown. Registering the same name twice is an error.
func (s *Scope) Register(name string, construct Constructor, release Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.factories[name]; ok {
		return fmt.Errorf("resource %q already registered", name)
	}
	s.factories[name] = factory{construct: construct, release: release}
	return nil
}

// Resolve returns the named resource, constructing it on first use.
func (s *Scope) Resolve(name string) (any, error) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if resource, ok := s.resources[name]; ok {
		s.mu.Unlock()
		return resource, nil
	}
	f, ok := s.factories[name]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("resource %q not registered", name)
	}
	if s.resolving[name] {
		s.mu.Unlock()
		return nil, fmt.Errorf("resource %q depends on itself", name)
	}
	s.resolving[name] = true
	s.mu.Unlock()

	// Construct outside the lock so the constructor can Resolve its own
	// dependencies.
	resource, err := f.construct(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.resolving, name)
	if err != nil {
		return nil, fmt.Errorf("constructing resource %q: %w", name, err)
	}
	if s.closed {
		// Scope closed mid-construction; release immediately.
		if f.release != nil {
			f.release(resource)
		}
		return nil, ErrClosed
	}
	if existing, ok := s.resources[name]; ok {
		// A concurrent Resolve won the race; keep the first one.
		if f.release != nil {
			f.release(resource)
		}
		return existing, nil
	}
	s.resources[name] = resource
	s.order = append(s.order, built{name: name, resource: resource, release: f.release})
	return resource, nil
}

// Close releases all constructed resources in reverse construction
// order. The first release error is returned; later releases still run.
// Close is idempotent.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	order := s.order
	s.order = nil
	s.resources = make(map[string]any)
	s.mu.Unlock()

	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		b := order[i]
		if b.release == nil {
			continue
		}
		if err := b.release(b.resource); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("releasing resource %q: %w", b.name, err)
		}
	}
	return firstErr
}
