// Package loader implements the layered class resolver: classes of the
// compiled unit first, then backing providers in order.
package loader

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/tern/classfile"
	"github.com/chazu/tern/unit"
)

var log = commonlog.GetLogger("tern.loader")

// ErrNotFound is wrapped by providers that do not have a class.
var ErrNotFound = errors.New("class not found")

// ClassNotFoundError reports a name that neither the unit nor any provider
// could supply.
type ClassNotFoundError struct {
	Name     string
	Searched []string
}

func (e *ClassNotFoundError) Error() string {
	return fmt.Sprintf("class %s not found (searched %s)", e.Name, strings.Join(e.Searched, ", "))
}

func (e *ClassNotFoundError) Is(target error) bool { return target == ErrNotFound }

// ClassFormatError reports bytes that could not be defined as the requested
// class.
type ClassFormatError struct {
	Name   string
	Source string
	Err    error
}

func (e *ClassFormatError) Error() string {
	return fmt.Sprintf("class %s from %s: %v", e.Name, e.Source, e.Err)
}

func (e *ClassFormatError) Unwrap() error { return e.Err }

// Origin records which layer defined a class.
type Origin int

const (
	OriginUnit Origin = iota
	OriginProvider
)

func (o Origin) String() string {
	if o == OriginUnit {
		return "unit"
	}
	return "provider"
}

// ResolvedClass is a defined class plus where it came from.
type ResolvedClass struct {
	Name   string
	Class  *classfile.Class
	Origin Origin
	// Source is "unit" or the name of the provider.
	Source string

	resolver *Resolver
}

// Resolver returns the resolver that defined the class.
func (rc *ResolvedClass) Resolver() *Resolver { return rc.resolver }

// Resolver maps class names to defined classes. Each name is defined at most
// once per resolver; it is safe for concurrent use.
type Resolver struct {
	id        string
	unit      *unit.Store
	providers []Provider

	mu      sync.Mutex
	defined map[string]*ResolvedClass
}

// New creates a resolver over store (which may be nil) and providers.
func New(store *unit.Store, providers ...Provider) *Resolver {
	return &Resolver{
		id:        uuid.NewString(),
		unit:      store,
		providers: slices.Clone(providers),
		defined:   make(map[string]*ResolvedClass),
	}
}

// ID identifies the resolver in logs and diagnostics.
func (r *Resolver) ID() string { return r.id }

// Unit returns the store the resolver consults first.
func (r *Resolver) Unit() *unit.Store { return r.unit }

// Providers returns the backing providers in search order.
func (r *Resolver) Providers() []Provider { return slices.Clone(r.providers) }

// Resolve returns the class named name, defining it on first request.
func (r *Resolver) Resolve(name string) (*ResolvedClass, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rc, ok := r.defined[name]; ok {
		return rc, nil
	}

	if r.unit != nil && r.unit.Has(name) {
		data, err := r.unit.Get(name)
		if err != nil {
			return nil, err
		}
		return r.define(name, data, OriginUnit, "unit")
	}

	searched := []string{"unit"}
	for _, p := range r.providers {
		data, err := p.LoadByName(name)
		if errors.Is(err, ErrNotFound) {
			searched = append(searched, p.Name())
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve %s via %s: %w", name, p.Name(), err)
		}
		return r.define(name, data, OriginProvider, p.Name())
	}
	return nil, &ClassNotFoundError{Name: name, Searched: searched}
}

// define decodes, verifies and caches a class. Callers hold r.mu.
func (r *Resolver) define(name string, data []byte, origin Origin, source string) (*ResolvedClass, error) {
	c, err := classfile.Unmarshal(data)
	if err != nil {
		return nil, &ClassFormatError{Name: name, Source: source, Err: err}
	}
	if c.Name != name {
		return nil, &ClassFormatError{Name: name, Source: source, Err: fmt.Errorf("bytes define %s", c.Name)}
	}
	if err := classfile.Verify(c); err != nil {
		return nil, &ClassFormatError{Name: name, Source: source, Err: err}
	}
	rc := &ResolvedClass{Name: name, Class: c, Origin: origin, Source: source, resolver: r}
	r.defined[name] = rc
	log.Debugf("resolver %s: defined %s from %s", r.id, name, source)
	return rc, nil
}

// Defined returns the classes defined so far, ordered by name.
func (r *Resolver) Defined() []*ResolvedClass {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ResolvedClass, 0, len(r.defined))
	for _, rc := range r.defined {
		out = append(out, rc)
	}
	slices.SortFunc(out, func(a, b *ResolvedClass) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// CheckShadowing returns an error if any class owned by the unit was
// defined from a provider.
func (r *Resolver) CheckShadowing() error {
	if r.unit == nil {
		return nil
	}
	var leaked []string
	for _, rc := range r.Defined() {
		if rc.Origin != OriginUnit && r.unit.Has(rc.Name) {
			leaked = append(leaked, fmt.Sprintf("%s (from %s)", rc.Name, rc.Source))
		}
	}
	if len(leaked) > 0 {
		return fmt.Errorf("unit classes resolved from backing providers: %s", strings.Join(leaked, ", "))
	}
	return nil
}
