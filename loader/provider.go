package loader

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/chazu/tern/artifact"
	"github.com/chazu/tern/unit"
)

// Provider is a backing source of classes consulted after the unit store.
type Provider interface {
	// Name identifies the provider in diagnostics.
	Name() string
	// LoadByName returns encoded class bytes, or an error wrapping ErrNotFound.
	LoadByName(className string) ([]byte, error)
}

// ArtifactProvider serves classes from a library artifact on disk. The
// artifact is opened on first use.
type ArtifactProvider struct {
	path string

	once sync.Once
	art  artifact.Artifact
	err  error
}

// NewArtifactProvider creates a provider for the artifact at path.
func NewArtifactProvider(path string) *ArtifactProvider {
	return &ArtifactProvider{path: path}
}

func (p *ArtifactProvider) Name() string { return p.path }

func (p *ArtifactProvider) open() (artifact.Artifact, error) {
	p.once.Do(func() {
		p.art, p.err = artifact.Open(p.path)
	})
	return p.art, p.err
}

func (p *ArtifactProvider) LoadByName(className string) ([]byte, error) {
	art, err := p.open()
	if err != nil {
		return nil, err
	}
	data, err := art.Load(className)
	if errors.Is(err, artifact.ErrNotFound) {
		return nil, fmt.Errorf("%s in %s: %w", className, p.path, ErrNotFound)
	}
	return data, err
}

// Names lists the classes of the artifact.
func (p *ArtifactProvider) Names() ([]string, error) {
	art, err := p.open()
	if err != nil {
		return nil, err
	}
	return art.Names()
}

// Close releases the artifact if it was opened.
func (p *ArtifactProvider) Close() error {
	if p.art != nil {
		return p.art.Close()
	}
	return nil
}

// MapProvider serves classes from memory.
type MapProvider struct {
	name    string
	classes map[string][]byte
}

// NewMapProvider creates a provider over a copy of classes.
func NewMapProvider(name string, classes map[string][]byte) *MapProvider {
	return &MapProvider{name: name, classes: maps.Clone(classes)}
}

func (p *MapProvider) Name() string { return p.name }

func (p *MapProvider) LoadByName(className string) ([]byte, error) {
	data, ok := p.classes[className]
	if !ok {
		return nil, fmt.Errorf("%s in %s: %w", className, p.name, ErrNotFound)
	}
	return slices.Clone(data), nil
}

// StoreProvider serves the classes of an already compiled unit, so that one
// unit can act as a library for another.
type StoreProvider struct {
	name  string
	store *unit.Store
}

// NewStoreProvider wraps a unit store.
func NewStoreProvider(name string, store *unit.Store) *StoreProvider {
	return &StoreProvider{name: name, store: store}
}

func (p *StoreProvider) Name() string { return p.name }

func (p *StoreProvider) LoadByName(className string) ([]byte, error) {
	data, err := p.store.Get(className)
	if errors.Is(err, unit.ErrNotFound) {
		return nil, fmt.Errorf("%s in %s: %w", className, p.name, ErrNotFound)
	}
	return data, err
}
