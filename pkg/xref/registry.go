package xref

import (
	"fmt"
	"strings"
	"sync"

	"github.com/btraven00/tinkuy/pkg/accessions"
)

// Registry manages the collection of available sources.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
	order   []string
}

// NewRegistry creates a new source registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]Source),
	}
}

// Register adds a source to the registry. Registration order determines
// lookup order in FindSource.
func (r *Registry) Register(source Source) error {
	if source == nil {
		return fmt.Errorf("source cannot be nil")
	}

	name := source.Name()
	if name == "" {
		return fmt.Errorf("source must have a non-empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return fmt.Errorf("source '%s' already registered", name)
	}

	r.sources[name] = source
	r.order = append(r.order, name)

	return nil
}

// Get retrieves a source by name.
func (r *Registry) Get(name string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	normalized := strings.ToLower(strings.TrimSpace(name))
	if source, exists := r.sources[normalized]; exists {
		return source, nil
	}

	return nil, fmt.Errorf("no source registered with name '%s'", name)
}

// FindSource returns the first registered source that can resolve the
// accession, or nil when none can.
func (r *Registry) FindSource(acc accessions.Accession) Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		if r.sources[name].CanResolve(acc) {
			return r.sources[name]
		}
	}

	return nil
}

// List returns the registered source names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)

	return names
}
