// Package registry maps names to mental processes so hosts can pick a mind
// from configuration.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/anima/pkg/process"
)

// ErrMindNotFound is returned when no mind is registered under a name.
var ErrMindNotFound = errors.New("mind not found")

// Factory builds a fresh mental process.
type Factory func() process.Process

// Registry manages the available minds.
type Registry struct {
	mu    sync.RWMutex
	minds map[string]Factory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		minds: make(map[string]Factory),
	}
}

// Register adds a mind to the registry.
// If a mind with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.minds[name] = fn
}

// New looks up a mind by name and builds it.
func (r *Registry) New(name string) (process.Process, error) {
	r.mu.RLock()
	fn, ok := r.minds[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: '%s' (available: %s)", ErrMindNotFound, name, strings.Join(r.Names(), ", "))
	}
	return fn(), nil
}

// Names lists the registered minds in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.minds))
	for name := range r.minds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
