// internal/provider/registry.go

// Package provider maps provider identifiers to their static engine
// configuration. The registry is built once at startup and never mutated.
package provider

import (
	"errors"
	"fmt"
	"sort"

	"github.com/xkilldash9x/sessionforge/internal/config"
)

// ErrUnknownProvider marks a lookup for an identifier that was never
// registered. This is a client-input error, not a system fault.
var ErrUnknownProvider = errors.New("unknown provider")

// Registry is a read-only mapping from provider id to configuration.
type Registry struct {
	providers map[string]config.ProviderConfig
}

// NewRegistry builds a registry from the configured provider set. Entries
// are copied so later config mutation cannot leak in.
func NewRegistry(providers map[string]config.ProviderConfig) *Registry {
	m := make(map[string]config.ProviderConfig, len(providers))
	for id, p := range providers {
		if p.Name == "" {
			p.Name = id
		}
		m[id] = p
	}
	return &Registry{providers: m}
}

// Lookup resolves a provider id to its configuration.
func (r *Registry) Lookup(id string) (config.ProviderConfig, error) {
	p, ok := r.providers[id]
	if !ok {
		return config.ProviderConfig{}, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return p, nil
}

// Names returns the registered provider identifiers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for id := range r.providers {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}
