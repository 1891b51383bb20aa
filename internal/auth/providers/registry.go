package providers

import (
	"strings"
	"sync"
)

// Registry holds the configured federated verifiers keyed by provider.
type Registry struct {
	mu        sync.RWMutex
	verifiers map[string]Verifier
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[string]Verifier)}
}

// Register adds or replaces the verifier for its provider key.
func (r *Registry) Register(v Verifier) {
	if v == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifiers[strings.ToLower(v.Provider())] = v
}

// Lookup returns the verifier for the provider, or ErrNotConfigured.
func (r *Registry) Lookup(provider string) (Verifier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.verifiers[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return nil, ErrNotConfigured
	}
	return v, nil
}

// Providers lists the registered provider keys.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.verifiers))
	for key := range r.verifiers {
		keys = append(keys, key)
	}
	return keys
}
