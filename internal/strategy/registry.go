package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Metadata describes a registered strategy without requiring callers to hold
// the strategy instance itself.
type Metadata struct {
	ID   string
	Name string
}

// Registry holds strategies keyed by ID, guarded by a RWMutex so strategies
// can be registered at startup and read concurrently from the control
// surface and orchestrator. Adapted from the teacher's
// libs/strategies/registry.go Register/Get/List/GetMetadata/ListAll pattern.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds a strategy under its own ID, rejecting duplicate IDs.
func (r *Registry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := s.ID()
	if _, exists := r.strategies[id]; exists {
		return fmt.Errorf("strategy: id %q already registered", id)
	}
	r.strategies[id] = s
	return nil
}

// Get returns the strategy registered under id.
func (r *Registry) Get(id string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[id]
	return s, ok
}

// List returns the IDs of all registered strategies, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.strategies))
	for id := range r.strategies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetMetadata returns Metadata for a single registered strategy.
func (r *Registry) GetMetadata(id string) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[id]
	if !ok {
		return Metadata{}, false
	}
	return Metadata{ID: s.ID(), Name: s.Name()}, true
}

// ListAll returns Metadata for every registered strategy, sorted by ID.
func (r *Registry) ListAll() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Metadata, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, Metadata{ID: s.ID(), Name: s.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
