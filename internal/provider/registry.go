package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/velis74/notify-engine/internal/domain"
)

// Registry maps provider names to integrations, built once at process start
// from configuration. Channels resolve their failover chains from it instead
// of importing gateway implementations by string path at runtime.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Integration
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Integration)}
}

func (r *Registry) Register(integration Integration) error {
	if integration == nil {
		return fmt.Errorf("%w: integration is required", domain.ErrValidation)
	}

	name := strings.TrimSpace(integration.Name())
	if name == "" {
		return fmt.Errorf("%w: provider name is required", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("%w: provider %q already registered", domain.ErrConflict, name)
	}
	r.byName[name] = integration
	return nil
}

func (r *Registry) Resolve(name string) (Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	integration, ok := r.byName[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q is not registered", domain.ErrNotFound, name)
	}
	return integration, nil
}

// NextInChain returns the first provider from the ordered chain that is
// registered and not excluded. Used by the channel failover loop.
func (r *Registry) NextInChain(chain []string, excluded map[string]bool) (Integration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range chain {
		name = strings.TrimSpace(name)
		if name == "" || excluded[name] {
			continue
		}
		if integration, ok := r.byName[name]; ok {
			return integration, true
		}
	}
	return nil, false
}

// Names lists registered provider names, sorted for deterministic logs.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
