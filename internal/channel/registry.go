package channel

import (
	"fmt"
	"sort"
	"sync"

	"github.com/velis74/notify-engine/internal/domain"
)

// Registry holds the channels assembled at startup. Dispatch resolves
// required channel names against it; unknown names become failed channels.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Channel
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Channel)}
}

func (r *Registry) Register(ch Channel) error {
	if ch == nil || ch.Name() == "" {
		return fmt.Errorf("%w: channel with a name is required", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[ch.Name()]; exists {
		return fmt.Errorf("%w: channel %q already registered", domain.ErrConflict, ch.Name())
	}
	r.byName[ch.Name()] = ch
	return nil
}

func (r *Registry) Resolve(name string) (Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: channel %q is not registered", domain.ErrNotFound, name)
	}
	return ch, nil
}

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
