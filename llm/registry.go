package llm

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
)

// Registry maps provider identifiers to adapter factories. It is populated
// at startup and read-only afterwards; lookups are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given provider id, replacing any
// previous registration.
func (r *Registry) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
}

// Connect constructs an engine for the given provider id, bound to the
// catalog and credential material. Fails with an unknown-provider error when
// the id is unregistered.
func (r *Registry) Connect(id string, cfg *ProviderConfig, creds Credentials, opts ...Option) (*Engine, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, &Error{
			Code:       ErrUnknownProvider,
			Message:    fmt.Sprintf("provider %s is not registered", id),
			HTTPStatus: http.StatusBadRequest,
			Provider:   id,
		}
	}

	settings := newSettings(opts)
	up, err := factory(cfg, creds, settings.logger)
	if err != nil {
		return nil, err
	}
	return newEngine(up, cfg, settings), nil
}

// List returns the sorted ids of all registered providers.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}
