package genx

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/haivivi/autoppa/pkg/chat"
)

var _ Endpoint = (*Route)(nil)

// DefaultMux is the default endpoint registry.
var DefaultMux = NewMux()

// Handle registers an endpoint under name in DefaultMux.
func Handle(name string, ep Endpoint) error {
	return DefaultMux.Handle(name, ep)
}

// Get looks up an endpoint in DefaultMux.
func Get(name string) (Endpoint, error) {
	return DefaultMux.Get(name)
}

// Mux is a registry of endpoints by model name.
type Mux struct {
	mu  sync.RWMutex
	eps map[string]Endpoint
}

// NewMux creates an empty registry.
func NewMux() *Mux {
	return &Mux{eps: make(map[string]Endpoint)}
}

// Handle registers ep under name. It fails if name is already taken.
func (m *Mux) Handle(name string, ep Endpoint) error {
	if name == "" || ep == nil {
		return fmt.Errorf("genx: invalid registration %q", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.eps[name]; ok {
		return fmt.Errorf("genx: endpoint already registered for %s", name)
	}
	m.eps[name] = ep
	return nil
}

// Get returns the endpoint registered under name.
func (m *Mux) Get(name string) (Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ep, ok := m.eps[name]
	if !ok {
		return nil, fmt.Errorf("genx: endpoint not found for %s", name)
	}
	return ep, nil
}

// Names returns the registered names in sorted order.
func (m *Mux) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.eps))
	for n := range m.eps {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Route returns an Endpoint that resolves name on every call, so endpoints
// registered after the Route is created are still found.
func (m *Mux) Route(name string) *Route {
	return &Route{mux: m, name: name}
}

// Route is a late-bound Endpoint; see Mux.Route.
type Route struct {
	mux  *Mux
	name string
}

func (r *Route) Stream(ctx context.Context, msgs []chat.Message) (EventStream, error) {
	ep, err := r.mux.Get(r.name)
	if err != nil {
		return nil, err
	}
	return ep.Stream(ctx, msgs)
}
