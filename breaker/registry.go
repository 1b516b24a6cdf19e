package breaker

import (
	"context"
	"sync"
)

// Registry holds one Breaker per action type, created on first use and
// never removed. Every execution in the process shares the same breaker
// for a given action type.
type Registry struct {
	cfg  Config
	opts []Option

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates a Registry. The config and options apply to every
// breaker the registry creates.
func NewRegistry(cfg Config, opts ...Option) *Registry {
	return &Registry{
		cfg:      cfg.withDefaults(),
		opts:     opts,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for an action type, creating it if needed.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	if !ok {
		b = New(name, r.cfg, r.opts...)
		r.breakers[name] = b
	}
	return b
}

// Do runs fn through the named action type's breaker.
func (r *Registry) Do(ctx context.Context, name string, fn func(context.Context) error) error {
	return r.Get(name).Do(ctx, fn)
}

// States returns the current state of every breaker in the registry.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	states := make(map[string]State, len(breakers))
	for _, b := range breakers {
		states[b.Name()] = b.State()
	}
	return states
}
