package action

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrDuplicateAction is returned when registering a handler for an
// action type that already has one.
var ErrDuplicateAction = errors.New("action: type already registered")

// ErrUnknownAction is returned when executing an unregistered action type.
var ErrUnknownAction = errors.New("action: unknown type")

// Registry maps action types to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty action registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler. A second handler for the same action type is
// rejected rather than silently replaced.
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[h.Type()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAction, h.Type())
	}
	r.handlers[h.Type()] = h
	return nil
}

// MustRegister is Register that panics on a duplicate. For wiring built-in
// handlers at startup.
func (r *Registry) MustRegister(h Handler) {
	if err := r.Register(h); err != nil {
		panic(err)
	}
}

// Get returns the handler for an action type.
func (r *Registry) Get(actionType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[actionType]
	return h, ok
}

// Types returns all registered action types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Execute validates the input against the handler's spec and runs the
// handler, packaging the outcome as a Result. Validation failures and
// handler errors both surface as failed Results; only an unknown action
// type is reported as a plain error.
func (r *Registry) Execute(ctx context.Context, actionType string, in Input) (Result, error) {
	h, ok := r.Get(actionType)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownAction, actionType)
	}

	start := time.Now()
	if verr := h.Spec().Validate(in.Params); verr != nil {
		return Result{
			Success:  false,
			Error:    verr,
			Metadata: Metadata{Duration: time.Since(start)},
		}, nil
	}

	output, err := h.Execute(ctx, in)
	res := Result{
		Success:  err == nil,
		Output:   output,
		Metadata: Metadata{Duration: time.Since(start)},
	}
	if err != nil {
		res.Output = nil
		res.Error = AsError(err)
	}
	return res, nil
}
