// Package middleware provides composable middleware for action invocation.
// Middleware wraps action calls synchronously and can modify execution
// (recover from panics, inject tenant, log, add tracing, etc.).
package middleware

import (
	"context"
	"time"
)

// Invocation describes one action call about to be made by the executor.
type Invocation struct {
	TenantID    string
	ExecutionID string
	WorkflowID  string
	StepID      string
	ActionType  string
	Attempt     int
	Timeout     time.Duration
}

// Handler is the terminal function that executes the action.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the invocation being made, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, inv *Invocation, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, tenant) executes as:
//
//	logging → recover → tenant → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) error {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, inv, prev)
			}
		}
		return h(ctx)
	}
}
