// Package tenant provides helpers to capture and restore the tenant
// identity carried on a context.Context.
//
// The engine stamps every execution with the tenant that started it;
// middleware restores that tenant into the context before action handlers
// run, so handlers see the same scope as the original caller.
package tenant

import "context"

type ctxKey struct{}

// Capture extracts the tenant identifier from the context.
// Returns the empty string if no tenant is present.
func Capture(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// Restore attaches a tenant identifier to the context. If tenantID is
// empty, the context is returned unchanged (no-op).
func Restore(ctx context.Context, tenantID string) context.Context {
	if tenantID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, tenantID)
}
