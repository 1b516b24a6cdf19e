package middleware

import (
	"context"

	"github.com/xraph/flowline/tenant"
)

// Tenant returns middleware that restores the execution's tenant identity
// into the context. This ensures action handlers see the same tenant as
// the caller that started the execution.
func Tenant() Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) error {
		ctx = tenant.Restore(ctx, inv.TenantID)
		return next(ctx)
	}
}
