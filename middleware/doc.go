// Package middleware provides composable middleware for action invocation.
//
// A [Middleware] is a function that wraps an action call made by the
// executor. Middleware are composed into a chain using [Chain] and applied
// before each action executes. They are applied right-to-left: the first
// middleware in the slice is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] — logs action type, step id, duration, and outcome
//   - [Recover] — catches panics and converts them to errors
//   - [Timeout] — cancels the invocation context after a configured duration
//   - [Tracing] — wraps the invocation in an OpenTelemetry span
//   - [Metrics] — records per-action duration and outcome counters
//   - [Tenant] — restores the execution's tenant identity into the context
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, inv *middleware.Invocation, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting (e.g., circuit breaking, rate limiting).
package middleware
