package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors and logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("action handler panicked",
					slog.String("action_type", inv.ActionType),
					slog.String("step_id", inv.StepID),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic in action %s: %v", inv.ActionType, r)
			}
		}()
		return next(ctx)
	}
}
