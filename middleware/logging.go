package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs invocation start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *Invocation, next Handler) error {
		logger.Info("action started",
			slog.String("action_type", inv.ActionType),
			slog.String("step_id", inv.StepID),
			slog.String("execution_id", inv.ExecutionID),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("action failed",
				slog.String("action_type", inv.ActionType),
				slog.String("step_id", inv.StepID),
				slog.String("execution_id", inv.ExecutionID),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("action completed",
				slog.String("action_type", inv.ActionType),
				slog.String("step_id", inv.StepID),
				slog.String("execution_id", inv.ExecutionID),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
