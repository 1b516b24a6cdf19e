// Package executor walks a workflow definition's step graph against a
// live execution: invoking actions with retries through circuit
// breakers, routing conditions, fanning out parallel branches, iterating
// loops, applying transforms, and dispatching error handlers including
// reverse-order compensation.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	flowline "github.com/xraph/flowline"
	"github.com/xraph/flowline/action"
	"github.com/xraph/flowline/backoff"
	"github.com/xraph/flowline/breaker"
	"github.com/xraph/flowline/condition"
	"github.com/xraph/flowline/execution"
	"github.com/xraph/flowline/ext"
	"github.com/xraph/flowline/middleware"
	"github.com/xraph/flowline/workflow"
)

// Executor runs executions to completion, suspension, or failure.
// A single Executor is shared by all executions; per-execution state
// lives on the Execution itself.
type Executor struct {
	actions  *action.Registry
	breakers *breaker.Registry
	eval     *condition.Evaluator
	hooks    *ext.Registry
	logger   *slog.Logger
	cfg      flowline.Config
	retry    backoff.Policy
	chain    middleware.Middleware

	// sleep is injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error

	// mu serializes execution-record and context mutations made by
	// concurrent parallel branches.
	mu sync.Mutex
}

// Option configures an Executor.
type Option func(*Executor)

// WithConfig overrides the engine defaults.
func WithConfig(cfg flowline.Config) Option {
	return func(ex *Executor) { ex.cfg = cfg }
}

// WithRetryPolicy sets the default retry policy for ACTION steps that
// declare none of their own.
func WithRetryPolicy(p backoff.Policy) Option {
	return func(ex *Executor) { ex.retry = p }
}

// WithMiddleware installs a middleware chain around every action
// invocation.
func WithMiddleware(mw middleware.Middleware) Option {
	return func(ex *Executor) { ex.chain = mw }
}

// WithSleep overrides the delay function used for retries and DURATION
// delays. Tests use this to avoid real waits.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(ex *Executor) { ex.sleep = sleep }
}

// New creates an Executor.
func New(actions *action.Registry, breakers *breaker.Registry, hooks *ext.Registry, logger *slog.Logger, opts ...Option) *Executor {
	ex := &Executor{
		actions:  actions,
		breakers: breakers,
		eval:     condition.NewEvaluator(),
		hooks:    hooks,
		logger:   logger,
		cfg:      flowline.DefaultConfig(),
		retry:    backoff.DefaultPolicy(),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(ex)
	}
	return ex
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run drives an execution from PENDING to a settled state: COMPLETED,
// WAITING (returned as *SuspendError), FAILED, CANCELLED, or TIMED_OUT.
// The caller persists the execution after Run returns.
func (ex *Executor) Run(ctx context.Context, def *workflow.Definition, exec *execution.Execution) error {
	if err := exec.TransitionTo(execution.StatusRunning); err != nil {
		return err
	}
	ex.hooks.EmitExecutionStarted(ctx, exec)
	ex.logger.Info("execution started",
		slog.String("execution_id", exec.ID.String()),
		slog.String("workflow_id", exec.WorkflowID.String()),
		slog.String("tenant_id", exec.TenantID),
	)

	var runErr error
	for _, entry := range def.EntryPoints() {
		if runErr = ex.runStep(ctx, def, exec, entry); runErr != nil {
			break
		}
	}

	var susp *SuspendError
	switch {
	case runErr == nil:
		if err := exec.TransitionTo(execution.StatusCompleted); err != nil {
			return err
		}
		ex.hooks.EmitExecutionCompleted(ctx, exec, exec.Duration())
		ex.logger.Info("execution completed",
			slog.String("execution_id", exec.ID.String()),
			slog.Duration("elapsed", exec.Duration()),
		)
		return nil

	case errors.As(runErr, &susp):
		if err := exec.TransitionTo(execution.StatusWaiting); err != nil {
			return err
		}
		ex.hooks.EmitExecutionWaiting(ctx, exec, susp.Reason)
		ex.logger.Info("execution waiting",
			slog.String("execution_id", exec.ID.String()),
			slog.String("reason", susp.Reason),
			slog.String("step_id", susp.StepID),
		)
		return runErr

	case errors.Is(runErr, context.Canceled):
		exec.Error = toExecutionError(runErr)
		if err := exec.TransitionTo(execution.StatusCancelled); err != nil {
			return err
		}
		ex.hooks.EmitExecutionCancelled(ctx, exec)
		return runErr

	default:
		return ex.fail(ctx, def, exec, runErr)
	}
}

// fail applies the workflow-level error handler and moves the execution
// to its terminal failure state.
func (ex *Executor) fail(ctx context.Context, def *workflow.Definition, exec *execution.Execution, runErr error) error {
	handler := workflow.ErrorHandler{Type: workflow.HandleFail}
	if def.OnError != nil {
		handler = *def.OnError
	}

	switch handler.Type {
	case workflow.HandleIgnore:
		ex.logger.Warn("execution error ignored by workflow policy",
			slog.String("execution_id", exec.ID.String()),
			slog.String("error", runErr.Error()),
		)
		if err := exec.TransitionTo(execution.StatusCompleted); err != nil {
			return err
		}
		ex.hooks.EmitExecutionCompleted(ctx, exec, exec.Duration())
		return nil

	case workflow.HandleFallback:
		if handler.FallbackStep != "" {
			if fbErr := ex.runStep(ctx, def, exec, handler.FallbackStep); fbErr == nil {
				if err := exec.TransitionTo(execution.StatusCompleted); err != nil {
					return err
				}
				ex.hooks.EmitExecutionCompleted(ctx, exec, exec.Duration())
				return nil
			}
			ex.logger.Error("workflow fallback step failed",
				slog.String("execution_id", exec.ID.String()),
				slog.String("fallback_step", handler.FallbackStep),
			)
		}

	case workflow.HandleCompensate:
		if err := exec.TransitionTo(execution.StatusCompensating); err != nil {
			return err
		}
		ex.hooks.EmitCompensationStarted(ctx, exec)
		compErr := ex.compensate(ctx, def, exec)
		ex.hooks.EmitCompensationCompleted(ctx, exec, compErr)
		if compErr != nil {
			ex.logger.Error("compensation sweep failed",
				slog.String("execution_id", exec.ID.String()),
				slog.String("error", compErr.Error()),
			)
		}

	case workflow.HandleEscalate:
		ex.logger.Error("execution error escalated",
			slog.String("execution_id", exec.ID.String()),
			slog.String("escalate_to", handler.EscalateTo),
			slog.String("error", runErr.Error()),
		)
	}

	exec.Error = toExecutionError(runErr)
	status := execution.StatusFailed
	if errors.Is(runErr, context.DeadlineExceeded) && ctx.Err() != nil {
		status = execution.StatusTimedOut
	}
	if err := exec.TransitionTo(status); err != nil {
		return err
	}
	ex.hooks.EmitExecutionFailed(ctx, exec, runErr)
	ex.logger.Error("execution failed",
		slog.String("execution_id", exec.ID.String()),
		slog.String("status", string(status)),
		slog.String("error", runErr.Error()),
	)
	return runErr
}

// compensate undoes completed steps in reverse completion order. A
// failed compensation marked Required aborts the sweep; the rest log
// and continue.
func (ex *Executor) compensate(ctx context.Context, def *workflow.Definition, exec *execution.Execution) error {
	done := exec.CompletedSteps()
	for i := len(done) - 1; i >= 0; i-- {
		step := def.Step(done[i].StepID)
		if step == nil || len(step.Compensation) == 0 {
			continue
		}
		if err := ex.runCompensations(ctx, exec, step.ID, step.Compensation); err != nil {
			return err
		}
	}
	return nil
}

func (ex *Executor) runCompensations(ctx context.Context, exec *execution.Execution, stepID string, actions []workflow.CompensationAction) error {
	for _, ca := range actions {
		in := action.Input{
			Params: ex.resolveInput(exec, ca.Input),
			Vars:   exec.Context,
		}
		res, err := ex.actions.Execute(ctx, ca.ActionType, in)
		if err == nil {
			err = res.Err()
		}
		if err == nil {
			continue
		}
		if ca.Required {
			return err
		}
		ex.logger.Warn("optional compensation failed",
			slog.String("execution_id", exec.ID.String()),
			slog.String("step_id", stepID),
			slog.String("action_type", ca.ActionType),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// resolveInput template-resolves an input map under the executor mutex.
func (ex *Executor) resolveInput(exec *execution.Execution, input map[string]any) map[string]any {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return exec.Context.ResolveInput(input)
}

// toExecutionError converts an executor failure into the structured
// error carried on the execution record.
func toExecutionError(err error) *execution.Error {
	e := &execution.Error{
		Message:   err.Error(),
		Timestamp: time.Now(),
	}

	var ae *action.Error
	switch {
	case errors.As(err, &ae):
		e.Code = ae.Code
		if e.Code == "" {
			e.Code = string(ae.Kind)
		}
		e.Retryable = ae.Retryable()
	case errors.Is(err, breaker.ErrOpen):
		e.Code = "CIRCUIT_OPEN"
		e.Retryable = true
	case errors.Is(err, context.DeadlineExceeded):
		e.Code = "TIMEOUT"
		e.Retryable = true
	case errors.Is(err, context.Canceled):
		e.Code = "CANCELLED"
	default:
		e.Code = "INTERNAL"
	}
	return e
}
