package executor

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/flowline/action"
	"github.com/xraph/flowline/breaker"
	"github.com/xraph/flowline/condition"
	"github.com/xraph/flowline/execution"
	"github.com/xraph/flowline/middleware"
	"github.com/xraph/flowline/workflow"
)

// runAction invokes an ACTION step's handler through the circuit
// breaker, retrying retryable failures per the step's policy.
func (ex *Executor) runAction(ctx context.Context, exec *execution.Execution, step *workflow.Step, rec *execution.StepExecution) (map[string]any, error) {
	cfg := step.Action
	if cfg == nil {
		return nil, errors.New("step " + step.ID + " has no action config")
	}

	policy := ex.retry
	if cfg.Retry != nil {
		policy = *cfg.Retry
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	input := ex.resolveInput(exec, cfg.Input)
	ex.mu.Lock()
	rec.Input = input
	ex.mu.Unlock()

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = ex.cfg.DefaultStepTimeout
	}

	attempt := 1
	for {
		output, err := ex.invoke(ctx, exec, step, input, attempt, timeout)
		if err == nil {
			ex.applyOutputMapping(exec, cfg.OutputMapping, output)
			return output, nil
		}

		// An open circuit fails fast. Retrying would only feed it.
		if errors.Is(err, breaker.ErrOpen) {
			return nil, err
		}
		if !action.Retryable(err) || attempt >= maxAttempts {
			return nil, err
		}

		delay := policy.Delay(attempt + 1)
		ex.hooks.EmitStepRetried(ctx, exec, rec, attempt, delay)
		ex.mu.Lock()
		rec.RetryCount++
		ex.mu.Unlock()
		if serr := ex.sleep(ctx, delay); serr != nil {
			return nil, serr
		}
		attempt++
	}
}

// invoke performs one attempt: breaker outermost, then the middleware
// chain, then the handler under a per-attempt timeout.
func (ex *Executor) invoke(ctx context.Context, exec *execution.Execution, step *workflow.Step, input map[string]any, attempt int, timeout time.Duration) (map[string]any, error) {
	var output map[string]any
	call := func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		res, err := ex.actions.Execute(tctx, step.Action.ActionType, action.Input{
			Params: input,
			Vars:   exec.Context,
		})
		if err != nil {
			return err
		}
		if rerr := res.Err(); rerr != nil {
			return rerr
		}
		output = res.Output
		return nil
	}

	handler := call
	if ex.chain != nil {
		inv := &middleware.Invocation{
			TenantID:    exec.TenantID,
			ExecutionID: exec.ID.String(),
			WorkflowID:  exec.WorkflowID.String(),
			StepID:      step.ID,
			ActionType:  step.Action.ActionType,
			Attempt:     attempt,
			Timeout:     timeout,
		}
		handler = func(ctx context.Context) error {
			return ex.chain(ctx, inv, call)
		}
	}

	if err := ex.breakers.Do(ctx, step.Action.ActionType, handler); err != nil {
		return nil, err
	}
	return output, nil
}

// applyOutputMapping copies mapped output fields into context variables.
// Keys are paths into the output map, values are variable names.
func (ex *Executor) applyOutputMapping(exec *execution.Execution, mapping map[string]string, output map[string]any) {
	if len(mapping) == 0 {
		return
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	for path, varName := range mapping {
		if v, ok := condition.Lookup(output, path); ok {
			exec.Context.Set(varName, v)
		}
	}
}
