package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/flowline/cron"
	"github.com/xraph/flowline/execution"
	"github.com/xraph/flowline/workflow"
)

// runStep executes one step and then walks its successors. Suspensions
// bubble up untouched; failures are routed through the step's error
// handler first.
func (ex *Executor) runStep(ctx context.Context, def *workflow.Definition, exec *execution.Execution, stepID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	step := def.Step(stepID)
	if step == nil {
		return fmt.Errorf("workflow %s has no step %q", def.ID, stepID)
	}

	ex.mu.Lock()
	rec := exec.BeginStep(step)
	ex.mu.Unlock()
	ex.logger.Debug("step started",
		slog.String("execution_id", exec.ID.String()),
		slog.String("step_id", step.ID),
		slog.String("type", string(step.Type)),
	)

	// ACTION steps race their timeout per attempt inside runAction;
	// every other type races it around the whole handler.
	stepCtx := ctx
	if step.Timeout > 0 && step.Type != workflow.StepAction {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	output, successors, err := ex.executeStep(stepCtx, def, exec, step, rec)
	if err != nil {
		var susp *SuspendError
		if errors.As(err, &susp) {
			if susp.StepID == "" {
				susp.StepID = step.ID
			}
			ex.mu.Lock()
			rec.Finish(execution.StepWaiting, nil)
			ex.mu.Unlock()
			return err
		}
		return ex.handleFailure(ctx, def, exec, step, rec, err)
	}

	ex.mu.Lock()
	rec.Output = output
	rec.Finish(execution.StepCompleted, nil)
	if output != nil {
		exec.Context.RecordOutput(step.ID, output)
	}
	ex.mu.Unlock()
	ex.hooks.EmitStepCompleted(ctx, exec, rec, time.Since(rec.StartedAt))

	return ex.walk(ctx, def, exec, successors)
}

// walk runs successor steps in order, stopping at the first error.
func (ex *Executor) walk(ctx context.Context, def *workflow.Definition, exec *execution.Execution, next []string) error {
	for _, stepID := range next {
		if err := ex.runStep(ctx, def, exec, stepID); err != nil {
			return err
		}
	}
	return nil
}

// executeStep dispatches on the step type. It returns the step's output
// map (nil for stepless kinds) and the successor ids to walk on success.
func (ex *Executor) executeStep(ctx context.Context, def *workflow.Definition, exec *execution.Execution, step *workflow.Step, rec *execution.StepExecution) (map[string]any, []string, error) {
	switch step.Type {
	case workflow.StepAction:
		out, err := ex.runAction(ctx, exec, step, rec)
		return out, step.Next, err
	case workflow.StepCondition:
		next, err := ex.runCondition(exec, step)
		return nil, next, err
	case workflow.StepParallel:
		err := ex.runParallel(ctx, def, exec, step, rec)
		return nil, step.Next, err
	case workflow.StepLoop:
		err := ex.runLoop(ctx, def, exec, step, rec)
		return nil, step.Next, err
	case workflow.StepDelay:
		err := ex.runDelay(ctx, step)
		return nil, step.Next, err
	case workflow.StepApproval:
		return nil, nil, ex.runApproval(ctx, exec, step, rec)
	case workflow.StepSubworkflow:
		return nil, nil, ex.runSubworkflow(exec, step)
	case workflow.StepTransform:
		err := ex.runTransform(exec, step)
		return nil, step.Next, err
	default:
		return nil, nil, fmt.Errorf("step %s has unknown type %q", step.ID, step.Type)
	}
}

// handleFailure finalizes the step record and applies the step-level
// error handler. A nil return means the failure was absorbed and the
// walk may continue (or stop, for IGNORE).
func (ex *Executor) handleFailure(ctx context.Context, def *workflow.Definition, exec *execution.Execution, step *workflow.Step, rec *execution.StepExecution, stepErr error) error {
	ex.mu.Lock()
	rec.Finish(execution.StepFailed, toExecutionError(stepErr))
	ex.mu.Unlock()
	ex.hooks.EmitStepFailed(ctx, exec, rec, stepErr)

	handler := workflow.ErrorHandler{Type: workflow.HandleFail}
	if step.OnError != nil {
		handler = *step.OnError
	}

	switch handler.Type {
	case workflow.HandleIgnore:
		ex.logger.Warn("step failure ignored",
			slog.String("execution_id", exec.ID.String()),
			slog.String("step_id", step.ID),
			slog.String("error", stepErr.Error()),
		)
		return nil

	case workflow.HandleFallback:
		if handler.FallbackStep != "" {
			return ex.runStep(ctx, def, exec, handler.FallbackStep)
		}
		output, ok := handler.FallbackValue.(map[string]any)
		if !ok {
			output = map[string]any{"value": handler.FallbackValue}
		}
		ex.mu.Lock()
		rec.Output = output
		exec.Context.RecordOutput(step.ID, output)
		ex.mu.Unlock()
		return ex.walk(ctx, def, exec, step.Next)

	case workflow.HandleCompensate:
		if cerr := ex.runCompensations(ctx, exec, step.ID, step.Compensation); cerr != nil {
			ex.logger.Error("step compensation failed",
				slog.String("execution_id", exec.ID.String()),
				slog.String("step_id", step.ID),
				slog.String("error", cerr.Error()),
			)
		}
		return stepErr

	case workflow.HandleEscalate:
		ex.hooks.EmitStepEscalated(ctx, exec, rec, handler.EscalateTo, stepErr)
		return stepErr

	default:
		return stepErr
	}
}

// ── CONDITION ────────────────────────────────────────

// runCondition returns the first branch whose predicate holds, the
// default branch when none do, or no successor at all.
func (ex *Executor) runCondition(exec *execution.Execution, step *workflow.Step) ([]string, error) {
	cfg := step.Condition
	if cfg == nil {
		return nil, fmt.Errorf("step %s has no condition config", step.ID)
	}

	ex.mu.Lock()
	defer ex.mu.Unlock()
	for i, b := range cfg.Branches {
		ok, err := ex.eval.Evaluate(b.When, exec.Context)
		if err != nil {
			return nil, fmt.Errorf("step %s branch %d: %w", step.ID, i, err)
		}
		if ok {
			return []string{b.Next}, nil
		}
	}
	if cfg.DefaultBranch != "" {
		return []string{cfg.DefaultBranch}, nil
	}
	ex.logger.Warn("no condition branch matched",
		slog.String("execution_id", exec.ID.String()),
		slog.String("step_id", step.ID),
	)
	return nil, nil
}

// ── PARALLEL ─────────────────────────────────────────

func (ex *Executor) runParallel(ctx context.Context, def *workflow.Definition, exec *execution.Execution, step *workflow.Step, rec *execution.StepExecution) error {
	cfg := step.Parallel
	if cfg == nil || len(cfg.Branches) == 0 {
		return fmt.Errorf("step %s has no parallel branches", step.ID)
	}

	switch cfg.Join {
	case workflow.JoinAll, "":
		g, gctx := errgroup.WithContext(ctx)
		for _, b := range cfg.Branches {
			b := b
			g.Go(func() error {
				err := ex.runStep(gctx, def, exec, b.StartStep)
				ex.recordBranch(rec, b.Name, err)
				return err
			})
		}
		return g.Wait()

	case workflow.JoinAny:
		return ex.joinAny(ctx, def, exec, step, rec)

	case workflow.JoinNofM:
		required := cfg.RequiredCount
		if required <= 0 || required > len(cfg.Branches) {
			return fmt.Errorf("step %s requires %d of %d branches", step.ID, required, len(cfg.Branches))
		}
		return ex.joinQuorum(ctx, def, exec, step, rec, required)

	default:
		return fmt.Errorf("step %s has unknown join policy %q", step.ID, cfg.Join)
	}
}

// joinAny settles on the first branch to finish, success or failure.
// The other branches are not cancelled; they run out on their own.
func (ex *Executor) joinAny(ctx context.Context, def *workflow.Definition, exec *execution.Execution, step *workflow.Step, rec *execution.StepExecution) error {
	cfg := step.Parallel
	results := make(chan error, len(cfg.Branches))
	for _, b := range cfg.Branches {
		b := b
		go func() {
			err := ex.runStep(ctx, def, exec, b.StartStep)
			ex.recordBranch(rec, b.Name, err)
			results <- err
		}()
	}
	return <-results
}

// joinQuorum runs every branch and settles once the required number
// succeed, or once the failure count makes the quorum unreachable.
// Either way the remaining branches are cancelled and drained before
// returning.
func (ex *Executor) joinQuorum(ctx context.Context, def *workflow.Definition, exec *execution.Execution, step *workflow.Step, rec *execution.StepExecution, required int) error {
	cfg := step.Parallel
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan error, len(cfg.Branches))
	for _, b := range cfg.Branches {
		b := b
		go func() {
			err := ex.runStep(ctx, def, exec, b.StartStep)
			ex.recordBranch(rec, b.Name, err)
			results <- err
		}()
	}

	var successes, failures int
	var firstErr error
	var susp *SuspendError
	for range cfg.Branches {
		err := <-results
		if err == nil {
			successes++
			if successes == required {
				cancel()
			}
			continue
		}
		failures++
		if failures > len(cfg.Branches)-required {
			cancel()
		}
		var s *SuspendError
		if errors.As(err, &s) && susp == nil {
			susp = s
		}
		if firstErr == nil {
			firstErr = err
		}
	}

	if successes >= required {
		return nil
	}
	if susp != nil {
		return susp
	}
	if firstErr != nil {
		return firstErr
	}
	return fmt.Errorf("step %s: %d of %d branches succeeded, %d required",
		step.ID, successes, len(cfg.Branches), required)
}

func (ex *Executor) recordBranch(rec *execution.StepExecution, name string, err error) {
	res := execution.BranchResult{Name: name, Success: err == nil}
	if err != nil {
		res.Error = err.Error()
	}
	ex.mu.Lock()
	rec.Branches = append(rec.Branches, res)
	ex.mu.Unlock()
}

// ── LOOP ─────────────────────────────────────────────

func (ex *Executor) runLoop(ctx context.Context, def *workflow.Definition, exec *execution.Execution, step *workflow.Step, rec *execution.StepExecution) error {
	cfg := step.Loop
	if cfg == nil {
		return fmt.Errorf("step %s has no loop config", step.ID)
	}

	ex.mu.Lock()
	resolved := exec.Context.ResolveTemplates(cfg.Collection)
	ex.mu.Unlock()
	items, ok := resolved.([]any)
	if !ok {
		return fmt.Errorf("step %s: collection %q did not resolve to a list", step.ID, cfg.Collection)
	}

	bound := cfg.MaxIterations
	if bound <= 0 {
		bound = ex.cfg.DefaultMaxIterations
	}
	if len(items) > bound {
		return fmt.Errorf("step %s: %d items exceed the %d iteration limit", step.ID, len(items), bound)
	}

	var failed int
	for i, item := range items {
		ex.mu.Lock()
		exec.Context.Set(cfg.ItemVar, item)
		if cfg.IndexVar != "" {
			exec.Context.Set(cfg.IndexVar, i)
		}
		ex.mu.Unlock()

		err := ex.runStep(ctx, def, exec, cfg.BodyStep)

		ex.mu.Lock()
		res := execution.IterationResult{Index: i, Success: err == nil}
		if err != nil {
			res.Error = err.Error()
		} else if out, ok := exec.Context.Outputs[cfg.BodyStep]; ok {
			res.Output = out
		}
		rec.Iterations = append(rec.Iterations, res)
		ex.mu.Unlock()

		if err != nil {
			var susp *SuspendError
			if errors.As(err, &susp) {
				return err
			}
			if !cfg.ContinueOnError {
				return err
			}
			failed++
		}
	}

	ex.mu.Lock()
	exec.Context.Delete(cfg.ItemVar)
	if cfg.IndexVar != "" {
		exec.Context.Delete(cfg.IndexVar)
	}
	ex.mu.Unlock()

	if failed > 0 {
		ex.logger.Warn("loop completed with failed iterations",
			slog.String("execution_id", exec.ID.String()),
			slog.String("step_id", step.ID),
			slog.Int("failed", failed),
			slog.Int("total", len(items)),
		)
	}
	return nil
}

// ── DELAY ────────────────────────────────────────────

// runDelay sleeps inline for DURATION delays. UNTIL and SCHEDULE delays
// suspend the execution so it survives a process restart.
func (ex *Executor) runDelay(ctx context.Context, step *workflow.Step) error {
	cfg := step.Delay
	if cfg == nil {
		return fmt.Errorf("step %s has no delay config", step.ID)
	}

	switch cfg.Kind {
	case workflow.DelayDuration:
		return ex.sleep(ctx, cfg.Duration)

	case workflow.DelayUntil:
		if !cfg.Until.After(time.Now()) {
			return nil
		}
		resume := cfg.Until
		return &SuspendError{Reason: SuspendDelayUntil, StepID: step.ID, ResumeAt: &resume}

	case workflow.DelaySchedule:
		next, err := cron.Next(cfg.Cron, "", time.Now())
		if err != nil {
			return fmt.Errorf("step %s: %w", step.ID, err)
		}
		return &SuspendError{Reason: SuspendDelaySchedule, StepID: step.ID, ResumeAt: &next}

	default:
		return fmt.Errorf("step %s has unknown delay kind %q", step.ID, cfg.Kind)
	}
}

// ── APPROVAL ─────────────────────────────────────────

func (ex *Executor) runApproval(ctx context.Context, exec *execution.Execution, step *workflow.Step, rec *execution.StepExecution) error {
	cfg := step.Approval
	if cfg == nil {
		return fmt.Errorf("step %s has no approval config", step.ID)
	}
	ex.hooks.EmitApprovalRequested(ctx, exec, rec, cfg.Approvers, cfg.Message)
	return &SuspendError{Reason: SuspendApproval, StepID: step.ID}
}

// ── SUBWORKFLOW ──────────────────────────────────────

func (ex *Executor) runSubworkflow(exec *execution.Execution, step *workflow.Step) error {
	cfg := step.Subworkflow
	if cfg == nil {
		return fmt.Errorf("step %s has no subworkflow config", step.ID)
	}
	return &SuspendError{
		Reason:     SuspendSubworkflow,
		StepID:     step.ID,
		WorkflowID: cfg.WorkflowID,
		Input:      ex.resolveInput(exec, cfg.Input),
	}
}

// ── TRANSFORM ────────────────────────────────────────

func (ex *Executor) runTransform(exec *execution.Execution, step *workflow.Step) error {
	cfg := step.Transform
	if cfg == nil {
		return fmt.Errorf("step %s has no transform config", step.ID)
	}

	ex.mu.Lock()
	defer ex.mu.Unlock()
	for _, op := range cfg.Operations {
		value := exec.Context.ResolveTemplates(op.Value)
		switch op.Op {
		case workflow.TransformSet:
			exec.Context.SetPath(op.Path, value)
		case workflow.TransformAppend:
			exec.Context.AppendPath(op.Path, value)
		case workflow.TransformMerge:
			exec.Context.MergePath(op.Path, value)
		case workflow.TransformDelete:
			exec.Context.DeletePath(op.Path)
		default:
			return fmt.Errorf("step %s has unknown transform op %q", step.ID, op.Op)
		}
	}
	return nil
}
