package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/flowline/cron"
	"github.com/xraph/flowline/execution"
	"github.com/xraph/flowline/ext"
	"github.com/xraph/flowline/id"
	"github.com/xraph/flowline/observability"
	"github.com/xraph/flowline/workflow"
)

// recordingMetrics counts calls for verification.
type recordingMetrics struct {
	mu            sync.Mutex
	executions    int
	steps         int
	successes     int
	stepDurations []time.Duration
	errs          []string
	schedules     int
}

func (m *recordingMetrics) RecordExecution(_ context.Context, _ *execution.Execution, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions++
}

func (m *recordingMetrics) RecordStepExecution(_ context.Context, _, _ string, elapsed time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps++
	m.stepDurations = append(m.stepDurations, elapsed)
	if success {
		m.successes++
	}
}

func (m *recordingMetrics) RecordError(_ context.Context, _, code, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, code)
}

func (m *recordingMetrics) RecordScheduleFired(_ context.Context, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules++
}

func newTestExecution() *execution.Execution {
	def := &workflow.Definition{
		ID:        id.NewWorkflowID(),
		VersionID: id.NewVersionID(),
		TenantID:  "tenant-1",
		Name:      "order-flow",
	}
	return execution.New(def, execution.NewContext(nil), "")
}

func TestMetricsExtension_Name(t *testing.T) {
	e := observability.NewMetricsExtensionWith(observability.NoopMetrics{})
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_ExecutionCompleted(t *testing.T) {
	m := &recordingMetrics{}
	e := observability.NewMetricsExtensionWith(m)

	if err := e.OnExecutionCompleted(context.Background(), newTestExecution(), 100*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.executions != 1 {
		t.Errorf("executions: want 1, got %d", m.executions)
	}
}

func TestMetricsExtension_ExecutionFailedRecordsErrorCode(t *testing.T) {
	m := &recordingMetrics{}
	e := observability.NewMetricsExtensionWith(m)

	x := newTestExecution()
	x.Error = &execution.Error{Code: "TIMEOUT", Message: "deadline exceeded"}

	if err := e.OnExecutionFailed(context.Background(), x, errors.New("deadline exceeded")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.executions != 1 {
		t.Errorf("executions: want 1, got %d", m.executions)
	}
	if len(m.errs) != 1 || m.errs[0] != "TIMEOUT" {
		t.Errorf("errs: want [TIMEOUT], got %v", m.errs)
	}
}

func TestMetricsExtension_StepOutcomes(t *testing.T) {
	m := &recordingMetrics{}
	e := observability.NewMetricsExtensionWith(m)

	x := newTestExecution()
	ok := &execution.StepExecution{StepID: "validate", Type: workflow.StepAction}
	bad := &execution.StepExecution{
		StepID: "charge",
		Type:   workflow.StepAction,
		Error:  &execution.Error{Code: "NETWORK", Message: "refused"},
	}

	if err := e.OnStepCompleted(context.Background(), x, ok, 20*time.Millisecond); err != nil {
		t.Fatalf("OnStepCompleted: %v", err)
	}
	if err := e.OnStepFailed(context.Background(), x, bad, errors.New("refused")); err != nil {
		t.Fatalf("OnStepFailed: %v", err)
	}

	if m.steps != 2 || m.successes != 1 {
		t.Errorf("steps/successes = %d/%d, want 2/1", m.steps, m.successes)
	}
	if len(m.errs) != 1 || m.errs[0] != "NETWORK" {
		t.Errorf("errs: want [NETWORK], got %v", m.errs)
	}
}

func TestMetricsExtension_StepFailedElapsedFromRecord(t *testing.T) {
	m := &recordingMetrics{}
	e := observability.NewMetricsExtensionWith(m)

	started := time.Date(2026, 1, 24, 10, 0, 0, 0, time.UTC)
	finished := started.Add(750 * time.Millisecond)
	rec := &execution.StepExecution{
		StepID:     "charge",
		Type:       workflow.StepAction,
		StartedAt:  started,
		FinishedAt: &finished,
		Error:      &execution.Error{Code: "NETWORK", Message: "refused"},
	}
	if err := e.OnStepFailed(context.Background(), newTestExecution(), rec, errors.New("refused")); err != nil {
		t.Fatalf("OnStepFailed: %v", err)
	}
	if len(m.stepDurations) != 1 || m.stepDurations[0] != 750*time.Millisecond {
		t.Errorf("recorded durations = %v, want [750ms]", m.stepDurations)
	}

	// An unfinished record reports a zero elapsed rather than a bogus one.
	open := &execution.StepExecution{StepID: "charge", Type: workflow.StepAction, StartedAt: started}
	if err := e.OnStepFailed(context.Background(), newTestExecution(), open, errors.New("refused")); err != nil {
		t.Fatalf("OnStepFailed: %v", err)
	}
	if m.stepDurations[1] != 0 {
		t.Errorf("unfinished record elapsed = %v, want 0", m.stepDurations[1])
	}
}

func TestMetricsExtension_ScheduleFired(t *testing.T) {
	m := &recordingMetrics{}
	e := observability.NewMetricsExtensionWith(m)

	j := &cron.Job{ID: id.NewScheduleID(), WorkflowID: id.NewWorkflowID()}
	if err := e.OnScheduleFired(context.Background(), j); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.schedules != 1 {
		t.Errorf("schedules: want 1, got %d", m.schedules)
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	m := &recordingMetrics{}
	e := observability.NewMetricsExtensionWith(m)

	reg := ext.NewRegistry(slog.Default())
	reg.Register(e)

	ctx := context.Background()
	x := newTestExecution()
	step := &execution.StepExecution{StepID: "s1", Type: workflow.StepAction}

	reg.EmitExecutionCompleted(ctx, x, 50*time.Millisecond)
	reg.EmitExecutionFailed(ctx, x, errors.New("fail"))
	reg.EmitExecutionCancelled(ctx, x)
	reg.EmitStepCompleted(ctx, x, step, time.Second)
	reg.EmitStepFailed(ctx, x, step, errors.New("bad"))
	reg.EmitScheduleFired(ctx, &cron.Job{WorkflowID: x.WorkflowID})

	if m.executions != 3 {
		t.Errorf("executions: want 3, got %d", m.executions)
	}
	if m.steps != 2 {
		t.Errorf("steps: want 2, got %d", m.steps)
	}
	if m.schedules != 1 {
		t.Errorf("schedules: want 1, got %d", m.schedules)
	}
}
