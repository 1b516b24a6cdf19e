package audithook_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	ah "github.com/xraph/flowline/audit_hook"
	"github.com/xraph/flowline/cron"
	"github.com/xraph/flowline/execution"
	"github.com/xraph/flowline/ext"
	"github.com/xraph/flowline/id"
	"github.com/xraph/flowline/workflow"
)

// ── Mock recorder ────────────────────────────────────

// mockRecorder captures audit events for verification.
type mockRecorder struct {
	mu     sync.Mutex
	events []*ah.AuditEvent
}

func (m *mockRecorder) Record(_ context.Context, evt *ah.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockRecorder) last() *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockRecorder) findByAction(action string) *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, evt := range m.events {
		if evt.Action == action {
			return evt
		}
	}
	return nil
}

// ── Test helpers ─────────────────────────────────────

func newTestDefinition() *workflow.Definition {
	return &workflow.Definition{
		ID:        id.NewWorkflowID(),
		VersionID: id.NewVersionID(),
		Version:   2,
		TenantID:  "tenant-1",
		Name:      "order-flow",
	}
}

func newTestExecution() *execution.Execution {
	return execution.New(newTestDefinition(), execution.NewContext(nil), "")
}

// ── Tests ────────────────────────────────────────────

func TestExtension_Name(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	if e.Name() != "audit-hook" {
		t.Errorf("expected name %q, got %q", "audit-hook", e.Name())
	}
}

// ── Workflow lifecycle tests ─────────────────────────

func TestExtension_WorkflowCreated(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	def := newTestDefinition()

	if err := e.OnWorkflowCreated(context.Background(), def); err != nil {
		t.Fatalf("OnWorkflowCreated: %v", err)
	}

	evt := rec.last()
	if evt == nil {
		t.Fatal("no event recorded")
	}
	if evt.Action != ah.ActionWorkflowCreated {
		t.Errorf("Action: want %q, got %q", ah.ActionWorkflowCreated, evt.Action)
	}
	if evt.Resource != ah.ResourceWorkflow {
		t.Errorf("Resource: want %q, got %q", ah.ResourceWorkflow, evt.Resource)
	}
	if evt.Category != ah.CategoryWorkflow {
		t.Errorf("Category: want %q, got %q", ah.CategoryWorkflow, evt.Category)
	}
	if evt.TenantID != "tenant-1" {
		t.Errorf("TenantID: want %q, got %q", "tenant-1", evt.TenantID)
	}
	if evt.ResourceID != def.VersionID.String() {
		t.Errorf("ResourceID: want %q, got %q", def.VersionID.String(), evt.ResourceID)
	}
	if evt.Severity != ah.SeverityInfo {
		t.Errorf("Severity: want %q, got %q", ah.SeverityInfo, evt.Severity)
	}
	if evt.Outcome != ah.OutcomeSuccess {
		t.Errorf("Outcome: want %q, got %q", ah.OutcomeSuccess, evt.Outcome)
	}
	if evt.Metadata["workflow_name"] != "order-flow" {
		t.Errorf("Metadata[workflow_name]: want %q, got %v", "order-flow", evt.Metadata["workflow_name"])
	}
	if evt.Metadata["version"] != 2 {
		t.Errorf("Metadata[version]: want %d, got %v", 2, evt.Metadata["version"])
	}
}

func TestExtension_WorkflowDeprecated(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	if err := e.OnWorkflowDeprecated(context.Background(), newTestDefinition()); err != nil {
		t.Fatalf("OnWorkflowDeprecated: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionWorkflowDeprecated {
		t.Errorf("Action: want %q, got %q", ah.ActionWorkflowDeprecated, evt.Action)
	}
	if evt.Severity != ah.SeverityWarning {
		t.Errorf("Severity: want %q, got %q", ah.SeverityWarning, evt.Severity)
	}
}

// ── Execution lifecycle tests ────────────────────────

func TestExtension_ExecutionCompleted(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	x := newTestExecution()
	elapsed := 150 * time.Millisecond

	if err := e.OnExecutionCompleted(context.Background(), x, elapsed); err != nil {
		t.Fatalf("OnExecutionCompleted: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionExecutionCompleted {
		t.Errorf("Action: want %q, got %q", ah.ActionExecutionCompleted, evt.Action)
	}
	if evt.Resource != ah.ResourceExecution {
		t.Errorf("Resource: want %q, got %q", ah.ResourceExecution, evt.Resource)
	}
	if evt.ResourceID != x.ID.String() {
		t.Errorf("ResourceID: want %q, got %q", x.ID.String(), evt.ResourceID)
	}
	if evt.Metadata["elapsed_ms"] != elapsed.Milliseconds() {
		t.Errorf("Metadata[elapsed_ms]: want %d, got %v", elapsed.Milliseconds(), evt.Metadata["elapsed_ms"])
	}
}

func TestExtension_ExecutionFailed(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	x := newTestExecution()
	execErr := errors.New("connection timeout")

	if err := e.OnExecutionFailed(context.Background(), x, execErr); err != nil {
		t.Fatalf("OnExecutionFailed: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionExecutionFailed {
		t.Errorf("Action: want %q, got %q", ah.ActionExecutionFailed, evt.Action)
	}
	if evt.Severity != ah.SeverityCritical {
		t.Errorf("Severity: want %q, got %q", ah.SeverityCritical, evt.Severity)
	}
	if evt.Outcome != ah.OutcomeFailure {
		t.Errorf("Outcome: want %q, got %q", ah.OutcomeFailure, evt.Outcome)
	}
	if evt.Reason != "connection timeout" {
		t.Errorf("Reason: want %q, got %q", "connection timeout", evt.Reason)
	}
	if evt.Metadata["error"] != "connection timeout" {
		t.Errorf("Metadata[error]: want %q, got %v", "connection timeout", evt.Metadata["error"])
	}
}

func TestExtension_ExecutionWaiting(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	if err := e.OnExecutionWaiting(context.Background(), newTestExecution(), "approval"); err != nil {
		t.Fatalf("OnExecutionWaiting: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionExecutionWaiting {
		t.Errorf("Action: want %q, got %q", ah.ActionExecutionWaiting, evt.Action)
	}
	if evt.Metadata["wait_reason"] != "approval" {
		t.Errorf("Metadata[wait_reason]: want %q, got %v", "approval", evt.Metadata["wait_reason"])
	}
}

// ── Step tests ───────────────────────────────────────

func TestExtension_StepCompleted(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	x := newTestExecution()
	step := &execution.StepExecution{StepID: "validate-order", Type: workflow.StepAction}

	if err := e.OnStepCompleted(context.Background(), x, step, 200*time.Millisecond); err != nil {
		t.Fatalf("OnStepCompleted: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionStepCompleted {
		t.Errorf("Action: want %q, got %q", ah.ActionStepCompleted, evt.Action)
	}
	if evt.Metadata["step_id"] != "validate-order" {
		t.Errorf("Metadata[step_id]: want %q, got %v", "validate-order", evt.Metadata["step_id"])
	}
	if evt.Metadata["elapsed_ms"] != int64(200) {
		t.Errorf("Metadata[elapsed_ms]: want %d, got %v", 200, evt.Metadata["elapsed_ms"])
	}
}

func TestExtension_StepRetried(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	x := newTestExecution()
	step := &execution.StepExecution{StepID: "charge-payment", Type: workflow.StepAction}

	if err := e.OnStepRetried(context.Background(), x, step, 2, 2*time.Second); err != nil {
		t.Fatalf("OnStepRetried: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionStepRetried {
		t.Errorf("Action: want %q, got %q", ah.ActionStepRetried, evt.Action)
	}
	if evt.Severity != ah.SeverityWarning {
		t.Errorf("Severity: want %q, got %q", ah.SeverityWarning, evt.Severity)
	}
	if evt.Metadata["attempt"] != 2 {
		t.Errorf("Metadata[attempt]: want %d, got %v", 2, evt.Metadata["attempt"])
	}
	if evt.Metadata["delay_ms"] != int64(2000) {
		t.Errorf("Metadata[delay_ms]: want %d, got %v", 2000, evt.Metadata["delay_ms"])
	}
}

func TestExtension_ApprovalRequested(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	x := newTestExecution()
	step := &execution.StepExecution{StepID: "manager-signoff", Type: workflow.StepApproval}

	if err := e.OnApprovalRequested(context.Background(), x, step, []string{"ops", "lead"}, "approve refund?"); err != nil {
		t.Fatalf("OnApprovalRequested: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionApprovalRequested {
		t.Errorf("Action: want %q, got %q", ah.ActionApprovalRequested, evt.Action)
	}
	if evt.Metadata["message"] != "approve refund?" {
		t.Errorf("Metadata[message]: want %q, got %v", "approve refund?", evt.Metadata["message"])
	}
}

// ── Compensation tests ───────────────────────────────

func TestExtension_CompensationCompleted_ErrorSeverity(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	x := newTestExecution()

	if err := e.OnCompensationCompleted(context.Background(), x, nil); err != nil {
		t.Fatalf("OnCompensationCompleted: %v", err)
	}
	if evt := rec.last(); evt.Severity != ah.SeverityInfo || evt.Outcome != ah.OutcomeSuccess {
		t.Errorf("clean sweep: severity/outcome = %q/%q", evt.Severity, evt.Outcome)
	}

	if err := e.OnCompensationCompleted(context.Background(), x, errors.New("rollback failed")); err != nil {
		t.Fatalf("OnCompensationCompleted: %v", err)
	}
	if evt := rec.last(); evt.Severity != ah.SeverityCritical || evt.Outcome != ah.OutcomeFailure {
		t.Errorf("failed sweep: severity/outcome = %q/%q", evt.Severity, evt.Outcome)
	}
}

// ── Schedule tests ───────────────────────────────────

func TestExtension_ScheduleFired(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	j := &cron.Job{
		ID:         id.NewScheduleID(),
		WorkflowID: id.NewWorkflowID(),
		TenantID:   "tenant-1",
		Expression: "0 * * * *",
	}

	if err := e.OnScheduleFired(context.Background(), j); err != nil {
		t.Fatalf("OnScheduleFired: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionScheduleFired {
		t.Errorf("Action: want %q, got %q", ah.ActionScheduleFired, evt.Action)
	}
	if evt.Resource != ah.ResourceSchedule {
		t.Errorf("Resource: want %q, got %q", ah.ResourceSchedule, evt.Resource)
	}
	if evt.ResourceID != j.ID.String() {
		t.Errorf("ResourceID: want %q, got %q", j.ID.String(), evt.ResourceID)
	}
	if evt.Metadata["expression"] != "0 * * * *" {
		t.Errorf("Metadata[expression]: want %q, got %v", "0 * * * *", evt.Metadata["expression"])
	}
}

// ── WithActions filter tests ─────────────────────────

func TestExtension_WithActions_FiltersDisabled(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec, ah.WithActions(ah.ActionExecutionCompleted, ah.ActionExecutionFailed))

	ctx := context.Background()
	x := newTestExecution()

	// Started is NOT enabled — should be silently skipped.
	if err := e.OnExecutionStarted(ctx, x); err != nil {
		t.Fatalf("OnExecutionStarted: %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("expected 0 events (started disabled), got %d", rec.count())
	}

	// Completed IS enabled — should be recorded.
	if err := e.OnExecutionCompleted(ctx, x, 50*time.Millisecond); err != nil {
		t.Fatalf("OnExecutionCompleted: %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("expected 1 event (completed enabled), got %d", rec.count())
	}

	// Failed IS enabled — should be recorded.
	if err := e.OnExecutionFailed(ctx, x, errors.New("boom")); err != nil {
		t.Fatalf("OnExecutionFailed: %v", err)
	}
	if rec.count() != 2 {
		t.Errorf("expected 2 events, got %d", rec.count())
	}
}

// ── RecorderFunc adapter test ────────────────────────

func TestRecorderFunc(t *testing.T) {
	var captured *ah.AuditEvent
	fn := ah.RecorderFunc(func(_ context.Context, evt *ah.AuditEvent) error {
		captured = evt
		return nil
	})

	e := ah.New(fn)

	if err := e.OnWorkflowCreated(context.Background(), newTestDefinition()); err != nil {
		t.Fatalf("OnWorkflowCreated: %v", err)
	}
	if captured == nil {
		t.Fatal("RecorderFunc was not called")
	}
	if captured.Action != ah.ActionWorkflowCreated {
		t.Errorf("Action: want %q, got %q", ah.ActionWorkflowCreated, captured.Action)
	}
}

// ── Recorder error handling test ─────────────────────

func TestExtension_RecorderError_DoesNotPropagate(t *testing.T) {
	failingRecorder := ah.RecorderFunc(func(_ context.Context, _ *ah.AuditEvent) error {
		return errors.New("audit backend down")
	})

	e := ah.New(failingRecorder)

	// Hook should NOT return an error — audit failures must not block
	// workflow execution.
	if err := e.OnExecutionStarted(context.Background(), newTestExecution()); err != nil {
		t.Fatalf("expected no error (audit failure swallowed), got: %v", err)
	}
}

// ── Registry integration test ────────────────────────

func TestExtension_ViaRegistry(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	logger := slog.Default()

	reg := ext.NewRegistry(logger)
	reg.Register(e)

	ctx := context.Background()
	def := newTestDefinition()
	x := newTestExecution()
	step := &execution.StepExecution{StepID: "s1", Type: workflow.StepAction}
	j := &cron.Job{ID: id.NewScheduleID(), WorkflowID: def.ID, TenantID: "tenant-1"}

	reg.EmitWorkflowCreated(ctx, def)
	reg.EmitWorkflowUpdated(ctx, def)
	reg.EmitWorkflowPublished(ctx, def)
	reg.EmitWorkflowDeprecated(ctx, def)
	reg.EmitExecutionStarted(ctx, x)
	reg.EmitExecutionCompleted(ctx, x, 50*time.Millisecond)
	reg.EmitExecutionFailed(ctx, x, errors.New("fail"))
	reg.EmitExecutionCancelled(ctx, x)
	reg.EmitExecutionWaiting(ctx, x, "approval")
	reg.EmitStepCompleted(ctx, x, step, time.Second)
	reg.EmitStepFailed(ctx, x, step, errors.New("bad"))
	reg.EmitStepRetried(ctx, x, step, 1, time.Second)
	reg.EmitStepEscalated(ctx, x, step, "oncall", errors.New("bad"))
	reg.EmitApprovalRequested(ctx, x, step, []string{"ops"}, "approve?")
	reg.EmitCompensationStarted(ctx, x)
	reg.EmitCompensationCompleted(ctx, x, nil)
	reg.EmitScheduleFired(ctx, j)

	// Verify all event types were recorded.
	allActions := ah.AllActions()
	if rec.count() != len(allActions) {
		t.Fatalf("expected %d events, got %d", len(allActions), rec.count())
	}

	for _, action := range allActions {
		evt := rec.findByAction(action)
		if evt == nil {
			t.Errorf("missing event for action %q", action)
		}
	}
}

// ── AllActions test ──────────────────────────────────

func TestAllActions(t *testing.T) {
	actions := ah.AllActions()
	if len(actions) != 17 {
		t.Errorf("expected 17 actions, got %d", len(actions))
	}
}
