package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	flowline "github.com/xraph/flowline"
	"github.com/xraph/flowline/cron"
	"github.com/xraph/flowline/execution"
	"github.com/xraph/flowline/id"
	"github.com/xraph/flowline/store/memory"
	"github.com/xraph/flowline/workflow"
)

func newDefinition(tenantID, name string) *workflow.Definition {
	return &workflow.Definition{
		Entity:    flowline.NewEntity(),
		ID:        id.NewWorkflowID(),
		VersionID: id.NewVersionID(),
		Version:   1,
		TenantID:  tenantID,
		Name:      name,
		Status:    workflow.StatusDraft,
		Trigger:   workflow.Trigger{Type: workflow.TriggerManual},
		Steps: []workflow.Step{
			{ID: "noop", Type: workflow.StepAction, Action: &workflow.ActionConfig{ActionType: "LOG"}},
		},
	}
}

func newExecution(def *workflow.Definition, idemKey string) *execution.Execution {
	return execution.New(def, execution.NewContext(nil), idemKey)
}

func TestDefinitionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	def := newDefinition("tenant-1", "order-fulfillment")

	if err := s.CreateDefinition(ctx, def); err != nil {
		t.Fatalf("CreateDefinition: %v", err)
	}

	got, err := s.GetVersion(ctx, "tenant-1", def.VersionID)
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if got.Name != "order-fulfillment" || got.Version != 1 {
		t.Errorf("got %q v%d, want order-fulfillment v1", got.Name, got.Version)
	}

	// Mutating the returned copy must not leak into the store.
	got.Name = "mutated"
	got.Steps[0].ID = "mutated"
	again, err := s.GetVersion(ctx, "tenant-1", def.VersionID)
	if err != nil {
		t.Fatalf("GetVersion again: %v", err)
	}
	if again.Name != "order-fulfillment" || again.Steps[0].ID != "noop" {
		t.Error("stored definition mutated through a returned copy")
	}
}

func TestGetDefinitionReturnsLatestVersion(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	v1 := newDefinition("tenant-1", "billing")
	if err := s.CreateDefinition(ctx, v1); err != nil {
		t.Fatalf("create v1: %v", err)
	}
	v2 := v1.Clone()
	if err := s.CreateDefinition(ctx, v2); err != nil {
		t.Fatalf("create v2: %v", err)
	}

	got, err := s.GetDefinition(ctx, "tenant-1", v1.ID)
	if err != nil {
		t.Fatalf("GetDefinition: %v", err)
	}
	if got.Version != 2 || got.VersionID != v2.VersionID {
		t.Errorf("got version %d, want latest version 2", got.Version)
	}

	versions, err := s.ListVersions(ctx, "tenant-1", v1.ID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 || versions[0].Version != 1 || versions[1].Version != 2 {
		t.Errorf("ListVersions order wrong: %+v", versions)
	}

	n, err := s.CountVersions(ctx, "tenant-1", v1.ID)
	if err != nil || n != 2 {
		t.Errorf("CountVersions = %d, %v; want 2", n, err)
	}
}

func TestDefinitionTenantIsolation(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	def := newDefinition("tenant-1", "billing")
	if err := s.CreateDefinition(ctx, def); err != nil {
		t.Fatalf("CreateDefinition: %v", err)
	}

	if _, err := s.GetDefinition(ctx, "tenant-2", def.ID); !errors.Is(err, flowline.ErrWorkflowNotFound) {
		t.Errorf("cross-tenant GetDefinition err = %v, want ErrWorkflowNotFound", err)
	}
	if _, err := s.GetVersion(ctx, "tenant-2", def.VersionID); !errors.Is(err, flowline.ErrVersionNotFound) {
		t.Errorf("cross-tenant GetVersion err = %v, want ErrVersionNotFound", err)
	}
}

func TestListDefinitionsFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	var published *workflow.Definition
	for i, name := range []string{"a", "b", "c"} {
		def := newDefinition("tenant-1", name)
		def.CreatedAt = def.CreatedAt.Add(time.Duration(i) * time.Second)
		if i == 1 {
			def.Status = workflow.StatusPublished
			published = def
		}
		if err := s.CreateDefinition(ctx, def); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	all, err := s.ListDefinitions(ctx, "tenant-1", workflow.ListOpts{})
	if err != nil {
		t.Fatalf("ListDefinitions: %v", err)
	}
	if len(all) != 3 || all[0].Name != "a" || all[2].Name != "c" {
		t.Errorf("unexpected order: %+v", all)
	}

	page, err := s.ListDefinitions(ctx, "tenant-1", workflow.ListOpts{Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("ListDefinitions page: %v", err)
	}
	if len(page) != 1 || page[0].Name != "b" {
		t.Errorf("page = %+v, want [b]", page)
	}

	pub, err := s.ListDefinitions(ctx, "tenant-1", workflow.ListOpts{Status: workflow.StatusPublished})
	if err != nil {
		t.Fatalf("ListDefinitions status: %v", err)
	}
	if len(pub) != 1 || pub[0].VersionID != published.VersionID {
		t.Errorf("status filter = %+v, want only published", pub)
	}

	n, err := s.CountDefinitions(ctx, "tenant-1")
	if err != nil || n != 3 {
		t.Errorf("CountDefinitions = %d, %v; want 3", n, err)
	}
}

func TestExecutionRoundTripAndIdempotencyIndex(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	def := newDefinition("tenant-1", "billing")
	e := newExecution(def, "req-42")

	if err := s.CreateExecution(ctx, e); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	got, err := s.GetExecution(ctx, "tenant-1", e.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.Status != execution.StatusPending {
		t.Errorf("status = %s, want PENDING", got.Status)
	}

	byKey, err := s.FindByIdempotencyKey(ctx, "tenant-1", "req-42")
	if err != nil {
		t.Fatalf("FindByIdempotencyKey: %v", err)
	}
	if byKey.ID != e.ID {
		t.Errorf("found %s, want %s", byKey.ID, e.ID)
	}

	if _, err := s.FindByIdempotencyKey(ctx, "tenant-2", "req-42"); !errors.Is(err, flowline.ErrExecutionNotFound) {
		t.Errorf("cross-tenant key lookup err = %v, want ErrExecutionNotFound", err)
	}
	if _, err := s.FindByIdempotencyKey(ctx, "tenant-1", "other"); !errors.Is(err, flowline.ErrExecutionNotFound) {
		t.Errorf("unknown key lookup err = %v, want ErrExecutionNotFound", err)
	}
}

func TestUpdateExecutionRefusesTerminalOverwrite(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	def := newDefinition("tenant-1", "billing")

	e := newExecution(def, "")
	if err := e.TransitionTo(execution.StatusRunning); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := s.CreateExecution(ctx, e); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	if err := e.TransitionTo(execution.StatusCancelled); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := s.UpdateExecution(ctx, e); err != nil {
		t.Fatalf("UpdateExecution to CANCELLED: %v", err)
	}

	// A late writer holding a stale RUNNING copy must not clobber the
	// stored terminal record.
	stale, err := s.GetExecution(ctx, "tenant-1", e.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	stale.Status = execution.StatusCompleted
	if err := s.UpdateExecution(ctx, stale); !errors.Is(err, flowline.ErrInvalidState) {
		t.Errorf("terminal overwrite err = %v, want ErrInvalidState", err)
	}

	got, err := s.GetExecution(ctx, "tenant-1", e.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if got.Status != execution.StatusCancelled {
		t.Errorf("stored status = %s, want CANCELLED", got.Status)
	}
}

func TestExecutionCounts(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	def := newDefinition("tenant-1", "billing")

	running := newExecution(def, "")
	if err := running.TransitionTo(execution.StatusRunning); err != nil {
		t.Fatalf("transition: %v", err)
	}
	finished := newExecution(def, "")
	if err := finished.TransitionTo(execution.StatusRunning); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := finished.TransitionTo(execution.StatusCompleted); err != nil {
		t.Fatalf("transition: %v", err)
	}

	for _, e := range []*execution.Execution{running, finished} {
		if err := s.CreateExecution(ctx, e); err != nil {
			t.Fatalf("CreateExecution: %v", err)
		}
	}

	active, err := s.CountActive(ctx, "tenant-1")
	if err != nil || active != 1 {
		t.Errorf("CountActive = %d, %v; want 1", active, err)
	}

	recent, err := s.CountStartedSince(ctx, "tenant-1", time.Now().Add(-time.Hour))
	if err != nil || recent != 2 {
		t.Errorf("CountStartedSince(-1h) = %d, %v; want 2", recent, err)
	}
	none, err := s.CountStartedSince(ctx, "tenant-1", time.Now().Add(time.Hour))
	if err != nil || none != 0 {
		t.Errorf("CountStartedSince(+1h) = %d, %v; want 0", none, err)
	}
}

func TestListExecutionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	def := newDefinition("tenant-1", "billing")

	var ids []id.ExecutionID
	for i := 0; i < 3; i++ {
		e := newExecution(def, "")
		e.CreatedAt = e.CreatedAt.Add(time.Duration(i) * time.Second)
		if err := s.CreateExecution(ctx, e); err != nil {
			t.Fatalf("CreateExecution: %v", err)
		}
		ids = append(ids, e.ID)
	}

	got, err := s.ListExecutions(ctx, "tenant-1", def.ID, execution.ListOpts{Limit: 2})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(got) != 2 || got[0].ID != ids[2] || got[1].ID != ids[1] {
		t.Errorf("unexpected order/page: %+v", got)
	}
}

func newScheduleJob(tenantID string) *cron.Job {
	return &cron.Job{
		Entity:     flowline.NewEntity(),
		ID:         id.NewScheduleID(),
		WorkflowID: id.NewWorkflowID(),
		TenantID:   tenantID,
		Expression: "*/15 * * * *",
		NextRun:    time.Now().Add(time.Minute),
		Enabled:    true,
	}
}

func TestScheduleRegistrationRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	job := newScheduleJob("tenant-1")

	if err := s.RegisterSchedule(ctx, job); err != nil {
		t.Fatalf("RegisterSchedule: %v", err)
	}

	dup := newScheduleJob("tenant-1")
	dup.WorkflowID = job.WorkflowID
	if err := s.RegisterSchedule(ctx, dup); !errors.Is(err, flowline.ErrDuplicateSchedule) {
		t.Errorf("duplicate workflow schedule err = %v, want ErrDuplicateSchedule", err)
	}

	// Same workflow id under another tenant is a different schedule.
	other := newScheduleJob("tenant-2")
	other.WorkflowID = job.WorkflowID
	if err := s.RegisterSchedule(ctx, other); err != nil {
		t.Errorf("other-tenant schedule rejected: %v", err)
	}
}

func TestDeleteByWorkflowRemovesSchedule(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	job := newScheduleJob("tenant-1")
	if err := s.RegisterSchedule(ctx, job); err != nil {
		t.Fatalf("RegisterSchedule: %v", err)
	}

	if err := s.DeleteByWorkflow(ctx, "tenant-1", job.WorkflowID); err != nil {
		t.Fatalf("DeleteByWorkflow: %v", err)
	}
	if _, err := s.GetSchedule(ctx, job.ID); !errors.Is(err, flowline.ErrScheduleNotFound) {
		t.Errorf("GetSchedule after delete err = %v, want ErrScheduleNotFound", err)
	}

	// Deleting an absent schedule is not an error.
	if err := s.DeleteByWorkflow(ctx, "tenant-1", job.WorkflowID); err != nil {
		t.Errorf("second DeleteByWorkflow: %v", err)
	}
}

func TestScheduleLockSemantics(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	job := newScheduleJob("tenant-1")
	if err := s.RegisterSchedule(ctx, job); err != nil {
		t.Fatalf("RegisterSchedule: %v", err)
	}

	ok, err := s.AcquireLock(ctx, job.ID, "node-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("AcquireLock node-a = %v, %v; want true", ok, err)
	}

	// A live lock blocks other owners.
	ok, err = s.AcquireLock(ctx, job.ID, "node-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("AcquireLock node-b = %v, %v; want false", ok, err)
	}

	// The holder can re-acquire (extend).
	ok, err = s.AcquireLock(ctx, job.ID, "node-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("re-AcquireLock node-a = %v, %v; want true", ok, err)
	}

	// A non-owner release is a no-op.
	if err := s.ReleaseLock(ctx, job.ID, "node-b"); err != nil {
		t.Fatalf("ReleaseLock node-b: %v", err)
	}
	ok, err = s.AcquireLock(ctx, job.ID, "node-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("AcquireLock after foreign release = %v, %v; want false", ok, err)
	}

	// The owner's release frees the lock.
	if err := s.ReleaseLock(ctx, job.ID, "node-a"); err != nil {
		t.Fatalf("ReleaseLock node-a: %v", err)
	}
	ok, err = s.AcquireLock(ctx, job.ID, "node-b", time.Minute)
	if err != nil || !ok {
		t.Fatalf("AcquireLock after release = %v, %v; want true", ok, err)
	}
}

func TestScheduleLockExpires(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	job := newScheduleJob("tenant-1")
	if err := s.RegisterSchedule(ctx, job); err != nil {
		t.Fatalf("RegisterSchedule: %v", err)
	}

	ok, err := s.AcquireLock(ctx, job.ID, "node-a", time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("AcquireLock = %v, %v; want true", ok, err)
	}
	time.Sleep(5 * time.Millisecond)

	ok, err = s.AcquireLock(ctx, job.ID, "node-b", time.Minute)
	if err != nil || !ok {
		t.Errorf("AcquireLock after expiry = %v, %v; want true", ok, err)
	}
}
