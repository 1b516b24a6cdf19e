// Package workflow defines workflow definitions, their step graphs, the
// structural validation rules applied before persistence, and the
// definition store interface.
package workflow

import (
	"time"

	flowline "github.com/xraph/flowline"
	"github.com/xraph/flowline/id"
)

// Status is the lifecycle state of a workflow version. Transitions are
// one-way: DRAFT → PUBLISHED → DEPRECATED. Only DRAFT versions may be
// edited; a published version is immutable and superseded by new
// versions, never deleted.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusPublished  Status = "PUBLISHED"
	StatusDeprecated Status = "DEPRECATED"
)

// TriggerType selects how executions of a workflow are initiated.
type TriggerType string

const (
	TriggerEvent    TriggerType = "EVENT"
	TriggerSchedule TriggerType = "SCHEDULE"
	TriggerSignal   TriggerType = "SIGNAL"
	TriggerManual   TriggerType = "MANUAL"
)

// Trigger declares how a workflow starts. The fields required depend on
// the type: EVENT needs event and entity type lists, SCHEDULE needs a
// cron expression, SIGNAL needs a signal type. MANUAL needs nothing.
type Trigger struct {
	Type        TriggerType `json:"type"`
	Events      []string    `json:"events,omitempty"`
	EntityTypes []string    `json:"entityTypes,omitempty"`
	Cron        string      `json:"cron,omitempty"`
	Timezone    string      `json:"timezone,omitempty"`
	Signal      string      `json:"signal,omitempty"`
}

// Counters tracks rolling execution statistics for one workflow.
type Counters struct {
	Executions  int64         `json:"executions"`
	Successes   int64         `json:"successes"`
	Failures    int64         `json:"failures"`
	AvgDuration time.Duration `json:"avgDuration"`
}

// Observe folds one finished execution into the counters.
func (c *Counters) Observe(success bool, d time.Duration) {
	c.Executions++
	if success {
		c.Successes++
	} else {
		c.Failures++
	}
	// Incremental rolling mean.
	c.AvgDuration += (d - c.AvgDuration) / time.Duration(c.Executions)
}

// Definition is one version of a workflow: an immutable-once-published
// DAG of steps plus the trigger that starts it.
type Definition struct {
	flowline.Entity

	ID        id.WorkflowID `json:"id"`
	VersionID id.VersionID  `json:"versionId"`
	Version   int           `json:"version"`
	TenantID  string        `json:"tenantId"`

	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status"`

	Trigger Trigger       `json:"trigger"`
	Steps   []Step        `json:"steps"`
	OnError *ErrorHandler `json:"onError,omitempty"`

	Counters Counters `json:"counters"`
}

// Step returns the step with the given id, or nil.
func (d *Definition) Step(stepID string) *Step {
	for i := range d.Steps {
		if d.Steps[i].ID == stepID {
			return &d.Steps[i]
		}
	}
	return nil
}

// EntryPoints returns the ids of steps no other step references. A
// well-formed connected workflow has exactly one, but the graph may
// technically have several.
func (d *Definition) EntryPoints() []string {
	referenced := make(map[string]bool)
	for i := range d.Steps {
		for _, next := range d.Steps[i].successors() {
			referenced[next] = true
		}
	}

	var entries []string
	for i := range d.Steps {
		if !referenced[d.Steps[i].ID] {
			entries = append(entries, d.Steps[i].ID)
		}
	}
	return entries
}

// Clone returns a deep-enough copy for version forking: a fresh version
// id, incremented version number, DRAFT status, and zeroed counters. The
// step slice is copied so DRAFT edits don't leak into the original.
func (d *Definition) Clone() *Definition {
	next := *d
	next.Entity = flowline.NewEntity()
	next.VersionID = id.NewVersionID()
	next.Version = d.Version + 1
	next.Status = StatusDraft
	next.Counters = Counters{}
	next.Steps = make([]Step, len(d.Steps))
	copy(next.Steps, d.Steps)
	return &next
}

// ErrorHandlerType selects what happens after a step exhausts retries.
type ErrorHandlerType string

const (
	// HandleIgnore swallows the failure and lets control fall through
	// without advancing to the step's successors.
	HandleIgnore ErrorHandlerType = "IGNORE"

	// HandleFallback runs a fallback step, or records a fallback literal
	// as the step's output, then continues.
	HandleFallback ErrorHandlerType = "FALLBACK"

	// HandleCompensate runs the step's compensation actions and then
	// propagates the failure.
	HandleCompensate ErrorHandlerType = "COMPENSATE"

	// HandleEscalate emits an audit event naming the escalation target
	// and then propagates the failure.
	HandleEscalate ErrorHandlerType = "ESCALATE"

	// HandleFail propagates the failure. This is the default.
	HandleFail ErrorHandlerType = "FAIL"
)

// ErrorHandler configures failure handling for a step or, at the
// workflow level, for the whole execution.
type ErrorHandler struct {
	Type          ErrorHandlerType `json:"type"`
	FallbackStep  string           `json:"fallbackStep,omitempty"`
	FallbackValue any              `json:"fallbackValue,omitempty"`
	EscalateTo    string           `json:"escalateTo,omitempty"`
}

// CompensationAction is one rollback action run when a completed step
// must be undone. Required compensations abort the sweep on failure;
// the rest log and continue.
type CompensationAction struct {
	ActionType string         `json:"actionType"`
	Input      map[string]any `json:"input,omitempty"`
	Required   bool           `json:"required,omitempty"`
}
