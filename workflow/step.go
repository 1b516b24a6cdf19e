package workflow

import (
	"encoding/json"
	"time"

	"github.com/xraph/flowline/backoff"
	"github.com/xraph/flowline/condition"
)

// StepType tags the union of step kinds.
type StepType string

const (
	StepAction      StepType = "ACTION"
	StepCondition   StepType = "CONDITION"
	StepParallel    StepType = "PARALLEL"
	StepLoop        StepType = "LOOP"
	StepDelay       StepType = "DELAY"
	StepApproval    StepType = "APPROVAL"
	StepSubworkflow StepType = "SUBWORKFLOW"
	StepTransform   StepType = "TRANSFORM"
)

// StringList is a JSON field that accepts either a single string or a
// list of strings, normalizing to a slice.
type StringList []string

// UnmarshalJSON accepts "step-b" and ["step-b", "step-c"] alike.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*l = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = StringList(many)
	return nil
}

// Step is one node in a workflow's DAG. Exactly one of the per-type
// config pointers is set, matching Type.
type Step struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Type StepType `json:"type"`

	// Next lists the successor step ids executed after this step
	// completes. A single next runs inline; multiple nexts are each
	// walked and awaited.
	Next StringList `json:"next,omitempty"`

	// Timeout bounds the step handler. Zero uses the engine default.
	Timeout time.Duration `json:"timeout,omitempty"`

	OnError      *ErrorHandler        `json:"onError,omitempty"`
	Compensation []CompensationAction `json:"compensation,omitempty"`

	Action      *ActionConfig      `json:"action,omitempty"`
	Condition   *ConditionConfig   `json:"condition,omitempty"`
	Parallel    *ParallelConfig    `json:"parallel,omitempty"`
	Loop        *LoopConfig        `json:"loop,omitempty"`
	Delay       *DelayConfig       `json:"delay,omitempty"`
	Approval    *ApprovalConfig    `json:"approval,omitempty"`
	Subworkflow *SubworkflowConfig `json:"subworkflow,omitempty"`
	Transform   *TransformConfig   `json:"transform,omitempty"`
}

// successors returns every step id this step can hand control to,
// including branch targets. Used for reference resolution, entry-point
// discovery, and cycle detection.
func (s *Step) successors() []string {
	out := append([]string(nil), s.Next...)
	if s.Condition != nil {
		for _, b := range s.Condition.Branches {
			if b.Next != "" {
				out = append(out, b.Next)
			}
		}
		if s.Condition.DefaultBranch != "" {
			out = append(out, s.Condition.DefaultBranch)
		}
	}
	if s.Parallel != nil {
		for _, b := range s.Parallel.Branches {
			if b.StartStep != "" {
				out = append(out, b.StartStep)
			}
		}
	}
	if s.Loop != nil && s.Loop.BodyStep != "" {
		out = append(out, s.Loop.BodyStep)
	}
	if s.OnError != nil && s.OnError.FallbackStep != "" {
		out = append(out, s.OnError.FallbackStep)
	}
	return out
}

// ActionConfig invokes a registered action type.
type ActionConfig struct {
	// ActionType names the registered handler, e.g. "HTTP_REQUEST".
	ActionType string `json:"actionType"`

	// Input is the raw parameter map; string values are template-resolved
	// against the execution context before invocation.
	Input map[string]any `json:"input,omitempty"`

	// OutputMapping copies named output fields into context variables.
	// Keys are output field paths, values are variable names.
	OutputMapping map[string]string `json:"outputMapping,omitempty"`

	// Retry overrides the default retry policy for this step.
	Retry *backoff.Policy `json:"retry,omitempty"`
}

// ConditionBranch pairs a predicate with the step that runs when it is
// the first to hold.
type ConditionBranch struct {
	When condition.Condition `json:"when"`
	Next string              `json:"next"`
}

// ConditionConfig routes control to the first branch whose predicate
// holds, falling back to DefaultBranch when none match.
type ConditionConfig struct {
	Branches      []ConditionBranch `json:"branches"`
	DefaultBranch string            `json:"defaultBranch,omitempty"`
}

// JoinPolicy decides when a PARALLEL step settles.
type JoinPolicy string

const (
	JoinAll  JoinPolicy = "ALL"
	JoinAny  JoinPolicy = "ANY"
	JoinNofM JoinPolicy = "N_OF_M"
)

// ParallelBranch is one named concurrent branch.
type ParallelBranch struct {
	Name      string `json:"name"`
	StartStep string `json:"startStep"`
}

// ParallelConfig fans out into named branches run concurrently.
type ParallelConfig struct {
	Branches []ParallelBranch `json:"branches"`
	Join     JoinPolicy       `json:"join"`

	// RequiredCount is the N in N_OF_M.
	RequiredCount int `json:"requiredCount,omitempty"`
}

// LoopConfig iterates a resolved collection, executing BodyStep once
// per item.
type LoopConfig struct {
	// Collection is a template expression that must resolve to a list.
	Collection string `json:"collection"`

	// ItemVar is the context variable bound to the current item.
	ItemVar string `json:"itemVar"`

	// IndexVar optionally binds the current index.
	IndexVar string `json:"indexVar,omitempty"`

	BodyStep string `json:"bodyStep"`

	// MaxIterations bounds the loop. Zero uses the engine default.
	MaxIterations int `json:"maxIterations,omitempty"`

	// ContinueOnError collects iteration errors instead of aborting.
	ContinueOnError bool `json:"continueOnError,omitempty"`
}

// DelayKind selects the delay flavor. Only DURATION is executable
// synchronously; UNTIL and SCHEDULE require durable execution.
type DelayKind string

const (
	DelayDuration DelayKind = "DURATION"
	DelayUntil    DelayKind = "UNTIL"
	DelaySchedule DelayKind = "SCHEDULE"
)

// DelayConfig pauses the execution.
type DelayConfig struct {
	Kind     DelayKind     `json:"kind"`
	Duration time.Duration `json:"duration,omitempty"`
	Until    time.Time     `json:"until,omitempty"`
	Cron     string        `json:"cron,omitempty"`
}

// ApprovalConfig parks the execution pending an external decision.
type ApprovalConfig struct {
	Approvers []string `json:"approvers,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// SubworkflowConfig delegates to a child workflow.
type SubworkflowConfig struct {
	WorkflowID string         `json:"workflowId"`
	Input      map[string]any `json:"input,omitempty"`
}

// TransformOp is one variable-bag mutation kind.
type TransformOp string

const (
	TransformSet    TransformOp = "SET"
	TransformAppend TransformOp = "APPEND"
	TransformMerge  TransformOp = "MERGE"
	TransformDelete TransformOp = "DELETE"
)

// TransformOperation mutates one dotted variable path.
type TransformOperation struct {
	Op    TransformOp `json:"op"`
	Path  string      `json:"path"`
	Value any         `json:"value,omitempty"`
}

// TransformConfig applies an ordered list of variable mutations.
type TransformConfig struct {
	Operations []TransformOperation `json:"operations"`
}
