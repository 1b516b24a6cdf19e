package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/flowline/cron"
)

// ErrInvalidDefinition wraps every structural validation failure.
var ErrInvalidDefinition = errors.New("workflow: invalid definition")

// ErrCycle is returned when the step graph is not a DAG.
var ErrCycle = errors.New("workflow: step graph has a cycle")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDefinition, fmt.Sprintf(format, args...))
}

// Validate checks a definition's structure: non-empty name, at least one
// step, trigger-specific required fields, unique step ids, per-type step
// config, resolvable successor references, and an acyclic step graph.
// It runs before any persistence.
func Validate(d *Definition) error {
	if strings.TrimSpace(d.Name) == "" {
		return invalidf("name must not be empty")
	}
	if len(d.Steps) == 0 {
		return invalidf("workflow must declare at least one step")
	}
	if err := validateTrigger(d.Trigger); err != nil {
		return err
	}

	ids := make(map[string]bool, len(d.Steps))
	for i := range d.Steps {
		s := &d.Steps[i]
		if s.ID == "" {
			return invalidf("step %d has no id", i)
		}
		if ids[s.ID] {
			return invalidf("duplicate step id %q", s.ID)
		}
		ids[s.ID] = true
		if err := validateStep(s); err != nil {
			return err
		}
	}

	for i := range d.Steps {
		s := &d.Steps[i]
		for _, next := range s.successors() {
			if !ids[next] {
				return invalidf("step %q references unknown step %q", s.ID, next)
			}
		}
	}

	if path, found := DetectCycle(d.Steps); found {
		return fmt.Errorf("%w: %s", ErrCycle, strings.Join(path, " -> "))
	}
	return nil
}

// ValidateForPublish runs full structural validation plus the publish
// completeness check: every referenced step id must exist. Resolution is
// already part of Validate, so publishing re-runs it against the final
// step set.
func ValidateForPublish(d *Definition) error {
	return Validate(d)
}

func validateTrigger(t Trigger) error {
	switch t.Type {
	case TriggerEvent:
		if len(t.Events) == 0 {
			return invalidf("EVENT trigger requires at least one event type")
		}
		if len(t.EntityTypes) == 0 {
			return invalidf("EVENT trigger requires at least one entity type")
		}
	case TriggerSchedule:
		if err := cron.Validate(t.Cron); err != nil {
			return invalidf("SCHEDULE trigger: %v", err)
		}
	case TriggerSignal:
		if t.Signal == "" {
			return invalidf("SIGNAL trigger requires a signal type")
		}
	case TriggerManual:
	default:
		return invalidf("unknown trigger type %q", t.Type)
	}
	return nil
}

func validateStep(s *Step) error {
	switch s.Type {
	case StepAction:
		if s.Action == nil || s.Action.ActionType == "" {
			return invalidf("step %q: ACTION requires an actionType", s.ID)
		}
	case StepCondition:
		if s.Condition == nil {
			return invalidf("step %q: CONDITION requires branch config", s.ID)
		}
	case StepParallel:
		if s.Parallel == nil || len(s.Parallel.Branches) == 0 {
			return invalidf("step %q: PARALLEL requires at least one branch", s.ID)
		}
		switch s.Parallel.Join {
		case JoinAll, JoinAny:
		case JoinNofM:
			n := s.Parallel.RequiredCount
			if n < 1 || n > len(s.Parallel.Branches) {
				return invalidf("step %q: N_OF_M requires 1 <= requiredCount <= %d, got %d",
					s.ID, len(s.Parallel.Branches), n)
			}
		default:
			return invalidf("step %q: unknown join policy %q", s.ID, s.Parallel.Join)
		}
	case StepLoop:
		if s.Loop == nil || s.Loop.Collection == "" || s.Loop.BodyStep == "" {
			return invalidf("step %q: LOOP requires a collection and a bodyStep", s.ID)
		}
		if s.Loop.ItemVar == "" {
			return invalidf("step %q: LOOP requires an itemVar", s.ID)
		}
	case StepDelay:
		if s.Delay == nil {
			return invalidf("step %q: DELAY requires delay config", s.ID)
		}
		switch s.Delay.Kind {
		case DelayDuration:
			if s.Delay.Duration <= 0 {
				return invalidf("step %q: DURATION delay requires a positive duration", s.ID)
			}
		case DelayUntil, DelaySchedule:
			// Executable only with durable execution; rejected at run time,
			// not here, so definitions stay portable.
		default:
			return invalidf("step %q: unknown delay kind %q", s.ID, s.Delay.Kind)
		}
	case StepApproval:
		if s.Approval == nil {
			return invalidf("step %q: APPROVAL requires approval config", s.ID)
		}
	case StepSubworkflow:
		if s.Subworkflow == nil || s.Subworkflow.WorkflowID == "" {
			return invalidf("step %q: SUBWORKFLOW requires a workflowId", s.ID)
		}
	case StepTransform:
		if s.Transform == nil || len(s.Transform.Operations) == 0 {
			return invalidf("step %q: TRANSFORM requires at least one operation", s.ID)
		}
		for _, op := range s.Transform.Operations {
			switch op.Op {
			case TransformSet, TransformAppend, TransformMerge, TransformDelete:
			default:
				return invalidf("step %q: unknown transform op %q", s.ID, op.Op)
			}
			if op.Path == "" {
				return invalidf("step %q: transform op %s requires a path", s.ID, op.Op)
			}
		}
	default:
		return invalidf("step %q: unknown step type %q", s.ID, s.Type)
	}

	if s.OnError != nil {
		switch s.OnError.Type {
		case HandleIgnore, HandleFallback, HandleCompensate, HandleEscalate, HandleFail:
		default:
			return invalidf("step %q: unknown error handler %q", s.ID, s.OnError.Type)
		}
		if s.OnError.Type == HandleFallback &&
			s.OnError.FallbackStep == "" && s.OnError.FallbackValue == nil {
			return invalidf("step %q: FALLBACK requires a fallbackStep or fallbackValue", s.ID)
		}
	}
	return nil
}

// DetectCycle walks the successor graph and reports the first cycle it
// finds as a path of step ids ending where it started. It is a pure
// function over the step list.
func DetectCycle(steps []Step) ([]string, bool) {
	adjacency := make(map[string][]string, len(steps))
	for i := range steps {
		adjacency[steps[i].ID] = steps[i].successors()
	}

	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(steps))
	var stack []string

	var visit func(string) ([]string, bool)
	visit = func(node string) ([]string, bool) {
		color[node] = gray
		stack = append(stack, node)

		for _, next := range adjacency[node] {
			switch color[next] {
			case gray:
				// Back edge: slice the path from next's position.
				for i, n := range stack {
					if n == next {
						return append(append([]string(nil), stack[i:]...), next), true
					}
				}
			case white:
				if path, found := visit(next); found {
					return path, true
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[node] = black
		return nil, false
	}

	for i := range steps {
		if color[steps[i].ID] == white {
			if path, found := visit(steps[i].ID); found {
				return path, true
			}
		}
	}
	return nil, false
}
