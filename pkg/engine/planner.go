package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Planner orders resources and selects the minimal converging action per
// resource.
type Planner struct {
	inspector Inspector
	logger    zerolog.Logger
}

// NewPlanner creates a planner. The inspector is only needed by Plan.
func NewPlanner(inspector Inspector, logger zerolog.Logger) *Planner {
	return &Planner{
		inspector: inspector,
		logger:    logger.With().Str("component", "planner").Logger(),
	}
}

// Order returns the resources in deterministic execution order together with
// the graph they were ordered from.
func (p *Planner) Order(resources []Resource) ([]Resource, *DAGBuilder, error) {
	builder := NewDAGBuilder()
	graph, err := builder.BuildGraph(resources)
	if err != nil {
		return nil, nil, err
	}
	if err := builder.ValidateGraph(graph); err != nil {
		return nil, nil, err
	}

	ordered := make([]Resource, 0, len(graph.Order))
	for _, id := range graph.Order {
		ordered = append(ordered, builder.Resource(id))
	}
	return ordered, builder, nil
}

// PlanAction compares desired and observed state and returns the action that
// converges the resource. It performs no I/O.
func (p *Planner) PlanAction(r Resource, state *State) (*Action, error) {
	if state == nil {
		return nil, NewInspectionError("no state observed", nil).WithResource(r.ID())
	}

	action := &Action{Type: ActionNone, ResourceID: r.ID()}

	switch spec := r.(type) {
	case *DirectorySpec:
		action.Path = spec.Path
		action.Mode = spec.Mode
		switch state.Status {
		case StateExists:
			if state.Mode.Perm() != spec.Mode.Perm() {
				action.Type = ActionCreateDirectory
			}
		case StateNotExists, StateConflict:
			// A conflict is planned like a missing directory; the executor
			// refuses to touch the foreign object.
			action.Type = ActionCreateDirectory
		default:
			return nil, unexpectedState(r, state)
		}

	case *FileSpec:
		action.Path = spec.Destination
		action.Mode = spec.Mode
		action.Source = spec.Source
		switch state.Status {
		case StateExists:
			if state.Hash != state.SourceHash {
				action.Type = ActionCopyFile
			}
		case StateNotExists, StateConflict:
			action.Type = ActionCopyFile
		default:
			return nil, unexpectedState(r, state)
		}

	case *StackSpec:
		action.Path = spec.ProjectRoot
		action.Stack = spec
		switch spec.DesiredState {
		case StackPresent:
			switch state.Status {
			case StateRunning:
			case StateStopped, StateDegraded:
				action.Type = ActionStartStack
			default:
				return nil, unexpectedState(r, state)
			}
		case StackAbsent:
			switch state.Status {
			case StateStopped:
			case StateRunning, StateDegraded:
				action.Type = ActionStopStack
			default:
				return nil, unexpectedState(r, state)
			}
		default:
			return nil, NewConfigurationError(
				fmt.Sprintf("invalid desired stack state %q", spec.DesiredState), nil,
			).WithResource(r.ID())
		}

	default:
		return nil, NewConfigurationError(fmt.Sprintf("unsupported resource kind: %s", r.Kind()), nil).
			WithResource(r.ID())
	}

	return action, nil
}

func unexpectedState(r Resource, state *State) *EngineError {
	return NewInspectionError(
		fmt.Sprintf("unexpected %s state %q", r.Kind(), state.Status), nil,
	).WithResource(r.ID())
}

// Plan inspects every resource in execution order and reports what a run
// would do, without executing anything. Resources behind a failed
// inspection are reported as blocked.
func (p *Planner) Plan(ctx context.Context, resources []Resource) (*Plan, *DAGBuilder, error) {
	ordered, builder, err := p.Order(resources)
	if err != nil {
		return nil, nil, err
	}

	plan := &Plan{
		Steps:     make([]PlanStep, 0, len(ordered)),
		CreatedAt: time.Now(),
	}
	failed := make(map[string]bool)

	for _, r := range ordered {
		step := PlanStep{ResourceID: r.ID(), Kind: r.Kind()}

		if dep, blocked := firstFailed(r, failed); blocked {
			setStepError(&step, NewBlockedError(r.ID(), dep))
			failed[r.ID()] = true
			plan.Steps = append(plan.Steps, step)
			continue
		}

		state, err := p.inspector.Inspect(ctx, r)
		if err != nil {
			setStepError(&step, err)
			failed[r.ID()] = true
			plan.Steps = append(plan.Steps, step)
			continue
		}
		step.State = state

		action, err := p.PlanAction(r, state)
		if err != nil {
			setStepError(&step, err)
			failed[r.ID()] = true
			plan.Steps = append(plan.Steps, step)
			continue
		}
		step.Action = action

		p.logger.Debug().
			Str("resource_id", r.ID()).
			Str("state", string(state.Status)).
			Str("action", string(action.Type)).
			Msg("Planned resource")

		plan.Steps = append(plan.Steps, step)
	}

	plan.Summary = summarize(plan.Steps)
	return plan, builder, nil
}

// Actions returns the planned action type per resource ID.
func (pl *Plan) Actions() map[string]ActionType {
	actions := make(map[string]ActionType, len(pl.Steps))
	for _, step := range pl.Steps {
		if step.Action != nil {
			actions[step.ResourceID] = step.Action.Type
		}
	}
	return actions
}

func setStepError(step *PlanStep, err error) {
	step.Error = err.Error()
	step.ErrorKind = KindOf(err)
	if e, ok := err.(*EngineError); ok {
		step.Error = e.Reason()
	}
}

func summarize(steps []PlanStep) PlanSummary {
	summary := PlanSummary{Total: len(steps)}
	for _, step := range steps {
		switch {
		case step.Error != "":
			summary.Errored++
		case step.Action.Type.IsMutating():
			summary.Mutating++
		default:
			summary.NoAction++
		}
	}
	return summary
}

// firstFailed returns the first dependency of r recorded as failed.
func firstFailed(r Resource, failed map[string]bool) (string, bool) {
	for _, dep := range r.Dependencies() {
		if failed[dep] {
			return dep, true
		}
	}
	return "", false
}
