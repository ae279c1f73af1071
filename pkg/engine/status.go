package engine

import (
	"fmt"
)

// ResourceKind identifies one of the three manageable resource kinds.
type ResourceKind string

const (
	// KindDirectory is a directory on the host filesystem.
	KindDirectory ResourceKind = "directory"

	// KindFile is a file materialized from a source.
	KindFile ResourceKind = "file"

	// KindStack is a composed container stack.
	KindStack ResourceKind = "stack"
)

// Validate checks if the resource kind is valid.
func (k ResourceKind) Validate() error {
	switch k {
	case KindDirectory, KindFile, KindStack:
		return nil
	default:
		return fmt.Errorf("invalid resource kind: %s", k)
	}
}

// StateStatus is the observed condition of a resource on the host.
type StateStatus string

const (
	// StateExists indicates a directory or file is present.
	StateExists StateStatus = "exists"

	// StateNotExists indicates nothing is at the managed path.
	StateNotExists StateStatus = "not_exists"

	// StateConflict indicates an object of the wrong type occupies the path.
	StateConflict StateStatus = "conflict"

	// StateRunning indicates every declared service of a stack is up.
	StateRunning StateStatus = "running"

	// StateStopped indicates no service of a stack is up.
	StateStopped StateStatus = "stopped"

	// StateDegraded indicates some but not all services of a stack are up.
	StateDegraded StateStatus = "degraded"
)

// Validate checks if the state status is valid.
func (s StateStatus) Validate() error {
	switch s {
	case StateExists, StateNotExists, StateConflict,
		StateRunning, StateStopped, StateDegraded:
		return nil
	default:
		return fmt.Errorf("invalid state status: %s", s)
	}
}

// DesiredStackState is the target state of a container stack.
type DesiredStackState string

const (
	// StackPresent requests the stack to be running.
	StackPresent DesiredStackState = "present"

	// StackAbsent requests the stack to be stopped.
	StackAbsent DesiredStackState = "absent"
)

// Validate checks if the desired stack state is valid.
func (d DesiredStackState) Validate() error {
	switch d {
	case StackPresent, StackAbsent:
		return nil
	default:
		return fmt.Errorf("invalid desired stack state: %s", d)
	}
}

// ActionType is the minimal action the planner selects for one resource.
type ActionType string

const (
	// ActionNone indicates the resource is already converged.
	ActionNone ActionType = "no_action"

	// ActionCreateDirectory creates a directory or corrects its mode.
	ActionCreateDirectory ActionType = "create_directory"

	// ActionCopyFile replaces the destination with the source content.
	ActionCopyFile ActionType = "copy_file"

	// ActionStartStack brings a composition up.
	ActionStartStack ActionType = "start_stack"

	// ActionStopStack brings a composition down.
	ActionStopStack ActionType = "stop_stack"
)

// IsMutating returns true if the action changes host state.
func (a ActionType) IsMutating() bool {
	return a != ActionNone
}

// Validate checks if the action type is valid.
func (a ActionType) Validate() error {
	switch a {
	case ActionNone, ActionCreateDirectory, ActionCopyFile,
		ActionStartStack, ActionStopStack:
		return nil
	default:
		return fmt.Errorf("invalid action type: %s", a)
	}
}

// ResultStatus is the per-resource outcome of a reconciliation run.
type ResultStatus string

const (
	// ResultUnchanged indicates the resource was already converged.
	ResultUnchanged ResultStatus = "unchanged"

	// ResultConverged indicates an action was applied successfully.
	ResultConverged ResultStatus = "converged"

	// ResultFailed indicates the resource could not be converged.
	ResultFailed ResultStatus = "failed"
)

// IsSuccess returns true for unchanged and converged results.
func (r ResultStatus) IsSuccess() bool {
	return r == ResultUnchanged || r == ResultConverged
}

// Validate checks if the result status is valid.
func (r ResultStatus) Validate() error {
	switch r {
	case ResultUnchanged, ResultConverged, ResultFailed:
		return nil
	default:
		return fmt.Errorf("invalid result status: %s", r)
	}
}

// RunStatus represents the overall outcome of a reconciliation run.
type RunStatus string

const (
	// RunStatusSucceeded indicates every resource is unchanged or converged.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates at least one resource failed.
	RunStatusFailed RunStatus = "failed"
)

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusSucceeded, RunStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}
