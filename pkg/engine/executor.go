package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Executor applies planned actions against the host filesystem and the
// container engine.
type Executor struct {
	fs     HostFS
	stacks StackEngine
	logger zerolog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(fs HostFS, stacks StackEngine, logger zerolog.Logger) *Executor {
	return &Executor{
		fs:     fs,
		stacks: stacks,
		logger: logger.With().Str("component", "executor").Logger(),
	}
}

// Execute applies one action and reports whether host state changed.
// Failures are classified: path conflicts keep their kind, everything else
// becomes an execution error.
func (e *Executor) Execute(ctx context.Context, action *Action) (bool, error) {
	changed, err := e.execute(ctx, action)
	if err != nil {
		return false, asExecutionError(err, action)
	}
	return changed, nil
}

func (e *Executor) execute(ctx context.Context, action *Action) (bool, error) {
	switch action.Type {
	case ActionNone:
		return false, nil

	case ActionCreateDirectory:
		return e.fs.EnsureDirectory(ctx, action.Path, action.Mode)

	case ActionCopyFile:
		if err := e.fs.CopyFile(ctx, action.Source, action.Path, action.Mode); err != nil {
			return false, err
		}
		return true, nil

	case ActionStartStack:
		if err := e.requireStacks(action); err != nil {
			return false, err
		}
		if err := e.stacks.Up(ctx, action.Stack); err != nil {
			return false, err
		}
		return true, nil

	case ActionStopStack:
		if err := e.requireStacks(action); err != nil {
			return false, err
		}
		if err := e.stacks.Down(ctx, action.Stack); err != nil {
			return false, err
		}
		return true, nil

	default:
		return false, fmt.Errorf("unsupported action: %s", action.Type)
	}
}

func (e *Executor) requireStacks(action *Action) error {
	if e.stacks == nil {
		return errors.New("no container engine configured")
	}
	if action.Stack == nil {
		return errors.New("stack action without stack spec")
	}
	return nil
}

// asExecutionError keeps classified errors and wraps everything else.
func asExecutionError(err error, action *Action) *EngineError {
	var e *EngineError
	if errors.As(err, &e) {
		if e.Resource == "" {
			e.Resource = action.ResourceID
		}
		if e.Operation == "" {
			e.Operation = string(action.Type)
		}
		return e
	}
	return NewExecutionError(fmt.Sprintf("%s failed", action.Type), err).
		WithResource(action.ResourceID).
		WithOperation(string(action.Type))
}
