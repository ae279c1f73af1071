package engine

import (
	"context"
	"errors"
	"fmt"
)

// HostInspector implements Inspector over a filesystem and a stack engine.
type HostInspector struct {
	fs     HostFS
	stacks StackEngine
}

// NewHostInspector creates an inspector for the local host.
func NewHostInspector(fs HostFS, stacks StackEngine) *HostInspector {
	return &HostInspector{fs: fs, stacks: stacks}
}

// Inspect returns the observed state of a resource. Every failure is an
// inspection error carrying the resource ID.
func (i *HostInspector) Inspect(ctx context.Context, r Resource) (*State, error) {
	state, err := i.inspect(ctx, r)
	if err != nil {
		return nil, asInspectionError(err, r.ID())
	}
	return state, nil
}

func (i *HostInspector) inspect(ctx context.Context, r Resource) (*State, error) {
	switch spec := r.(type) {
	case *DirectorySpec:
		return i.fs.InspectDirectory(ctx, spec.Path)

	case *FileSpec:
		sourceHash, err := i.fs.HashSource(ctx, spec.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to read source %s: %w", spec.Source, err)
		}
		state, err := i.fs.InspectFile(ctx, spec.Destination)
		if err != nil {
			return nil, err
		}
		state.SourceHash = sourceHash
		return state, nil

	case *StackSpec:
		if i.stacks == nil {
			return nil, errors.New("no container engine configured")
		}
		return i.stacks.Status(ctx, spec)

	default:
		return nil, fmt.Errorf("unsupported resource kind: %s", r.Kind())
	}
}

// asInspectionError keeps classified errors and wraps everything else.
func asInspectionError(err error, resourceID string) *EngineError {
	var e *EngineError
	if errors.As(err, &e) {
		if e.Resource == "" {
			e.Resource = resourceID
		}
		return e
	}
	return NewInspectionError("failed to inspect resource", err).
		WithResource(resourceID).WithOperation("inspect")
}
