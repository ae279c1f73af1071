package engine

import (
	"context"
	"os"
)

// Inspector determines the current state of a resource on the host.
// Implementations must not mutate host state.
type Inspector interface {
	// Inspect returns the observed state of a resource.
	Inspect(ctx context.Context, r Resource) (*State, error)
}

// HostFS is the filesystem capability the inspector and executor use.
type HostFS interface {
	// InspectDirectory reports exists (with mode), not_exists or conflict.
	InspectDirectory(ctx context.Context, path string) (*State, error)

	// InspectFile reports exists (with content hash), not_exists or conflict.
	InspectFile(ctx context.Context, path string) (*State, error)

	// HashSource returns the SHA256 of the content behind a source reference.
	HashSource(ctx context.Context, src SourceRef) (string, error)

	// EnsureDirectory creates path with mode or corrects the mode of an
	// existing directory. It reports whether anything changed and returns a
	// path conflict error if a non-directory occupies path.
	EnsureDirectory(ctx context.Context, path string, mode os.FileMode) (bool, error)

	// CopyFile reads src fully and atomically replaces dst with its content.
	CopyFile(ctx context.Context, src SourceRef, dst string, mode os.FileMode) error
}

// StackEngine is the container engine capability for composed stacks.
type StackEngine interface {
	// Status reports running, stopped or degraded.
	Status(ctx context.Context, stack *StackSpec) (*State, error)

	// Up brings the composition up in the background.
	Up(ctx context.Context, stack *StackSpec) error

	// Down brings the composition down.
	Down(ctx context.Context, stack *StackSpec) error
}

// Guard vets the resource model before any resource is touched.
// A returned error aborts the run as a configuration error.
type Guard interface {
	CheckResources(ctx context.Context, resources []Resource) error
}

// Journal records finished runs. It is history only and never read back
// by the planner.
type Journal interface {
	RecordRun(ctx context.Context, outcome *RunOutcome) error
}
