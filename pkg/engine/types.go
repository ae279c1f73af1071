package engine

import (
	"os"
	"time"
)

// Resource is one manageable object with a desired-state description.
// Implementations are immutable once constructed.
type Resource interface {
	// ID is the unique, stable identifier of the resource within a run.
	ID() string

	// Kind returns the resource kind.
	Kind() ResourceKind

	// Dependencies lists the IDs of resources that must converge first.
	Dependencies() []string
}

// DirectorySpec describes a directory that must exist with a given mode.
type DirectorySpec struct {
	// Path is the absolute directory path.
	Path string `json:"path"`

	// Mode is the permission bits the directory must carry.
	Mode os.FileMode `json:"mode"`

	// DependsOn lists resource IDs that must converge first.
	DependsOn []string `json:"depends_on,omitempty"`
}

// ID implements Resource.
func (d *DirectorySpec) ID() string { return "dir:" + d.Path }

// Kind implements Resource.
func (d *DirectorySpec) Kind() ResourceKind { return KindDirectory }

// Dependencies implements Resource.
func (d *DirectorySpec) Dependencies() []string { return d.DependsOn }

// SourceRef is an opaque handle to source content. In this implementation
// it is a path on the local host.
type SourceRef string

// Path returns the local path the reference resolves to.
func (s SourceRef) Path() string { return string(s) }

// FileSpec describes a file whose content must equal its source byte for byte.
type FileSpec struct {
	// Source is the handle to the desired content.
	Source SourceRef `json:"source"`

	// Destination is the absolute path of the materialized file.
	Destination string `json:"destination"`

	// Mode is the permission bits used when the file is written.
	Mode os.FileMode `json:"mode"`

	// DependsOn lists resource IDs that must converge first.
	DependsOn []string `json:"depends_on,omitempty"`
}

// ID implements Resource.
func (f *FileSpec) ID() string { return "file:" + f.Destination }

// Kind implements Resource.
func (f *FileSpec) Kind() ResourceKind { return KindFile }

// Dependencies implements Resource.
func (f *FileSpec) Dependencies() []string { return f.DependsOn }

// StackSpec describes a composed container stack.
type StackSpec struct {
	// ProjectRoot is the directory containing the composition file.
	ProjectRoot string `json:"project_root"`

	// ProjectName is the name the container engine groups the stack under.
	ProjectName string `json:"project_name"`

	// ComposeFile is the absolute path of the composition file.
	ComposeFile string `json:"compose_file"`

	// DesiredState is present or absent.
	DesiredState DesiredStackState `json:"desired_state"`

	// DependsOn lists resource IDs that must converge first.
	DependsOn []string `json:"depends_on,omitempty"`
}

// ID implements Resource.
func (s *StackSpec) ID() string { return "stack:" + s.ProjectName }

// Kind implements Resource.
func (s *StackSpec) Kind() ResourceKind { return KindStack }

// Dependencies implements Resource.
func (s *StackSpec) Dependencies() []string { return s.DependsOn }

// State is what the inspector observed for one resource.
type State struct {
	// Status is the observed condition.
	Status StateStatus `json:"status"`

	// Mode is the permission bits of an existing directory.
	Mode os.FileMode `json:"mode,omitempty"`

	// Hash is the SHA256 of an existing file's content.
	Hash string `json:"hash,omitempty"`

	// SourceHash is the SHA256 of the desired content of a file.
	SourceHash string `json:"source_hash,omitempty"`

	// Services lists the declared services of a stack.
	Services []string `json:"services,omitempty"`

	// RunningServices lists the services of a stack with a running container.
	RunningServices []string `json:"running_services,omitempty"`
}

// Action is the minimal operation that converges one resource.
type Action struct {
	// Type is the action type.
	Type ActionType `json:"type"`

	// ResourceID is the resource the action applies to.
	ResourceID string `json:"resource_id"`

	// Path is the directory path or file destination.
	Path string `json:"path,omitempty"`

	// Mode is the permission bits to apply.
	Mode os.FileMode `json:"mode,omitempty"`

	// Source is the content source of a copy.
	Source SourceRef `json:"source,omitempty"`

	// Stack is set for stack actions.
	Stack *StackSpec `json:"stack,omitempty"`
}

// ResourceResult is the per-resource outcome of a run.
type ResourceResult struct {
	// ResourceID identifies the resource.
	ResourceID string `json:"resource_id"`

	// Kind is the resource kind.
	Kind ResourceKind `json:"kind"`

	// Status is unchanged, converged or failed.
	Status ResultStatus `json:"status"`

	// Action is the action that was planned, if inspection succeeded.
	Action ActionType `json:"action,omitempty"`

	// Observed is the state seen before the action.
	Observed StateStatus `json:"observed,omitempty"`

	// ErrorKind classifies a failure.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	// Reason is the human-readable failure reason.
	Reason string `json:"reason,omitempty"`

	// Err is the underlying failure.
	Err error `json:"-"`

	// Duration is how long inspect, plan and execute took.
	Duration time.Duration `json:"duration"`
}

// RunOutcome is the aggregated result of one reconciliation run.
type RunOutcome struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// Status is succeeded or failed.
	Status RunStatus `json:"status"`

	// FailedResource is the first failing resource in execution order.
	FailedResource string `json:"failed_resource,omitempty"`

	// FailedKind is the error kind of the first failure.
	FailedKind ErrorKind `json:"failed_kind,omitempty"`

	// Reason is the failure reason of the first failing resource.
	Reason string `json:"reason,omitempty"`

	// Results holds one entry per resource in execution order.
	Results []ResourceResult `json:"results"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run finished.
	CompletedAt time.Time `json:"completed_at"`
}

// Succeeded returns true if every resource is unchanged or converged.
func (o *RunOutcome) Succeeded() bool {
	return o.Status == RunStatusSucceeded
}

// Result returns the result recorded for a resource, or nil.
func (o *RunOutcome) Result(resourceID string) *ResourceResult {
	for i := range o.Results {
		if o.Results[i].ResourceID == resourceID {
			return &o.Results[i]
		}
	}
	return nil
}

// Counts returns the number of results per status.
func (o *RunOutcome) Counts() map[ResultStatus]int {
	counts := make(map[ResultStatus]int)
	for _, r := range o.Results {
		counts[r.Status]++
	}
	return counts
}

// PlanStep is one entry of a dry-run plan.
type PlanStep struct {
	// ResourceID identifies the resource.
	ResourceID string `json:"resource_id"`

	// Kind is the resource kind.
	Kind ResourceKind `json:"kind"`

	// State is the inspected state, nil if inspection failed or was blocked.
	State *State `json:"state,omitempty"`

	// Action is the planned action.
	Action *Action `json:"action,omitempty"`

	// Error is set when the resource could not be planned.
	Error string `json:"error,omitempty"`

	// ErrorKind classifies Error.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
}

// Plan is the dry-run view of a reconciliation.
type Plan struct {
	// Steps are in execution order.
	Steps []PlanStep `json:"steps"`

	// Summary counts planned actions.
	Summary PlanSummary `json:"summary"`

	// CreatedAt is when the plan was computed.
	CreatedAt time.Time `json:"created_at"`
}

// PlanSummary provides statistics about a plan.
type PlanSummary struct {
	Total    int `json:"total"`
	NoAction int `json:"no_action"`
	Mutating int `json:"mutating"`
	Errored  int `json:"errored"`
}

// GraphNode represents a resource in the execution graph.
type GraphNode struct {
	// ID is the resource ID.
	ID string `json:"id"`

	// Index is the declaration position of the resource.
	Index int `json:"index"`

	// Level is the dependency depth (0 for roots).
	Level int `json:"level"`

	// Dependencies are the IDs this resource waits for.
	Dependencies []string `json:"dependencies"`

	// Dependents are the IDs waiting for this resource.
	Dependents []string `json:"dependents"`
}

// ExecutionGraph is the ordered dependency graph of one run.
type ExecutionGraph struct {
	// Nodes maps resource IDs to graph nodes.
	Nodes map[string]*GraphNode `json:"nodes"`

	// Order is the deterministic execution order.
	Order []string `json:"order"`

	// Roots are resources with no dependencies, in declaration order.
	Roots []string `json:"roots"`

	// Depth is the number of dependency levels.
	Depth int `json:"depth"`
}
