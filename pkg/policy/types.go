package policy

import (
	"fmt"
	"os"
	"time"

	"github.com/openfroyo/stackprov/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that should block operations.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocking returns true for severities that deny a run.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Mode controls what happens on a blocking violation.
type Mode string

const (
	// ModeEnforcing denies the run.
	ModeEnforcing Mode = "enforcing"

	// ModeAdvisory logs the violation and lets the run proceed.
	ModeAdvisory Mode = "advisory"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. It must define a deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Resource is the resource ID that violated the policy.
	Resource string `json:"resource,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// String renders the violation for terminal output.
func (v Violation) String() string {
	if v.Resource == "" {
		return fmt.Sprintf("[%s] %s: %s", v.Severity, v.Policy, v.Message)
	}
	return fmt.Sprintf("[%s] %s: %s: %s", v.Severity, v.Policy, v.Resource, v.Message)
}

// Result represents the result of policy evaluation.
type Result struct {
	// Allowed is false if any violation is blocking.
	Allowed bool `json:"allowed"`

	// Violations lists blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists non-blocking violations.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document policies see as `input`.
type Input struct {
	// Resource is the resource being evaluated.
	Resource *ResourceInput `json:"resource"`

	// Context provides evaluation context.
	Context *Context `json:"context"`
}

// ResourceInput is the policy view of one resource.
type ResourceInput struct {
	ID           string   `json:"id"`
	Kind         string   `json:"kind"`
	Path         string   `json:"path"`
	Mode         int      `json:"mode,omitempty"`
	Source       string   `json:"source,omitempty"`
	Project      string   `json:"project,omitempty"`
	DesiredState string   `json:"desired_state,omitempty"`
	Dependencies []string `json:"dependencies"`
}

// Context provides context information for policy evaluation.
type Context struct {
	// Operation is the command being run (apply, plan, down, validate).
	Operation string `json:"operation"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}

// NewResourceInput converts an engine resource into policy input.
func NewResourceInput(r engine.Resource) *ResourceInput {
	in := &ResourceInput{
		ID:           r.ID(),
		Kind:         string(r.Kind()),
		Dependencies: r.Dependencies(),
	}
	if in.Dependencies == nil {
		in.Dependencies = []string{}
	}

	switch spec := r.(type) {
	case *engine.DirectorySpec:
		in.Path = spec.Path
		in.Mode = modeBits(spec.Mode)
	case *engine.FileSpec:
		in.Path = spec.Destination
		in.Mode = modeBits(spec.Mode)
		in.Source = spec.Source.Path()
	case *engine.StackSpec:
		in.Path = spec.ProjectRoot
		in.Project = spec.ProjectName
		in.DesiredState = string(spec.DesiredState)
	}
	return in
}

func modeBits(mode os.FileMode) int {
	return int(mode.Perm())
}
