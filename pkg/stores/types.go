package stores

import (
	"time"
)

// RunRecord is a journaled reconciliation run.
type RunRecord struct {
	ID             string    `json:"id"`
	Operation      string    `json:"operation"`
	Status         string    `json:"status"`
	FailedResource string    `json:"failed_resource,omitempty"`
	FailedKind     string    `json:"failed_kind,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Resources      int       `json:"resources"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Duration returns how long the run took.
func (r *RunRecord) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// ResourceRecord is the journaled result of one resource within a run.
type ResourceRecord struct {
	RunID      string        `json:"run_id"`
	Seq        int           `json:"seq"` // position in execution order
	ResourceID string        `json:"resource_id"`
	Kind       string        `json:"kind"`
	Status     string        `json:"status"`
	Observed   string        `json:"observed,omitempty"`
	Action     string        `json:"action,omitempty"`
	ErrorKind  string        `json:"error_kind,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Config holds journal store configuration
type Config struct {
	Path string

	// Operation is recorded with every run, e.g. "apply" or "down".
	Operation string
}
