// Package stores provides the SQLite run journal. Every finished
// reconciliation appends one row to runs and one row per resource to
// resource_results. The journal is history only: nothing in the engine reads
// it back, idempotency comes from inspecting the host.
package stores
