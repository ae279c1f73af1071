// Package engine implements the reconciliation core of stackprov: the
// resource model, dependency ordering, action planning, execution and the
// run driver that ties them together.
//
// # Overview
//
// A run converges one host toward a small declared layout:
//
//  1. Model - BuildResources turns resolved Inputs into resources
//  2. Order - DAGBuilder sorts resources topologically, ties broken by
//     declaration order
//  3. Inspect - an Inspector observes each resource without mutating it
//  4. Plan - the Planner picks the minimal converging action
//  5. Execute - the Executor applies it through HostFS and StackEngine
//
// The Reconciler drives the steps one resource at a time and aggregates a
// RunOutcome.
//
// # Resources
//
//   - DirectorySpec: a directory with a permission mode
//   - FileSpec: a file materialized from a source, compared by SHA256
//   - StackSpec: a composed container stack, desired present or absent
//
// Resource IDs are "dir:<path>", "file:<destination>" and
// "stack:<project>".
//
// # Failure Handling
//
// Invalid graphs and guard denials abort the run before anything is touched
// and are returned as configuration errors. Every other failure is recorded
// on the resource: the resource fails, resources depending on it fail with
// ErrorKindBlocked, and unrelated resources are still attempted. The first
// failed resource in execution order is reported on the outcome.
//
//   - ErrorKindConfiguration: invalid model, cycle, guard denial
//   - ErrorKindInspection: state could not be observed
//   - ErrorKindPathConflict: a foreign object occupies a path; never removed
//   - ErrorKindExecution: an action failed
//   - ErrorKindBlocked: a dependency failed
//
// # Idempotence
//
// Inspection compares modes, content hashes and stack status, so a second
// run against a converged host plans ActionNone everywhere and reports every
// resource unchanged.
package engine
