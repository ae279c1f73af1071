// Package policy vets the resource model with Open Policy Agent before a run
// touches the host.
//
// Every enabled policy is evaluated once per resource. A policy is a Rego
// module whose package defines a deny set; entries are either message strings
// or objects carrying message, severity and resource. Each resource is
// presented as input.resource:
//
//	{
//	  "id": "dir:/srv/app",
//	  "kind": "directory",
//	  "path": "/srv/app",
//	  "mode": 493,
//	  "dependencies": []
//	}
//
// Files add "source"; stacks add "project" and "desired_state". The operation
// being run (apply, down, validate) is available as input.context.operation.
//
// # Built-in Policies
//
//   - absolute-paths: managed paths and sources must be absolute
//   - system-directories: nothing is managed at /, /usr or /usr/local, or
//     inside /etc, the /usr system subtrees and the other system trees
//   - project-name: stack project names follow the container engine's rules
//   - file-modes: warns about world-writable modes
//
// # Modes
//
// In enforcing mode (the default) an error or critical violation makes
// CheckResources return a configuration error and the run stops before any
// resource is inspected. In advisory mode violations are only logged.
//
// Custom policies are loaded from .rego and .json files:
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"/etc/stackprov/policies"}); err != nil {
//	    return err
//	}
//	reconciler.WithGuard(eng)
package policy
