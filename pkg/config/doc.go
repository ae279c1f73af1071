// Package config loads the inputs of a stackprov run.
//
// # Overview
//
// Inputs name the project root, the two source files and a few optional
// knobs. They can come from a CUE, TOML or YAML file, from command-line
// flags, or both; flags win.
//
// # Formats
//
//   - .cue: unified with the built-in #Inputs schema, so type errors and
//     unknown fields are reported with file, line and column
//   - .toml: decoded strictly with go-toml
//   - .yaml, .yml: decoded strictly with yaml.v3
//
// Relative source paths are resolved against the directory of the file
// that names them, or against the working directory for flags.
//
// # Usage Example
//
//	loader := config.NewLoader()
//	doc, err := loader.Resolve("stack.cue", config.Overrides{ProjectRoot: "/srv/app"})
//	if err != nil {
//	    return err
//	}
//	if err := doc.Err(); err != nil {
//	    return err
//	}
//	resources, err := engine.BuildResources(doc.Inputs.ToEngineInputs())
//
// Source readability is not part of loading. CheckSources performs it for
// the validate command; during a run an unreadable source fails only the
// file that needs it.
package config
