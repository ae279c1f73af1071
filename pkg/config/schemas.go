package config

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Names of the built-in schemas.
const (
	SchemaInputs = "inputs"
	SchemaPolicy = "policy"
)

// SchemaRegistry manages CUE schemas for validation. All schemas and every
// value validated against them share one cue.Context.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	// Built-ins are constants; a compile failure is a programming error
	if err := sr.RegisterSchema(SchemaInputs, builtinInputsSchema, "#Inputs"); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema(SchemaPolicy, builtinPolicySchema, "#Policy"); err != nil {
		panic(err)
	}

	return sr
}

// Context returns the cue.Context values must be built in to be unified
// with registered schemas.
func (sr *SchemaRegistry) Context() *cue.Context {
	return sr.ctx
}

// RegisterSchema compiles a CUE source and registers the definition at path
// under name.
func (sr *SchemaRegistry) RegisterSchema(name, source, path string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(path))
	if !def.Exists() {
		return fmt.Errorf("schema %s has no definition %s", name, path)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Unify unifies a value with a named schema and validates the result.
func (sr *SchemaRegistry) Unify(schemaName string, val cue.Value) (cue.Value, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", schemaName)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return unified, err
	}
	return unified, nil
}

// ValidateAgainstSchema validates Go data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(_ context.Context, schemaName string, data interface{}) error {
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	if _, err := sr.Unify(schemaName, dataVal); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Built-in schema definitions. Every field is optional here: command-line
// overrides may supply required values, so presence is checked after
// overrides are applied.

const builtinInputsSchema = `
#Inputs: {
	// project_root is the absolute directory of the stack
	project_root?: string & =~"^/"

	// config_source is the service configuration to install
	config_source?: string & !=""

	// compose_source is the composition file to install
	compose_source?: string & !=""

	// config_name is a plain file name under conf/
	config_name?: string & =~"^[^/]+$"

	// project_name must be a valid compose project name
	project_name?: string & =~"^[a-z0-9][a-z0-9_-]*$"

	stack_state?: "present" | "absent"

	journal?: string

	policy?: #Policy
}

#Policy: {
	disabled?: bool
	paths?: [...string]
	mode?: "advisory" | "enforcing"
}
`

const builtinPolicySchema = `
#Policy: {
	disabled?: bool
	paths?: [...string]
	mode?: "advisory" | "enforcing"
}
`
