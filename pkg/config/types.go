package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/stackprov/pkg/engine"
)

// Inputs is the operator-facing configuration of one stack.
type Inputs struct {
	// ProjectRoot is the absolute directory the stack lives in.
	ProjectRoot string `json:"project_root" yaml:"project_root" toml:"project_root" validate:"required,startswith=/"`

	// ConfigSource is the path of the service configuration file to install.
	ConfigSource string `json:"config_source" yaml:"config_source" toml:"config_source" validate:"required"`

	// ComposeSource is the path of the composition file to install.
	ComposeSource string `json:"compose_source" yaml:"compose_source" toml:"compose_source" validate:"required"`

	// ConfigName is the file name under conf/ (default app.config).
	ConfigName string `json:"config_name,omitempty" yaml:"config_name,omitempty" toml:"config_name,omitempty" validate:"omitempty,excludes=/"`

	// ProjectName overrides the stack name derived from ProjectRoot.
	ProjectName string `json:"project_name,omitempty" yaml:"project_name,omitempty" toml:"project_name,omitempty" validate:"omitempty,max=63"`

	// StackState is present (default) or absent.
	StackState string `json:"stack_state,omitempty" yaml:"stack_state,omitempty" toml:"stack_state,omitempty" validate:"omitempty,oneof=present absent"`

	// Journal is the SQLite run journal path. Empty disables journaling.
	Journal string `json:"journal,omitempty" yaml:"journal,omitempty" toml:"journal,omitempty"`

	// Policy configures the policy guard.
	Policy PolicyConfig `json:"policy,omitempty" yaml:"policy,omitempty" toml:"policy,omitempty"`
}

// PolicyConfig configures policy enforcement.
type PolicyConfig struct {
	// Disabled turns the guard off entirely.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty" toml:"disabled,omitempty"`

	// Paths lists additional .rego files or directories.
	Paths []string `json:"paths,omitempty" yaml:"paths,omitempty" toml:"paths,omitempty"`

	// Mode is enforcing (default) or advisory. Advisory only logs violations.
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty" toml:"mode,omitempty" validate:"omitempty,oneof=advisory enforcing"`
}

// Overrides are command-line values that take precedence over the file.
type Overrides struct {
	ProjectRoot   string
	ConfigSource  string
	ComposeSource string
	ConfigName    string
	ProjectName   string
	Journal       string
	PolicyPaths   []string
	NoPolicy      bool
}

// ApplyOverrides replaces file values with every non-empty override.
func (in *Inputs) ApplyOverrides(o Overrides) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&in.ProjectRoot, o.ProjectRoot)
	set(&in.ConfigSource, o.ConfigSource)
	set(&in.ComposeSource, o.ComposeSource)
	set(&in.ConfigName, o.ConfigName)
	set(&in.ProjectName, o.ProjectName)
	set(&in.Journal, o.Journal)
	in.Policy.Paths = append(in.Policy.Paths, o.PolicyPaths...)
	if o.NoPolicy {
		in.Policy.Disabled = true
	}
}

// ToEngineInputs converts to the engine's input type.
func (in Inputs) ToEngineInputs() engine.Inputs {
	return engine.Inputs{
		ProjectRoot:   in.ProjectRoot,
		ConfigSource:  in.ConfigSource,
		ComposeSource: in.ComposeSource,
		ConfigName:    in.ConfigName,
		ProjectName:   in.ProjectName,
		StackState:    engine.DesiredStackState(in.StackState),
	}
}

// Sources returns the source paths of the inputs, config first.
func (in Inputs) Sources() []string {
	return []string{in.ConfigSource, in.ComposeSource}
}

// Document is a loaded configuration together with its problems.
type Document struct {
	// Inputs holds the decoded values.
	Inputs Inputs `json:"inputs"`

	// SourceFile is the configuration file, empty when only flags were used.
	SourceFile string `json:"source_file,omitempty"`

	// Format is cue, toml, yaml or flags.
	Format string `json:"format"`

	// LoadedAt is when the document was loaded.
	LoadedAt time.Time `json:"loaded_at"`

	// Errors lists every problem found.
	Errors []ValidationError `json:"errors,omitempty"`
}

// Valid returns true if no error-severity problem was found.
func (d *Document) Valid() bool {
	for _, e := range d.Errors {
		if e.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Err returns a configuration error summarizing the problems, or nil.
func (d *Document) Err() error {
	if d.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(d.Errors))
	for _, e := range d.Errors {
		if e.Severity == SeverityError {
			msgs = append(msgs, e.String())
		}
	}
	return engine.NewConfigurationError("invalid configuration: "+strings.Join(msgs, "; "), nil).
		WithCode(engine.ErrCodeValidation).
		WithDetail("errors", d.Errors)
}

// Severity levels of a ValidationError.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path (e.g., "policy.mode").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is error or warning.
	Severity string `json:"severity" validate:"required,oneof=error warning"`
}

// String renders the error as file:line:col: path: message, omitting
// unknown parts.
func (e ValidationError) String() string {
	var sb strings.Builder
	if e.File != "" {
		sb.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&sb, ":%d", e.Line)
			if e.Column > 0 {
				fmt.Fprintf(&sb, ":%d", e.Column)
			}
		}
		sb.WriteString(": ")
	}
	if e.Path != "" {
		sb.WriteString(e.Path)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	return sb.String()
}
