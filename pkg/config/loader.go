package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Supported configuration formats.
const (
	FormatCUE   = "cue"
	FormatTOML  = "toml"
	FormatYAML  = "yaml"
	FormatFlags = "flags"
)

// Loader loads Inputs from a file and validates them.
type Loader struct {
	parser   *CUEParser
	validate *validator.Validate
}

// NewLoader creates a loader with the built-in schemas.
func NewLoader() *Loader {
	v := validator.New()
	// Report fields by their file names
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Loader{
		parser:   NewCUEParser(nil),
		validate: v,
	}
}

// Load reads a configuration file, choosing the format by extension.
// Relative paths inside the file are resolved against the file's directory.
func (l *Loader) Load(path string) (*Document, error) {
	var doc *Document
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue":
		d, err := l.parser.ParseFile(path)
		if err != nil {
			return nil, err
		}
		doc = d

	case ".toml", ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if ext == ".toml" {
			doc = decodeTOML(path, data)
		} else {
			doc = decodeYAML(path, data)
		}

	default:
		return nil, fmt.Errorf("unsupported configuration format %q (want .cue, .toml, .yaml or .yml)", ext)
	}

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	resolveRelative(&doc.Inputs, base)
	return doc, nil
}

// Resolve loads path (if set), applies overrides and validates the result.
// Problems are reported on the document; see Document.Err.
func (l *Loader) Resolve(path string, o Overrides) (*Document, error) {
	doc := &Document{Format: FormatFlags, LoadedAt: time.Now()}
	if path != "" {
		loaded, err := l.Load(path)
		if err != nil {
			return nil, err
		}
		doc = loaded
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	flagInputs := Inputs{
		ConfigSource:  o.ConfigSource,
		ComposeSource: o.ComposeSource,
		Journal:       o.Journal,
		Policy:        PolicyConfig{Paths: slices.Clone(o.PolicyPaths)},
	}
	resolveRelative(&flagInputs, cwd)
	o.ConfigSource, o.ComposeSource, o.Journal, o.PolicyPaths =
		flagInputs.ConfigSource, flagInputs.ComposeSource, flagInputs.Journal, flagInputs.Policy.Paths

	doc.Inputs.ApplyOverrides(o)
	doc.Errors = append(doc.Errors, l.ValidateInputs(doc.Inputs)...)
	return doc, nil
}

// ValidateInputs checks struct constraints.
func (l *Loader) ValidateInputs(in Inputs) []ValidationError {
	err := l.validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{Message: err.Error(), Severity: SeverityError}}
	}

	problems := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, ValidationError{
			Path:     strings.TrimPrefix(fe.Namespace(), "Inputs."),
			Message:  describeFieldError(fe),
			Severity: SeverityError,
		})
	}
	return problems
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "startswith":
		return "must be an absolute path"
	case "excludes":
		return fmt.Sprintf("must not contain %q", fe.Param())
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// CheckSources verifies that every source file can be opened for reading.
func CheckSources(in Inputs) []ValidationError {
	var problems []ValidationError
	check := func(field, path string) {
		if path == "" {
			return
		}
		f, err := os.Open(path)
		if err != nil {
			problems = append(problems, ValidationError{
				Path:     field,
				Message:  fmt.Sprintf("source is not readable: %v", err),
				Severity: SeverityError,
			})
			return
		}
		defer f.Close()
		if info, err := f.Stat(); err == nil && info.IsDir() {
			problems = append(problems, ValidationError{
				Path:     field,
				Message:  fmt.Sprintf("source %s is a directory", path),
				Severity: SeverityError,
			})
		}
	}
	check("config_source", in.ConfigSource)
	check("compose_source", in.ComposeSource)
	return problems
}

func decodeTOML(path string, data []byte) *Document {
	doc := &Document{SourceFile: path, Format: FormatTOML, LoadedAt: time.Now()}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	err := dec.Decode(&doc.Inputs)
	if err == nil {
		return doc
	}

	var strictErr *toml.StrictMissingError
	if errors.As(err, &strictErr) {
		for _, e := range strictErr.Errors {
			row, col := e.Position()
			doc.Errors = append(doc.Errors, ValidationError{
				File:     path,
				Line:     row,
				Column:   col,
				Path:     strings.Join(e.Key(), "."),
				Message:  "unknown field",
				Severity: SeverityError,
			})
		}
		return doc
	}

	problem := ValidationError{File: path, Message: err.Error(), Severity: SeverityError}
	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		problem.Line, problem.Column = decodeErr.Position()
		problem.Path = strings.Join(decodeErr.Key(), ".")
	}
	doc.Errors = append(doc.Errors, problem)
	return doc
}

var yamlLinePattern = regexp.MustCompile(`^(?:yaml: )?line (\d+): (.*)$`)

func decodeYAML(path string, data []byte) *Document {
	doc := &Document{SourceFile: path, Format: FormatYAML, LoadedAt: time.Now()}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	err := dec.Decode(&doc.Inputs)
	if err == nil || errors.Is(err, io.EOF) {
		return doc
	}

	messages := []string{err.Error()}
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		messages = typeErr.Errors
	}

	for _, msg := range messages {
		problem := ValidationError{File: path, Message: msg, Severity: SeverityError}
		if m := yamlLinePattern.FindStringSubmatch(msg); m != nil {
			problem.Line, _ = strconv.Atoi(m[1])
			problem.Message = m[2]
		}
		doc.Errors = append(doc.Errors, problem)
	}
	return doc
}

// resolveRelative makes file references absolute against base. The project
// root is left alone: a relative root is a configuration error.
func resolveRelative(in *Inputs, base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	in.ConfigSource = abs(in.ConfigSource)
	in.ComposeSource = abs(in.ComposeSource)
	in.Journal = abs(in.Journal)
	for i, p := range in.Policy.Paths {
		in.Policy.Paths[i] = abs(p)
	}
}
