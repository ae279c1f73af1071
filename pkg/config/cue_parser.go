package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
)

// CUEParser parses CUE configuration files and checks them against the
// #Inputs schema.
type CUEParser struct {
	registry *SchemaRegistry
}

// NewCUEParser creates a new CUE parser. A nil registry gets the built-in
// schemas.
func NewCUEParser(registry *SchemaRegistry) *CUEParser {
	if registry == nil {
		registry = NewSchemaRegistry()
	}
	return &CUEParser{registry: registry}
}

// ParseFile parses a CUE file. Problems in the file are reported on the
// document; only an unreadable file is an error.
func (cp *CUEParser) ParseFile(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return cp.parse(path, string(content)), nil
}

// ParseInline parses inline CUE content.
func (cp *CUEParser) ParseInline(content string) *Document {
	return cp.parse("", content)
}

func (cp *CUEParser) parse(filename, content string) *Document {
	doc := &Document{
		SourceFile: filename,
		Format:     FormatCUE,
		LoadedAt:   time.Now(),
	}

	var opts []cue.BuildOption
	if filename != "" {
		opts = append(opts, cue.Filename(filename))
	}

	val := cp.registry.Context().CompileString(content, opts...)
	if err := val.Err(); err != nil {
		doc.Errors = convertCUEErrors(err)
		return doc
	}

	unified, err := cp.registry.Unify(SchemaInputs, val)
	if err != nil {
		doc.Errors = convertCUEErrors(err)
		return doc
	}

	if err := unified.Decode(&doc.Inputs); err != nil {
		doc.Errors = append(doc.Errors, ValidationError{
			File:     filename,
			Message:  fmt.Sprintf("failed to decode inputs: %v", err),
			Severity: SeverityError,
		})
	}

	return doc
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	for _, e := range errors.Errors(err) {
		var file string
		var line, column int
		if pos := errors.Positions(e); len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Path:     strings.Join(e.Path(), "."),
			Message:  strings.TrimSpace(errors.Details(e, nil)),
			Severity: SeverityError,
		})
	}

	return validationErrors
}
