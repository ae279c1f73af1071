package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCUEParser_ParseInline(t *testing.T) {
	parser := NewCUEParser(nil)

	tests := []struct {
		name      string
		content   string
		wantErr   bool
		checkFunc func(*testing.T, *Document)
	}{
		{
			name: "valid config",
			content: `
project_root:   "/srv/app"
config_source:  "/src/app.config"
compose_source: "/src/docker-compose.yml"
stack_state:    "present"
policy: mode: "advisory"
`,
			checkFunc: func(t *testing.T, doc *Document) {
				if doc.Inputs.ProjectRoot != "/srv/app" {
					t.Errorf("expected project root /srv/app, got %s", doc.Inputs.ProjectRoot)
				}
				if doc.Inputs.Policy.Mode != "advisory" {
					t.Errorf("expected advisory policy mode, got %s", doc.Inputs.Policy.Mode)
				}
			},
		},
		{
			name:    "partial config is accepted",
			content: `config_name: "settings.ini"`,
			checkFunc: func(t *testing.T, doc *Document) {
				if doc.Inputs.ConfigName != "settings.ini" {
					t.Errorf("expected config name settings.ini, got %s", doc.Inputs.ConfigName)
				}
			},
		},
		{
			name:    "relative project root",
			content: `project_root: "srv/app"`,
			wantErr: true,
		},
		{
			name:    "unknown field",
			content: `project_rot: "/srv/app"`,
			wantErr: true,
		},
		{
			name:    "invalid stack state",
			content: `stack_state: "paused"`,
			wantErr: true,
		},
		{
			name:    "invalid project name",
			content: `project_name: "My App"`,
			wantErr: true,
		},
		{
			name:    "nested config name",
			content: `config_name: "conf/app.config"`,
			wantErr: true,
		},
		{
			name: "invalid syntax",
			content: `
project_root: "/srv/app"
invalid syntax here
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parser.ParseInline(tt.content)

			if tt.wantErr {
				if len(doc.Errors) == 0 {
					t.Error("expected validation errors, got none")
				}
				if doc.Err() == nil {
					t.Error("expected Err to report the problems")
				}
				return
			}

			if len(doc.Errors) > 0 {
				t.Fatalf("unexpected errors: %v", doc.Errors)
			}
			if doc.Format != FormatCUE {
				t.Errorf("expected format cue, got %s", doc.Format)
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, doc)
			}
		})
	}
}

func TestCUEParser_ParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stack.cue")
	content := "project_root: \"/srv/app\"\n\nthis is not cue\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	doc, err := NewCUEParser(nil).ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if len(doc.Errors) == 0 {
		t.Fatal("expected syntax error")
	}

	first := doc.Errors[0]
	if first.File != path {
		t.Errorf("expected error in %s, got %s", path, first.File)
	}
	if first.Line != 3 {
		t.Errorf("expected error on line 3, got %d", first.Line)
	}
	if !strings.HasPrefix(first.String(), path+":3:") {
		t.Errorf("expected file:line prefix, got %q", first.String())
	}

	if _, err := NewCUEParser(nil).ParseFile(filepath.Join(dir, "missing.cue")); err == nil {
		t.Error("expected error for missing file")
	}
}
