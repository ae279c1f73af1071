package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/openfroyo/stackprov/pkg/engine"
	"github.com/openfroyo/stackprov/pkg/telemetry"
	"github.com/rs/zerolog"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func model(t *testing.T, in engine.Inputs) []engine.Resource {
	t.Helper()
	resources, err := engine.BuildResources(in)
	if err != nil {
		t.Fatalf("BuildResources failed: %v", err)
	}
	return resources
}

func stdInputs(root string) engine.Inputs {
	return engine.Inputs{
		ProjectRoot:   root,
		ConfigSource:  "/src/app.config",
		ComposeSource: "/src/docker-compose.yml",
	}
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	names := make([]string, 0)
	for _, p := range eng.ListPolicies() {
		names = append(names, p.Name)
	}

	expected := []string{"absolute-paths", "file-modes", "project-name", "system-directories"}
	if strings.Join(names, ",") != strings.Join(expected, ",") {
		t.Errorf("Expected built-in policies %v, got %v", expected, names)
	}
}

func TestEvaluateResources(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name      string
		resources func(t *testing.T) []engine.Resource
		allowed   bool
		policy    string
	}{
		{
			name:      "standard layout",
			resources: func(t *testing.T) []engine.Resource { return model(t, stdInputs("/srv/app")) },
			allowed:   true,
		},
		{
			name:      "inside /etc",
			resources: func(t *testing.T) []engine.Resource { return model(t, stdInputs("/etc/app")) },
			allowed:   false,
			policy:    "system-directories",
		},
		{
			name:      "system directory itself",
			resources: func(t *testing.T) []engine.Resource { return model(t, stdInputs("/usr")) },
			allowed:   false,
			policy:    "system-directories",
		},
		{
			name:      "inside a /usr system subtree",
			resources: func(t *testing.T) []engine.Resource { return model(t, stdInputs("/usr/lib/app")) },
			allowed:   false,
			policy:    "system-directories",
		},
		{
			name:      "under /usr/local",
			resources: func(t *testing.T) []engine.Resource { return model(t, stdInputs("/usr/local/app")) },
			allowed:   true,
		},
		{
			name: "similar prefix is allowed",
			resources: func(t *testing.T) []engine.Resource {
				return model(t, stdInputs("/usrdata/app"))
			},
			allowed: true,
		},
		{
			name: "relative path",
			resources: func(t *testing.T) []engine.Resource {
				return []engine.Resource{&engine.DirectorySpec{Path: "srv/app", Mode: 0o755}}
			},
			allowed: false,
			policy:  "absolute-paths",
		},
		{
			name: "relative source",
			resources: func(t *testing.T) []engine.Resource {
				return []engine.Resource{&engine.FileSpec{Source: "app.config", Destination: "/srv/app/app.config", Mode: 0o644}}
			},
			allowed: false,
			policy:  "absolute-paths",
		},
		{
			name: "invalid project name",
			resources: func(t *testing.T) []engine.Resource {
				in := stdInputs("/srv/app")
				in.ProjectName = "My App"
				return model(t, in)
			},
			allowed: false,
			policy:  "project-name",
		},
		{
			name: "filesystem root",
			resources: func(t *testing.T) []engine.Resource {
				return []engine.Resource{&engine.DirectorySpec{Path: "/", Mode: 0o755}}
			},
			allowed: false,
			policy:  "system-directories",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.EvaluateResources(context.Background(), tt.resources(t))
			if err != nil {
				t.Fatalf("EvaluateResources failed: %v", err)
			}
			if result.Allowed != tt.allowed {
				t.Fatalf("Expected allowed=%v, got %v (violations: %v)", tt.allowed, result.Allowed, result.Violations)
			}
			if tt.policy != "" && result.Violations[0].Policy != tt.policy {
				t.Errorf("Expected violation of %s, got %v", tt.policy, result.Violations)
			}
		})
	}
}

func TestEvaluateResources_Warning(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.EvaluateResources(context.Background(), []engine.Resource{
		&engine.DirectorySpec{Path: "/srv/shared", Mode: 0o777},
	})
	if err != nil {
		t.Fatalf("EvaluateResources failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Expected warning not to block, got %v", result.Violations)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Policy != "file-modes" {
		t.Errorf("Expected one file-modes warning, got %v", result.Warnings)
	}
}

func TestCheckResources(t *testing.T) {
	eng := newTestEngine(t)
	events := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	var (
		mu       sync.Mutex
		received []telemetry.Event
	)
	events.Subscribe(func(event telemetry.Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event)
	}, nil)
	eng.WithEvents(events)

	if err := eng.CheckResources(context.Background(), model(t, stdInputs("/srv/app"))); err != nil {
		t.Fatalf("Expected standard layout to pass, got %v", err)
	}

	err := eng.CheckResources(context.Background(), model(t, stdInputs("/etc/app")))
	if !engine.IsConfiguration(err) {
		t.Fatalf("Expected configuration error, got %v", err)
	}
	var e *engine.EngineError
	if !errors.As(err, &e) || e.Code != engine.ErrCodePolicyDenied {
		t.Errorf("Expected policy denied code, got %v", err)
	}
	if e.Resource != "dir:/etc/app" {
		t.Errorf("Expected first violation on dir:/etc/app, got %s", e.Resource)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) == 0 || received[0].Type != telemetry.EventTypePolicyViolation {
		t.Errorf("Expected policy violation events, got %v", received)
	}
}

func TestCheckResources_Advisory(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.SetMode(ModeAdvisory); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}

	if err := eng.CheckResources(context.Background(), model(t, stdInputs("/etc/app"))); err != nil {
		t.Errorf("Expected advisory mode to allow, got %v", err)
	}

	if err := eng.SetMode("strict"); err == nil {
		t.Error("Expected unknown mode to be rejected")
	}
}

func TestDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.DisablePolicy("system-directories"); err != nil {
		t.Fatalf("DisablePolicy failed: %v", err)
	}

	result, err := eng.EvaluateResources(context.Background(), model(t, stdInputs("/etc/app")))
	if err != nil {
		t.Fatalf("EvaluateResources failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Expected disabled policy to be skipped, got %v", result.Violations)
	}

	if err := eng.EnablePolicy("missing"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestLoadPolicies(t *testing.T) {
	dir := t.TempDir()
	rego := `# Stacks must not be stopped
package custom.stack

import rego.v1

deny contains msg if {
	input.resource.kind == "stack"
	input.resource.desired_state == "absent"
	msg := "stopping stacks is not allowed"
}
`
	if err := os.WriteFile(filepath.Join(dir, "no-stop.rego"), []byte(rego), 0o644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	eng := newTestEngine(t)
	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}

	p, err := eng.GetPolicy("no-stop")
	if err != nil {
		t.Fatalf("GetPolicy failed: %v", err)
	}
	if p.Description != "Stacks must not be stopped" {
		t.Errorf("Unexpected description %q", p.Description)
	}

	resources, err := engine.BuildStopResources(stdInputs("/srv/app"))
	if err != nil {
		t.Fatalf("BuildStopResources failed: %v", err)
	}
	result, err := eng.EvaluateResources(context.Background(), resources)
	if err != nil {
		t.Fatalf("EvaluateResources failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("Expected custom policy to deny")
	}
	if v := result.Violations[0]; v.Message != "stopping stacks is not allowed" || v.Resource != "stack:app" {
		t.Errorf("Unexpected violation %+v", v)
	}
}

func TestLoadPolicies_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.rego")
	if err := os.WriteFile(path, []byte("package broken\n\ndeny contains if {"), 0o644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	eng := newTestEngine(t)
	if err := eng.LoadPolicies(context.Background(), []string{path}); err == nil {
		t.Error("Expected compile error")
	}
}
