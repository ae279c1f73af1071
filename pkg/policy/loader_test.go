package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

const sampleRego = `# Config files must live under /srv
package custom.location

import rego.v1

deny contains msg if {
	input.resource.kind == "file"
	not startswith(input.resource.path, "/srv/")
	msg := "files must live under /srv"
}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func TestLoadFromFile_Rego(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	policyFile := filepath.Join(t.TempDir(), "srv-only.rego")
	writeFile(t, policyFile, sampleRego)

	policy, err := loader.loadFromFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if policy.Name != "srv-only" {
		t.Errorf("Expected name 'srv-only', got '%s'", policy.Name)
	}
	if policy.Rego != sampleRego {
		t.Error("Rego content doesn't match")
	}
	if !policy.Enabled {
		t.Error("Policy should be enabled by default")
	}
	if policy.Severity != SeverityError {
		t.Errorf("Expected default severity error, got %s", policy.Severity)
	}
	if policy.Source != policyFile {
		t.Errorf("Expected source %s, got %s", policyFile, policy.Source)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	policyFile := filepath.Join(t.TempDir(), "srv-only.json")

	data, err := json.Marshal(Policy{
		Name:        "srv-only",
		Description: "Files under /srv",
		Rego:        sampleRego,
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"paths"},
	})
	if err != nil {
		t.Fatalf("Failed to marshal policy: %v", err)
	}
	writeFile(t, policyFile, string(data))

	policy, err := loader.loadFromFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policy.Name != "srv-only" || policy.Severity != SeverityWarning {
		t.Errorf("Unexpected policy %+v", policy)
	}
}

func TestLoadFromFile_JSONWithoutName(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	policyFile := filepath.Join(t.TempDir(), "unnamed.json")
	writeFile(t, policyFile, `{"rego": "package x"}`)

	if _, err := loader.loadFromFile(policyFile); err == nil {
		t.Error("Expected error for unnamed JSON policy")
	}
}

func TestLoadFromFile_InvalidJSON(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	policyFile := filepath.Join(t.TempDir(), "broken.json")
	writeFile(t, policyFile, "{not json")

	if _, err := loader.loadFromFile(policyFile); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestLoadFromFile_UnsupportedType(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	policyFile := filepath.Join(t.TempDir(), "policy.txt")
	writeFile(t, policyFile, "deny")

	if _, err := loader.loadFromFile(policyFile); err == nil {
		t.Error("Expected error for unsupported file type")
	}
}

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.rego"), sampleRego)
	writeFile(t, filepath.Join(dir, "nested", "b.rego"), sampleRego)
	writeFile(t, filepath.Join(dir, "broken.json"), "{")
	writeFile(t, filepath.Join(dir, "README.md"), "# policies")

	policies, err := NewLoader(zerolog.Nop()).loadFromDirectory(dir)
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}

	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}
	if policies[0].Name != "a" || policies[1].Name != "b" {
		t.Errorf("Unexpected policies %s, %s", policies[0].Name, policies[1].Name)
	}
}

func TestLoadFromPaths(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(t.TempDir(), "single.rego")
	writeFile(t, filepath.Join(dir, "first.rego"), sampleRego)
	writeFile(t, file, sampleRego)

	policies, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{dir, file})
	if err != nil {
		t.Fatalf("LoadFromPaths failed: %v", err)
	}
	if len(policies) != 2 {
		t.Errorf("Expected 2 policies, got %d", len(policies))
	}
}

func TestLoadFromPaths_NonExistent(t *testing.T) {
	_, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{"/nonexistent/policies"})
	if err == nil {
		t.Error("Expected error for missing path")
	}
}

func TestLoadFromPaths_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewLoader(zerolog.Nop()).LoadFromPaths(ctx, []string{t.TempDir()}); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestExtractDescription(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "single line",
			content:  "# Keep paths short\npackage p",
			expected: "Keep paths short",
		},
		{
			name:     "multi line",
			content:  "# Keep paths\n#\n# short\npackage p",
			expected: "Keep paths short",
		},
		{
			name:     "no comment",
			content:  "package p\n# trailing",
			expected: "",
		},
		{
			name:     "leading blank lines",
			content:  "\n\n# Described\npackage p",
			expected: "Described",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractDescription(tt.content); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}
