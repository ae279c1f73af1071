package host

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openfroyo/stackprov/pkg/engine"
	"github.com/rs/zerolog"
)

// runningStacks reports every stack as running.
type runningStacks struct{}

func (runningStacks) Status(context.Context, *engine.StackSpec) (*engine.State, error) {
	return &engine.State{Status: engine.StateRunning}, nil
}

func (runningStacks) Up(context.Context, *engine.StackSpec) error   { return nil }
func (runningStacks) Down(context.Context, *engine.StackSpec) error { return nil }

func TestReconcile_SymlinkedProjectRoot(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	if err := os.Mkdir(data, 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := os.Chmod(data, 0o755); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	root := filepath.Join(dir, "app")
	if err := os.Symlink(data, root); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}

	src := t.TempDir()
	configSource := filepath.Join(src, "app.config")
	composeSource := filepath.Join(src, "docker-compose.yml")
	for path, content := range map[string]string{
		configSource:  "listen = 8080\n",
		composeSource: "services:\n  web:\n    image: nginx\n",
	} {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	resources, err := engine.BuildResources(engine.Inputs{
		ProjectRoot:   root,
		ConfigSource:  configSource,
		ComposeSource: composeSource,
		ProjectName:   "app",
	})
	if err != nil {
		t.Fatalf("BuildResources failed: %v", err)
	}

	fs := NewLocalFS(zerolog.Nop())
	r := engine.NewReconciler(
		engine.NewHostInspector(fs, runningStacks{}),
		engine.NewExecutor(fs, runningStacks{}, zerolog.Nop()),
		nil,
	)

	outcome, err := r.Run(context.Background(), resources)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !outcome.Succeeded() {
		t.Fatalf("Expected success, got failure at %s: %s", outcome.FailedResource, outcome.Reason)
	}
	if res := outcome.Result("dir:" + root); res == nil || res.Status != engine.ResultUnchanged {
		t.Errorf("Expected symlinked root to be unchanged, got %+v", res)
	}
	if _, err := os.Stat(filepath.Join(data, "conf", "app.config")); err != nil {
		t.Errorf("Expected config file inside the link target: %v", err)
	}
}
