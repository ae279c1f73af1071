package host

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openfroyo/stackprov/pkg/engine"
	"github.com/rs/zerolog"
)

func TestLocalFS_EnsureDirectory(t *testing.T) {
	fs := NewLocalFS(zerolog.Nop())
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "app")

	changed, err := fs.EnsureDirectory(ctx, path, 0o755)
	if err != nil {
		t.Fatalf("EnsureDirectory failed: %v", err)
	}
	if !changed {
		t.Error("Expected first call to report a change")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("Expected mode 0755, got %04o", info.Mode().Perm())
	}

	changed, err = fs.EnsureDirectory(ctx, path, 0o755)
	if err != nil {
		t.Fatalf("Second EnsureDirectory failed: %v", err)
	}
	if changed {
		t.Error("Expected second call to be a no-op")
	}
}

func TestLocalFS_EnsureDirectoryFixesMode(t *testing.T) {
	fs := NewLocalFS(zerolog.Nop())
	path := filepath.Join(t.TempDir(), "conf")
	if err := os.Mkdir(path, 0o700); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := os.Chmod(path, 0o700); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}

	changed, err := fs.EnsureDirectory(context.Background(), path, 0o755)
	if err != nil {
		t.Fatalf("EnsureDirectory failed: %v", err)
	}
	if !changed {
		t.Error("Expected mode correction to report a change")
	}

	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o755 {
		t.Errorf("Expected mode 0755, got %04o", info.Mode().Perm())
	}
}

func TestLocalFS_EnsureDirectoryConflict(t *testing.T) {
	fs := NewLocalFS(zerolog.Nop())
	path := filepath.Join(t.TempDir(), "app")
	if err := os.WriteFile(path, []byte("not a directory"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	_, err := fs.EnsureDirectory(context.Background(), path, 0o755)
	if !engine.IsPathConflict(err) {
		t.Fatalf("Expected path conflict, got %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Conflicting file was removed: %v", err)
	}
	if string(content) != "not a directory" {
		t.Errorf("Conflicting file was modified: %q", content)
	}
}

func TestLocalFS_EnsureDirectorySymlink(t *testing.T) {
	fs := NewLocalFS(zerolog.Nop())
	ctx := context.Background()
	dir := t.TempDir()

	data := filepath.Join(dir, "data")
	if err := os.Mkdir(data, 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := os.Chmod(data, 0o755); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	app := filepath.Join(dir, "app")
	if err := os.Symlink(data, app); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}

	changed, err := fs.EnsureDirectory(ctx, app, 0o755)
	if err != nil {
		t.Fatalf("EnsureDirectory failed on symlinked directory: %v", err)
	}
	if changed {
		t.Error("Expected symlinked directory with the right mode to be a no-op")
	}
	if info, err := os.Lstat(app); err != nil || info.Mode()&os.ModeSymlink == 0 {
		t.Error("Expected symlink to be left in place")
	}

	dangling := filepath.Join(dir, "dangling")
	if err := os.Symlink(filepath.Join(dir, "gone"), dangling); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}
	if _, err := fs.EnsureDirectory(ctx, dangling, 0o755); !engine.IsPathConflict(err) {
		t.Errorf("Expected path conflict for dangling symlink, got %v", err)
	}
}

func TestLocalFS_Inspect(t *testing.T) {
	fs := NewLocalFS(zerolog.Nop())
	ctx := context.Background()
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(file, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	dirLink := filepath.Join(dir, "dir-link")
	fileLink := filepath.Join(dir, "file-link")
	dangling := filepath.Join(dir, "dangling")
	for link, target := range map[string]string{
		dirLink:  t.TempDir(),
		fileLink: file,
		dangling: filepath.Join(dir, "gone"),
	} {
		if err := os.Symlink(target, link); err != nil {
			t.Fatalf("Symlink failed: %v", err)
		}
	}

	tests := []struct {
		name    string
		inspect func(context.Context, string) (*engine.State, error)
		path    string
		want    engine.StateStatus
	}{
		{"directory exists", fs.InspectDirectory, dir, engine.StateExists},
		{"directory missing", fs.InspectDirectory, filepath.Join(dir, "missing"), engine.StateNotExists},
		{"directory is a file", fs.InspectDirectory, file, engine.StateConflict},
		{"directory is a symlink to a directory", fs.InspectDirectory, dirLink, engine.StateExists},
		{"directory is a symlink to a file", fs.InspectDirectory, fileLink, engine.StateConflict},
		{"directory is a dangling symlink", fs.InspectDirectory, dangling, engine.StateConflict},
		{"file exists", fs.InspectFile, file, engine.StateExists},
		{"file missing", fs.InspectFile, filepath.Join(dir, "missing"), engine.StateNotExists},
		{"file is a directory", fs.InspectFile, dir, engine.StateConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := tt.inspect(ctx, tt.path)
			if err != nil {
				t.Fatalf("Inspect failed: %v", err)
			}
			if state.Status != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, state.Status)
			}
		})
	}
}

func TestLocalFS_CopyFile(t *testing.T) {
	fs := NewLocalFS(zerolog.Nop())
	ctx := context.Background()
	dir := t.TempDir()

	content := []byte("key = value\n\x00binary\xff")
	src := filepath.Join(dir, "src.config")
	if err := os.WriteFile(src, content, 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	dst := filepath.Join(dir, "dst.config")
	if err := os.WriteFile(dst, []byte("stale"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if err := fs.CopyFile(ctx, engine.SourceRef(src), dst, 0o644); err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("Expected byte-identical copy, got %q", got)
	}

	srcHash, err := fs.HashSource(ctx, engine.SourceRef(src))
	if err != nil {
		t.Fatalf("HashSource failed: %v", err)
	}
	state, err := fs.InspectFile(ctx, dst)
	if err != nil {
		t.Fatalf("InspectFile failed: %v", err)
	}
	if state.Hash != srcHash {
		t.Errorf("Expected hash %s, got %s", srcHash, state.Hash)
	}
}

func TestLocalFS_CopyFileMissingSource(t *testing.T) {
	fs := NewLocalFS(zerolog.Nop())
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst")
	if err := os.WriteFile(dst, []byte("previous"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if err := fs.CopyFile(context.Background(), engine.SourceRef(filepath.Join(dir, "missing")), dst, 0o644); err == nil {
		t.Fatal("Expected error for missing source")
	}

	got, _ := os.ReadFile(dst)
	if string(got) != "previous" {
		t.Errorf("Expected destination to be untouched, got %q", got)
	}
}

func TestLocalFS_CopyFileOntoDirectory(t *testing.T) {
	fs := NewLocalFS(zerolog.Nop())
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	dst := filepath.Join(dir, "occupied")
	if err := os.Mkdir(dst, 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	err := fs.CopyFile(context.Background(), engine.SourceRef(src), dst, 0o644)
	if !engine.IsPathConflict(err) {
		t.Fatalf("Expected path conflict, got %v", err)
	}
	if info, err := os.Stat(dst); err != nil || !info.IsDir() {
		t.Error("Expected directory to be left in place")
	}
}

func TestLocalFS_HashSourceMissing(t *testing.T) {
	fs := NewLocalFS(zerolog.Nop())
	if _, err := fs.HashSource(context.Background(), engine.SourceRef("/nonexistent/source")); err == nil {
		t.Error("Expected error for missing source")
	}
}
