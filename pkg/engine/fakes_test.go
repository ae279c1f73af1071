package engine

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

type memEntry struct {
	dir     bool
	mode    os.FileMode
	content []byte
}

// memFS is an in-memory HostFS. Every mutation is appended to ops.
type memFS struct {
	mu        sync.Mutex
	entries   map[string]*memEntry
	sources   map[string][]byte
	copyErrs  map[string]error
	ops       []string
	mutations int
}

func newMemFS(existingDirs ...string) *memFS {
	m := &memFS{
		entries:  make(map[string]*memEntry),
		sources:  make(map[string][]byte),
		copyErrs: make(map[string]error),
	}
	m.entries["/"] = &memEntry{dir: true, mode: 0o755}
	for _, dir := range existingDirs {
		m.entries[dir] = &memEntry{dir: true, mode: 0o755}
	}
	return m
}

func (m *memFS) addSource(path, content string) {
	m.sources[path] = []byte(content)
}

func (m *memFS) addFile(path, content string) {
	m.entries[path] = &memEntry{mode: 0o644, content: []byte(content)}
}

func (m *memFS) addDir(path string, mode os.FileMode) {
	m.entries[path] = &memEntry{dir: true, mode: mode}
}

func (m *memFS) entry(path string) (*memEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[path]
	return e, ok
}

func (m *memFS) record(op string) {
	m.ops = append(m.ops, op)
	m.mutations++
}

func sum(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

func (m *memFS) InspectDirectory(_ context.Context, path string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[path]
	switch {
	case !ok:
		return &State{Status: StateNotExists}, nil
	case !e.dir:
		return &State{Status: StateConflict}, nil
	default:
		return &State{Status: StateExists, Mode: e.mode}, nil
	}
}

func (m *memFS) InspectFile(_ context.Context, path string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[path]
	switch {
	case !ok:
		return &State{Status: StateNotExists}, nil
	case e.dir:
		return &State{Status: StateConflict}, nil
	default:
		return &State{Status: StateExists, Hash: sum(e.content)}, nil
	}
}

func (m *memFS) HashSource(_ context.Context, src SourceRef) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.sources[src.Path()]
	if !ok {
		return "", fmt.Errorf("open %s: %w", src, fs.ErrNotExist)
	}
	return sum(content), nil
}

func (m *memFS) EnsureDirectory(_ context.Context, path string, mode os.FileMode) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[path]
	if ok {
		if !e.dir {
			return false, NewPathConflictError(path)
		}
		if e.mode != mode {
			e.mode = mode
			m.record("chmod " + path)
			return true, nil
		}
		return false, nil
	}
	if parent, ok := m.entries[filepath.Dir(path)]; !ok || !parent.dir {
		return false, fmt.Errorf("mkdir %s: %w", path, fs.ErrNotExist)
	}
	m.entries[path] = &memEntry{dir: true, mode: mode}
	m.record("mkdir " + path)
	return true, nil
}

func (m *memFS) CopyFile(_ context.Context, src SourceRef, dst string, mode os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.copyErrs[dst]; err != nil {
		return err
	}
	if e, ok := m.entries[dst]; ok && e.dir {
		return NewPathConflictError(dst)
	}
	content, ok := m.sources[src.Path()]
	if !ok {
		return fmt.Errorf("open %s: %w", src, fs.ErrNotExist)
	}
	if parent, ok := m.entries[filepath.Dir(dst)]; !ok || !parent.dir {
		return fmt.Errorf("write %s: %w", dst, fs.ErrNotExist)
	}
	m.entries[dst] = &memEntry{mode: mode, content: append([]byte{}, content...)}
	m.record("copy " + dst)
	return nil
}

// fakeStacks is a StackEngine whose Up requires the composition file to be
// present in the backing memFS.
type fakeStacks struct {
	fs      *memFS
	status  StateStatus
	statErr error
	upErr   error
	ups     int
	downs   int
}

func newFakeStacks(fs *memFS) *fakeStacks {
	return &fakeStacks{fs: fs, status: StateStopped}
}

func (f *fakeStacks) Status(_ context.Context, _ *StackSpec) (*State, error) {
	if f.statErr != nil {
		return nil, f.statErr
	}
	return &State{Status: f.status}, nil
}

func (f *fakeStacks) Up(_ context.Context, stack *StackSpec) error {
	if f.upErr != nil {
		return f.upErr
	}
	if _, ok := f.fs.entry(stack.ComposeFile); !ok {
		return fmt.Errorf("no composition file at %s", stack.ComposeFile)
	}
	f.ups++
	f.status = StateRunning
	f.fs.mu.Lock()
	f.fs.record("up " + stack.ProjectName)
	f.fs.mu.Unlock()
	return nil
}

func (f *fakeStacks) Down(_ context.Context, stack *StackSpec) error {
	f.downs++
	f.status = StateStopped
	f.fs.mu.Lock()
	f.fs.record("down " + stack.ProjectName)
	f.fs.mu.Unlock()
	return nil
}

type fakeGuard struct {
	err error
}

func (g fakeGuard) CheckResources(context.Context, []Resource) error {
	return g.err
}

type fakeJournal struct {
	mu       sync.Mutex
	outcomes []*RunOutcome
	err      error
}

func (j *fakeJournal) RecordRun(_ context.Context, outcome *RunOutcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outcomes = append(j.outcomes, outcome)
	return j.err
}

// srvInputs is the standard layout used across tests.
func srvInputs() Inputs {
	return Inputs{
		ProjectRoot:   "/srv/app",
		ConfigSource:  "/src/app.config",
		ComposeSource: "/src/docker-compose.yml",
	}
}

func newSrvHost() *memFS {
	m := newMemFS("/srv", "/src")
	m.addSource("/src/app.config", "key = value\n")
	m.addSource("/src/docker-compose.yml", "services:\n  web:\n    image: nginx\n")
	return m
}
