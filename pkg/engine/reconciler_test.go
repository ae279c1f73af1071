package engine

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

const (
	rootID    = "dir:/srv/app"
	confID    = "dir:/srv/app/conf"
	configID  = "file:/srv/app/conf/app.config"
	composeID = "file:/srv/app/docker-compose.yml"
	stackID   = "stack:app"
)

func newTestReconciler(m *memFS, stacks *fakeStacks) *Reconciler {
	inspector := NewHostInspector(m, stacks)
	executor := NewExecutor(m, stacks, zerolog.Nop())
	return NewReconciler(inspector, executor, nil)
}

func mustResources(t *testing.T, in Inputs) []Resource {
	t.Helper()
	resources, err := BuildResources(in)
	if err != nil {
		t.Fatalf("BuildResources failed: %v", err)
	}
	return resources
}

func resultIDs(outcome *RunOutcome) []string {
	ids := make([]string, 0, len(outcome.Results))
	for _, r := range outcome.Results {
		ids = append(ids, r.ResourceID)
	}
	return ids
}

func TestReconciler_FreshHost(t *testing.T) {
	m := newSrvHost()
	stacks := newFakeStacks(m)
	r := newTestReconciler(m, stacks)

	outcome, err := r.Run(context.Background(), mustResources(t, srvInputs()))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !outcome.Succeeded() {
		t.Fatalf("Expected success, got failure at %s: %s", outcome.FailedResource, outcome.Reason)
	}

	wantOrder := []string{rootID, confID, configID, composeID, stackID}
	if got := resultIDs(outcome); !slices.Equal(got, wantOrder) {
		t.Errorf("Expected order %v, got %v", wantOrder, got)
	}

	for _, res := range outcome.Results {
		if res.Status != ResultConverged {
			t.Errorf("Expected %s to converge, got %s", res.ResourceID, res.Status)
		}
	}

	wantOps := []string{
		"mkdir /srv/app",
		"mkdir /srv/app/conf",
		"copy /srv/app/conf/app.config",
		"copy /srv/app/docker-compose.yml",
		"up app",
	}
	if !slices.Equal(m.ops, wantOps) {
		t.Errorf("Expected operations %v, got %v", wantOps, m.ops)
	}
}

func TestReconciler_Idempotent(t *testing.T) {
	m := newSrvHost()
	stacks := newFakeStacks(m)
	r := newTestReconciler(m, stacks)
	resources := mustResources(t, srvInputs())

	if _, err := r.Run(context.Background(), resources); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	mutations := m.mutations

	outcome, err := r.Run(context.Background(), resources)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if !outcome.Succeeded() {
		t.Fatalf("Expected second run to succeed, got %s", outcome.Reason)
	}
	if m.mutations != mutations {
		t.Errorf("Expected no mutations on second run, got %d", m.mutations-mutations)
	}
	if got := outcome.Counts()[ResultUnchanged]; got != 5 {
		t.Errorf("Expected 5 unchanged resources, got %d", got)
	}
	if stacks.ups != 1 {
		t.Errorf("Expected stack started once, got %d", stacks.ups)
	}
}

func TestReconciler_RootOccupiedByFile(t *testing.T) {
	m := newSrvHost()
	m.addFile("/srv/app", "foreign")
	stacks := newFakeStacks(m)
	r := newTestReconciler(m, stacks)

	outcome, err := r.Run(context.Background(), mustResources(t, srvInputs()))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome.Succeeded() {
		t.Fatal("Expected failure")
	}
	if outcome.FailedResource != rootID {
		t.Errorf("Expected failed resource %s, got %s", rootID, outcome.FailedResource)
	}
	if outcome.FailedKind != ErrorKindPathConflict {
		t.Errorf("Expected path conflict, got %s", outcome.FailedKind)
	}

	for _, id := range []string{confID, configID, composeID, stackID} {
		res := outcome.Result(id)
		if res == nil || res.ErrorKind != ErrorKindBlocked {
			t.Errorf("Expected %s to be blocked, got %+v", id, res)
		}
	}

	e, _ := m.entry("/srv/app")
	if e.dir || string(e.content) != "foreign" {
		t.Error("Expected foreign file to be left untouched")
	}
	if m.mutations != 0 {
		t.Errorf("Expected no mutations, got %v", m.ops)
	}
}

func TestReconciler_MissingConfigSource(t *testing.T) {
	m := newSrvHost()
	delete(m.sources, "/src/app.config")
	stacks := newFakeStacks(m)
	r := newTestReconciler(m, stacks)

	outcome, err := r.Run(context.Background(), mustResources(t, srvInputs()))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome.FailedResource != configID {
		t.Fatalf("Expected failed resource %s, got %s", configID, outcome.FailedResource)
	}
	if outcome.FailedKind != ErrorKindInspection {
		t.Errorf("Expected inspection error, got %s", outcome.FailedKind)
	}
	if !strings.Contains(outcome.Reason, "/src/app.config") {
		t.Errorf("Expected reason to name the source, got %q", outcome.Reason)
	}

	if res := outcome.Result(confID); res.Status != ResultConverged {
		t.Errorf("Expected conf directory to converge, got %s", res.Status)
	}
	if res := outcome.Result(composeID); res.Status != ResultConverged {
		t.Errorf("Expected independent compose file to converge, got %s", res.Status)
	}
	if res := outcome.Result(stackID); res.ErrorKind != ErrorKindBlocked {
		t.Errorf("Expected stack to be blocked, got %+v", res)
	}
	if stacks.ups != 0 {
		t.Error("Expected stack not to be started")
	}
}

func TestReconciler_StartFailure(t *testing.T) {
	m := newSrvHost()
	stacks := newFakeStacks(m)
	stacks.upErr = errors.New("image pull failed")
	r := newTestReconciler(m, stacks)

	outcome, err := r.Run(context.Background(), mustResources(t, srvInputs()))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome.FailedResource != stackID || outcome.FailedKind != ErrorKindExecution {
		t.Fatalf("Expected execution error on %s, got %s on %s", stackID, outcome.FailedKind, outcome.FailedResource)
	}
	if !strings.Contains(outcome.Reason, "image pull failed") {
		t.Errorf("Expected underlying reason, got %q", outcome.Reason)
	}
}

func TestReconciler_ConvergesDrift(t *testing.T) {
	m := newSrvHost()
	m.addDir("/srv/app", 0o755)
	m.addDir("/srv/app/conf", 0o700)
	m.addFile("/srv/app/conf/app.config", "stale")
	m.addFile("/srv/app/docker-compose.yml", "services:\n  web:\n    image: nginx\n")
	stacks := newFakeStacks(m)
	stacks.status = StateDegraded
	r := newTestReconciler(m, stacks)

	outcome, err := r.Run(context.Background(), mustResources(t, srvInputs()))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !outcome.Succeeded() {
		t.Fatalf("Expected success, got %s", outcome.Reason)
	}

	want := map[string]ResultStatus{
		rootID:    ResultUnchanged,
		confID:    ResultConverged,
		configID:  ResultConverged,
		composeID: ResultUnchanged,
		stackID:   ResultConverged,
	}
	for id, status := range want {
		if got := outcome.Result(id).Status; got != status {
			t.Errorf("Expected %s to be %s, got %s", id, status, got)
		}
	}

	e, _ := m.entry("/srv/app/conf/app.config")
	if string(e.content) != "key = value\n" {
		t.Errorf("Expected config to be replaced, got %q", e.content)
	}
}

func TestReconciler_StopStack(t *testing.T) {
	m := newSrvHost()
	stacks := newFakeStacks(m)
	stacks.status = StateRunning
	r := newTestReconciler(m, stacks)

	resources, err := BuildStopResources(srvInputs())
	if err != nil {
		t.Fatalf("BuildStopResources failed: %v", err)
	}

	outcome, err := r.Run(context.Background(), resources)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !outcome.Succeeded() || stacks.downs != 1 {
		t.Fatalf("Expected stack to be stopped once, got %d (%s)", stacks.downs, outcome.Reason)
	}

	outcome, _ = r.Run(context.Background(), resources)
	if outcome.Result(stackID).Status != ResultUnchanged || stacks.downs != 1 {
		t.Error("Expected stopping a stopped stack to be a no-op")
	}
}

func TestReconciler_CycleIsConfigurationError(t *testing.T) {
	m := newSrvHost()
	r := newTestReconciler(m, newFakeStacks(m))

	a := &DirectorySpec{Path: "/a", Mode: 0o755, DependsOn: []string{"dir:/b"}}
	b := &DirectorySpec{Path: "/b", Mode: 0o755, DependsOn: []string{"dir:/a"}}

	_, err := r.Run(context.Background(), []Resource{a, b})
	if !IsConfiguration(err) {
		t.Fatalf("Expected configuration error, got %v", err)
	}
	if m.mutations != 0 {
		t.Errorf("Expected no mutations, got %v", m.ops)
	}
}

func TestReconciler_GuardDenied(t *testing.T) {
	m := newSrvHost()
	r := newTestReconciler(m, newFakeStacks(m)).
		WithGuard(fakeGuard{err: errors.New("system directory")})

	_, err := r.Run(context.Background(), mustResources(t, srvInputs()))
	if !IsConfiguration(err) {
		t.Fatalf("Expected configuration error, got %v", err)
	}
	var e *EngineError
	if !errors.As(err, &e) || e.Code != ErrCodePolicyDenied {
		t.Errorf("Expected policy denied code, got %v", err)
	}
	if m.mutations != 0 {
		t.Errorf("Expected no mutations, got %v", m.ops)
	}
}

func TestReconciler_Journal(t *testing.T) {
	m := newSrvHost()
	journal := &fakeJournal{err: errors.New("disk full")}
	r := newTestReconciler(m, newFakeStacks(m)).WithJournal(journal)

	outcome, err := r.Run(context.Background(), mustResources(t, srvInputs()))
	if err != nil {
		t.Fatalf("Expected journal failure not to fail the run, got %v", err)
	}
	if len(journal.outcomes) != 1 || journal.outcomes[0].RunID != outcome.RunID {
		t.Errorf("Expected run %s to be journaled", outcome.RunID)
	}
}
