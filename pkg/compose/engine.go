// Package compose implements the container-stack side of reconciliation.
// Stack status comes from the Docker Engine API, filtered by the compose
// project label; bringing a stack up or down is delegated to the
// `docker compose` CLI, which owns the composition format.
package compose

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/openfroyo/stackprov/pkg/engine"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Labels the compose CLI puts on every container it creates.
const (
	ProjectLabel = "com.docker.compose.project"
	ServiceLabel = "com.docker.compose.service"
)

// ContainerLister lists containers. *client.Client satisfies it.
type ContainerLister interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
}

// Engine implements engine.StackEngine.
type Engine struct {
	lister  ContainerLister
	runner  CommandRunner
	command []string
	logger  zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithCommand overrides the compose command, e.g. []string{"docker-compose"}.
func WithCommand(command ...string) Option {
	return func(e *Engine) {
		e.command = command
	}
}

// WithRunner overrides the command runner.
func WithRunner(runner CommandRunner) Option {
	return func(e *Engine) {
		e.runner = runner
	}
}

// NewEngine creates a stack engine over a container lister.
func NewEngine(lister ContainerLister, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		lister:  lister,
		runner:  ExecRunner{},
		command: []string{"docker", "compose"},
		logger:  logger.With().Str("component", "compose").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewDockerClient connects to the engine configured by the DOCKER_*
// environment variables, negotiating the API version.
func NewDockerClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return cli, nil
}

// Status reports running when every declared service is satisfied, stopped
// when nothing runs and degraded otherwise. A service is satisfied by a
// running container, or by one that exited 0 when it declares a restart
// policy that leaves it exited (one-shot jobs). Services gated by profiles
// are not declared, since a plain up never starts them. When the
// composition file cannot be read, the services seen on the engine stand in
// for the declared ones.
func (e *Engine) Status(ctx context.Context, stack *engine.StackSpec) (*engine.State, error) {
	comp, err := LoadComposition(stack.ComposeFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	declared := comp.DefaultServices()

	containers, err := e.lister.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", ProjectLabel+"="+stack.ProjectName)),
	})
	if err != nil {
		return nil, engine.NewInspectionError("failed to list containers", err).
			WithCode(engine.ErrCodeEngineFailed).
			WithDetail("project", stack.ProjectName)
	}

	observed := make([]string, 0)
	running := make([]string, 0)
	completed := make([]string, 0)
	for _, c := range containers {
		service := c.Labels[ServiceLabel]
		if service == "" {
			continue
		}
		if !slices.Contains(observed, service) {
			observed = append(observed, service)
		}
		switch {
		case c.State == "running":
			if !slices.Contains(running, service) {
				running = append(running, service)
			}
		case c.State == "exited" && exitedCleanly(c.Status) && comp.OneShot(service):
			if !slices.Contains(completed, service) {
				completed = append(completed, service)
			}
		}
	}
	slices.Sort(observed)
	slices.Sort(running)
	slices.Sort(completed)

	if len(declared) == 0 {
		declared = observed
	}

	satisfied := 0
	for _, service := range declared {
		if slices.Contains(running, service) || slices.Contains(completed, service) {
			satisfied++
		}
	}

	state := &engine.State{Services: declared, RunningServices: running}
	switch {
	case len(declared) > 0 && satisfied == len(declared):
		state.Status = engine.StateRunning
	case len(running) == 0:
		state.Status = engine.StateStopped
	default:
		state.Status = engine.StateDegraded
	}

	e.logger.Debug().
		Str("project", stack.ProjectName).
		Strs("declared", declared).
		Strs("running", running).
		Strs("completed", completed).
		Str("status", string(state.Status)).
		Msg("Inspected stack")

	return state, nil
}

// Up brings the composition up in the background.
func (e *Engine) Up(ctx context.Context, stack *engine.StackSpec) error {
	return e.compose(ctx, stack, "up", "--detach")
}

// Down stops and removes the composition's containers.
func (e *Engine) Down(ctx context.Context, stack *engine.StackSpec) error {
	return e.compose(ctx, stack, "down")
}

func (e *Engine) compose(ctx context.Context, stack *engine.StackSpec, args ...string) error {
	if len(e.command) == 0 {
		return engine.NewExecutionError("no compose command configured", nil).
			WithCode(engine.ErrCodeValidation)
	}
	full := append([]string{}, e.command[1:]...)
	full = append(full, "--project-name", stack.ProjectName)
	if _, err := os.Stat(stack.ComposeFile); err == nil {
		full = append(full, "--file", stack.ComposeFile)
	}
	full = append(full, args...)

	result, err := e.runner.Run(ctx, stack.ProjectRoot, e.command[0], full...)
	if err != nil {
		return engine.NewExecutionError(fmt.Sprintf("compose %s failed", args[0]), err).
			WithCode(engine.ErrCodeEngineFailed).
			WithDetail("project", stack.ProjectName)
	}

	e.logger.Info().
		Str("project", stack.ProjectName).
		Str("command", args[0]).
		Dur("duration", result.Duration).
		Msg("Compose command completed")
	return nil
}

// Composition is the part of a composition file needed for status.
type Composition struct {
	Services map[string]ComposeService `yaml:"services"`
}

// ComposeService holds the service fields that decide whether a plain up
// starts the service and keeps it running.
type ComposeService struct {
	Profiles []string `yaml:"profiles"`
	Restart  string   `yaml:"restart"`
}

// LoadComposition reads and parses a composition file.
func LoadComposition(path string) (*Composition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read composition file: %w", err)
	}

	var comp Composition
	if err := yaml.Unmarshal(data, &comp); err != nil {
		return nil, engine.NewInspectionError(fmt.Sprintf("failed to parse composition file %s", path), err)
	}
	return &comp, nil
}

// DefaultServices returns the sorted names of the services started without
// any profile enabled. A nil composition has none.
func (c *Composition) DefaultServices() []string {
	if c == nil {
		return nil
	}
	services := make([]string, 0, len(c.Services))
	for name, svc := range c.Services {
		if len(svc.Profiles) > 0 {
			continue
		}
		services = append(services, name)
	}
	slices.Sort(services)
	return services
}

// OneShot reports whether a service declares a restart policy under which a
// successful exit is final: "no" or "on-failure". An unset policy does not
// count, so a long-running service stopped cleanly is still seen as down.
func (c *Composition) OneShot(service string) bool {
	if c == nil {
		return false
	}
	restart := c.Services[service].Restart
	return restart == "no" || strings.HasPrefix(restart, "on-failure")
}

// DeclaredServices returns the sorted default service names of a
// composition file.
func DeclaredServices(path string) ([]string, error) {
	comp, err := LoadComposition(path)
	if err != nil {
		return nil, err
	}
	return comp.DefaultServices(), nil
}

var exitedStatus = regexp.MustCompile(`^Exited \((\d+)\)`)

// exitedCleanly reports whether a container status line, such as
// "Exited (0) 2 minutes ago", records a zero exit code.
func exitedCleanly(status string) bool {
	m := exitedStatus.FindStringSubmatch(status)
	return m != nil && m[1] == "0"
}
