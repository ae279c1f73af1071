package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docker/docker/client"
	"github.com/openfroyo/stackprov/pkg/compose"
	"github.com/openfroyo/stackprov/pkg/config"
	"github.com/openfroyo/stackprov/pkg/engine"
	"github.com/openfroyo/stackprov/pkg/host"
	"github.com/openfroyo/stackprov/pkg/policy"
	"github.com/openfroyo/stackprov/pkg/stores"
	"github.com/openfroyo/stackprov/pkg/telemetry"
	"github.com/rs/zerolog"
)

// app holds the collaborators of one command invocation.
type app struct {
	doc     *config.Document
	tel     *telemetry.Telemetry
	ownsTel bool
	logger  zerolog.Logger
	docker  *client.Client
	fs      *host.LocalFS
	stacks  *compose.Engine
	guard   *policy.Engine
	journal *stores.JournalStore
}

// newTelemetry builds telemetry from the persistent flags. metricsListen is
// only set by long-lived commands.
func (o *rootOptions) newTelemetry(metricsListen string) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = o.version
	cfg.Logging.Format = o.logFormat
	cfg.Logging.Level = zerolog.GlobalLevel().String()
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
	cfg.Metrics.TextfilePath = o.metricsFile
	cfg.Metrics.ListenAddress = metricsListen
	if o.traceExporter != "" && o.traceExporter != "none" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = o.traceExporter
		cfg.Tracing.Endpoint = o.otlpEndpoint
	}

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if o.verbose {
		logger := tel.Logger.NewComponentLogger("events").Zerolog()
		tel.Events.Subscribe(func(event telemetry.Event) {
			logger.Debug().
				Str("type", event.Type).
				Str("run_id", event.RunID).
				Str("resource_id", event.ResourceID).
				Interface("data", event.Data).
				Msg(event.Message)
		}, nil)
	}
	return tel, nil
}

// newApp resolves the inputs and wires the host adapters, the policy guard
// and the journal. A nil tel makes the app own a fresh telemetry instance.
func (o *rootOptions) newApp(ctx context.Context, operation string, tel *telemetry.Telemetry) (*app, error) {
	doc, err := o.resolve()
	if err != nil {
		return nil, err
	}
	if err := doc.Err(); err != nil {
		return nil, err
	}
	composeCommand := strings.Fields(o.composeCommand)
	if len(composeCommand) == 0 {
		return nil, engine.NewConfigurationError("compose command is empty", nil).
			WithCode(engine.ErrCodeValidation)
	}

	a := &app{doc: doc, tel: tel}
	if a.tel == nil {
		if a.tel, err = o.newTelemetry(""); err != nil {
			return nil, err
		}
		a.ownsTel = true
	}
	a.logger = a.tel.Logger.Zerolog()

	a.docker, err = compose.NewDockerClient()
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.fs = host.NewLocalFS(a.logger)
	a.stacks = compose.NewEngine(a.docker, a.logger, compose.WithCommand(composeCommand...))

	in := doc.Inputs
	if !in.Policy.Disabled {
		a.guard, err = policy.NewEngine(a.logger)
		if err == nil {
			err = a.guard.SetMode(policy.Mode(in.Policy.Mode))
		}
		if err == nil && len(in.Policy.Paths) > 0 {
			err = a.guard.LoadPolicies(ctx, in.Policy.Paths)
		}
		if err != nil {
			_ = a.Close(ctx)
			return nil, engine.NewConfigurationError("failed to set up policies", err).
				WithCode(engine.ErrCodeValidation)
		}
		a.guard.SetOperation(operation)
		a.guard.WithEvents(a.tel.Events)
	}

	if in.Journal != "" {
		a.journal, err = stores.OpenJournal(ctx, stores.Config{Path: in.Journal, Operation: operation})
		if err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
	}

	return a, nil
}

func (a *app) inputs() engine.Inputs {
	return a.doc.Inputs.ToEngineInputs()
}

func (a *app) inspector() *engine.HostInspector {
	return engine.NewHostInspector(a.fs, a.stacks)
}

func (a *app) planner() *engine.Planner {
	return engine.NewPlanner(a.inspector(), a.logger)
}

// reconciler returns a reconciler guarded by the policy engine and
// journaled when those are configured.
func (a *app) reconciler() *engine.Reconciler {
	r := engine.NewReconciler(a.inspector(), engine.NewExecutor(a.fs, a.stacks, a.logger), a.tel)
	if a.guard != nil {
		r.WithGuard(a.guard)
	}
	if a.journal != nil {
		r.WithJournal(a.journal)
	}
	return r
}

// Close releases the docker client and the journal, and flushes telemetry
// the app owns.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.docker != nil {
		errs = append(errs, a.docker.Close())
	}
	if a.ownsTel && a.tel != nil {
		errs = append(errs, a.tel.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
