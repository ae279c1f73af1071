package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/openfroyo/stackprov/pkg/telemetry"
)

// Reconciler is the top-level driver: it orders resources and, one at a
// time, inspects, plans and executes each of them.
type Reconciler struct {
	inspector Inspector
	planner   *Planner
	executor  *Executor
	guard     Guard
	journal   Journal
	tel       *telemetry.Telemetry
}

// NewReconciler creates a reconciler with no-op telemetry.
func NewReconciler(inspector Inspector, executor *Executor, tel *telemetry.Telemetry) *Reconciler {
	if tel == nil {
		tel = telemetry.Nop()
	}
	return &Reconciler{
		inspector: inspector,
		planner:   NewPlanner(inspector, tel.Logger.Zerolog()),
		executor:  executor,
		tel:       tel,
	}
}

// WithGuard sets a guard that vets the model before anything is touched.
func (r *Reconciler) WithGuard(guard Guard) *Reconciler {
	r.guard = guard
	return r
}

// WithJournal sets a journal that records every finished run.
func (r *Reconciler) WithJournal(journal Journal) *Reconciler {
	r.journal = journal
	return r
}

// Run reconciles resources once. Configuration errors (invalid graph, guard
// denial) are returned as errors with nothing touched. Every other failure is
// reported in the outcome: the failing resource and everything depending on
// it fail, independent resources are still attempted.
func (r *Reconciler) Run(ctx context.Context, resources []Resource) (*RunOutcome, error) {
	ordered, _, err := r.planner.Order(resources)
	if err != nil {
		return nil, err
	}

	if r.guard != nil {
		if err := r.guard.CheckResources(ctx, ordered); err != nil {
			if IsConfiguration(err) {
				return nil, err
			}
			return nil, NewConfigurationError("resource model rejected", err).WithCode(ErrCodePolicyDenied)
		}
	}

	outcome := &RunOutcome{
		RunID:     uuid.New().String(),
		Results:   make([]ResourceResult, 0, len(ordered)),
		StartedAt: time.Now(),
	}

	logger := r.tel.Logger.NewComponentLogger("reconciler").WithRunID(outcome.RunID)
	ctx, span := r.tel.Tracer.StartRunSpan(ctx, outcome.RunID, len(ordered))
	defer span.End()
	_ = r.tel.Events.PublishRunStarted(outcome.RunID, len(ordered))

	failed := make(map[string]bool)
	for _, res := range ordered {
		result := r.reconcileResource(ctx, res, failed)
		if result.Status == ResultFailed {
			failed[res.ID()] = true
		}
		outcome.Results = append(outcome.Results, result)

		r.tel.Metrics.RecordResource(string(result.Kind), string(result.Status), string(result.Action), result.Duration)
		if result.ErrorKind != "" {
			r.tel.Metrics.RecordError(string(result.ErrorKind))
		}
		_ = r.tel.Events.PublishResourceCompleted(outcome.RunID, result.ResourceID,
			string(result.Status), string(result.Action), result.Reason)
	}

	outcome.CompletedAt = time.Now()
	outcome.Status = RunStatusSucceeded
	for _, result := range outcome.Results {
		if result.Status == ResultFailed {
			outcome.Status = RunStatusFailed
			outcome.FailedResource = result.ResourceID
			outcome.FailedKind = result.ErrorKind
			outcome.Reason = result.Reason
			break
		}
	}

	duration := outcome.CompletedAt.Sub(outcome.StartedAt)
	r.tel.Metrics.RecordRun(string(outcome.Status), duration)
	_ = r.tel.Events.PublishRunCompleted(outcome.RunID, string(outcome.Status), duration)
	span.SetAttributes(telemetry.AttrRunStatus.String(string(outcome.Status)))
	if outcome.Succeeded() {
		telemetry.RecordSuccess(span)
	} else {
		span.SetAttributes(telemetry.AttrResourceID.String(outcome.FailedResource))
		telemetry.RecordError(span, errors.New(outcome.Reason))
	}

	counts := outcome.Counts()
	zlog := logger.Zerolog()
	zlog.Info().
		Str("status", string(outcome.Status)).
		Int("unchanged", counts[ResultUnchanged]).
		Int("converged", counts[ResultConverged]).
		Int("failed", counts[ResultFailed]).
		Dur("duration", duration).
		Msg("Reconciliation finished")

	if r.journal != nil {
		if err := r.journal.RecordRun(ctx, outcome); err != nil {
			logger.WithError(err).Warn("Failed to journal run")
		}
	}

	return outcome, nil
}

// reconcileResource inspects, plans and executes a single resource.
func (r *Reconciler) reconcileResource(ctx context.Context, res Resource, failed map[string]bool) ResourceResult {
	start := time.Now()
	result := ResourceResult{ResourceID: res.ID(), Kind: res.Kind()}
	logger := r.tel.Logger.NewComponentLogger("reconciler").WithResourceID(res.ID()).Zerolog()

	ctx, span := r.tel.Tracer.StartResourceSpan(ctx, res.ID(), string(res.Kind()))
	defer span.End()

	fail := func(err error) ResourceResult {
		result.Status = ResultFailed
		result.Err = err
		result.ErrorKind = KindOf(err)
		result.Reason = err.Error()
		var e *EngineError
		if errors.As(err, &e) {
			result.Reason = e.Reason()
		}
		result.Duration = time.Since(start)
		span.SetAttributes(telemetry.AttrErrorKind.String(string(result.ErrorKind)))
		telemetry.RecordError(span, err)
		logger.Error().
			Str("kind", string(result.ErrorKind)).
			Str("reason", result.Reason).
			Msg("Resource failed")
		return result
	}

	if dep, blocked := firstFailed(res, failed); blocked {
		return fail(NewBlockedError(res.ID(), dep))
	}

	state, err := r.inspector.Inspect(ctx, res)
	if err != nil {
		return fail(err)
	}
	result.Observed = state.Status

	action, err := r.planner.PlanAction(res, state)
	if err != nil {
		return fail(err)
	}
	result.Action = action.Type
	span.SetAttributes(telemetry.AttrAction.String(string(action.Type)))

	changed, err := r.executor.Execute(ctx, action)
	if err != nil {
		return fail(err)
	}

	result.Status = ResultUnchanged
	if changed {
		result.Status = ResultConverged
	}
	result.Duration = time.Since(start)
	span.SetAttributes(telemetry.AttrResult.String(string(result.Status)))
	telemetry.RecordSuccess(span)

	logger.Info().
		Str("observed", string(state.Status)).
		Str("action", string(action.Type)).
		Str("status", string(result.Status)).
		Msg("Resource reconciled")

	return result
}
