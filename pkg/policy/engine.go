package policy

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/openfroyo/stackprov/pkg/engine"
	"github.com/openfroyo/stackprov/pkg/telemetry"
	"github.com/rs/zerolog"
)

// Engine evaluates Rego policies over the resource model. It implements
// engine.Guard.
type Engine struct {
	mu        sync.RWMutex
	policies  map[string]*compiledPolicy
	mode      Mode
	operation string
	events    *telemetry.EventPublisher
	logger    zerolog.Logger
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy   *Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates an enforcing policy engine with the built-in policies.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies:  make(map[string]*compiledPolicy),
		mode:      ModeEnforcing,
		operation: "apply",
		logger:    logger.With().Str("component", "policy-engine").Logger(),
	}

	builtins := GetBuiltinPolicies()
	for i := range builtins {
		if err := e.compileAndStorePolicy(context.Background(), &builtins[i]); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}

	e.logger.Debug().
		Int("count", len(builtins)).
		Msg("Built-in policies loaded")

	return e, nil
}

// SetMode sets enforcing or advisory mode.
func (e *Engine) SetMode(mode Mode) error {
	switch mode {
	case ModeEnforcing, ModeAdvisory:
	case "":
		mode = ModeEnforcing
	default:
		return fmt.Errorf("unknown policy mode %q", mode)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = mode
	return nil
}

// SetOperation sets the operation name policies see as input.context.operation.
func (e *Engine) SetOperation(operation string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.operation = operation
}

// WithEvents publishes every violation found by CheckResources.
func (e *Engine) WithEvents(events *telemetry.EventPublisher) *Engine {
	e.events = events
	return e
}

// EvaluateResources evaluates every enabled policy against every resource.
// A policy that fails to evaluate is reported as a blocking violation.
func (e *Engine) EvaluateResources(ctx context.Context, resources []engine.Resource) (*Result, error) {
	start := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{Allowed: true, EvaluatedAt: start}

	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, name)

		for _, r := range resources {
			input := &Input{
				Resource: NewResourceInput(r),
				Context:  &Context{Operation: e.operation, Timestamp: start},
			}

			violations, err := e.evaluatePolicy(ctx, cp, input)
			if err != nil {
				e.logger.Error().Err(err).
					Str("policy", name).
					Str("resource", r.ID()).
					Msg("Policy evaluation failed")
				violations = []Violation{{
					Policy:   name,
					Resource: r.ID(),
					Message:  err.Error(),
					Severity: SeverityError,
				}}
			}

			for _, v := range violations {
				if v.Severity.Blocking() {
					result.Violations = append(result.Violations, v)
					result.Allowed = false
				} else {
					result.Warnings = append(result.Warnings, v)
				}
			}
		}
	}

	result.Duration = time.Since(start)
	e.logger.Debug().
		Int("resources", len(resources)).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("Resource policy evaluation completed")

	return result, nil
}

// CheckResources implements engine.Guard. In enforcing mode a blocking
// violation is returned as a configuration error; warnings and advisory
// violations are only logged.
func (e *Engine) CheckResources(ctx context.Context, resources []engine.Resource) error {
	result, err := e.EvaluateResources(ctx, resources)
	if err != nil {
		return err
	}

	for _, v := range append(slices.Clone(result.Violations), result.Warnings...) {
		e.logger.Warn().
			Str("policy", v.Policy).
			Str("resource", v.Resource).
			Str("severity", string(v.Severity)).
			Msg(v.Message)
		if e.events != nil {
			_ = e.events.PublishPolicyViolation(v.Policy, v.Resource, string(v.Severity), v.Message)
		}
	}

	e.mu.RLock()
	mode := e.mode
	e.mu.RUnlock()

	if result.Allowed || mode == ModeAdvisory {
		return nil
	}

	messages := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		messages = append(messages, v.String())
	}
	return engine.NewConfigurationError("policy denied: "+strings.Join(messages, "; "), nil).
		WithCode(engine.ErrCodePolicyDenied).
		WithResource(result.Violations[0].Resource).
		WithDetail("violations", result.Violations)
}

// LoadPolicies loads and compiles policy files, replacing policies with the
// same name.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().
		Int("count", len(policies)).
		Msg("Policies loaded")

	return nil
}

// evaluatePolicy evaluates a single compiled policy against one input.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		// deny is a set, returned as a slice
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, createViolation(cp.policy, d, input))
		}
	}

	return violations, nil
}

// createViolation creates a Violation from a deny entry, which is either a
// message string or an object with message, severity and resource.
func createViolation(policy *Policy, entry interface{}, input *Input) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Resource: input.Resource.ID,
		Severity: policy.Severity,
	}

	switch v := entry.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
		if res, ok := v["resource"].(string); ok {
			violation.Resource = res
		}
	default:
		violation.Message = fmt.Sprintf("%v", entry)
	}

	return violation
}

// compileAndStorePolicy parses a policy, checks it defines deny and prepares
// the deny query. Callers hold the write lock or own the engine.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	module, err := ast.ParseModule(policy.Name+".rego", policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	query := module.Package.Path.String() + ".deny"
	prepared, err := rego.New(
		rego.Module(policy.Name+".rego", policy.Rego),
		rego.Query(query),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query %s: %w", query, err)
	}

	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		query:    prepared,
		compiled: time.Now(),
	}

	e.logger.Debug().
		Str("policy", policy.Name).
		Str("query", query).
		Msg("Policy compiled")

	return nil
}

func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		policies = append(policies, *e.policies[name].policy)
	}
	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")
	return nil
}
