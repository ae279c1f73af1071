package commands

import (
	"fmt"
	"io"

	"github.com/openfroyo/stackprov/pkg/config"
	"github.com/openfroyo/stackprov/pkg/engine"
	"github.com/openfroyo/stackprov/pkg/policy"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newValidateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the inputs without touching the host",
		Long: `Validate the inputs file and flags:
  - schema and field constraints
  - source files are readable
  - the resource model builds and has no dependency cycle
  - policies allow the model

Every problem is printed; the command exits non-zero if there is any.`,
		Example: `  stackprov validate -f stack.cue`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			doc, err := opts.resolve()
			if err != nil {
				reportError(cmd.ErrOrStderr(), err)
				return err
			}

			problems := validateDocument(cmd, opts, doc, out)
			if problems > 0 {
				return fmt.Errorf("validation found %d problems", problems)
			}

			source := doc.SourceFile
			if source == "" {
				source = "flags"
			}
			fmt.Fprintf(out, "✓ %s is valid\n", source)
			return nil
		},
	}

	return cmd
}

// validateDocument prints every problem found and returns how many block
// a run.
func validateDocument(cmd *cobra.Command, opts *rootOptions, doc *config.Document, out io.Writer) int {
	problems := 0
	report := func(v config.ValidationError) {
		mark := "✗"
		if v.Severity == config.SeverityWarning {
			mark = "!"
		} else {
			problems++
		}
		fmt.Fprintf(out, "%s %s\n", mark, v)
	}

	for _, v := range doc.Errors {
		report(v)
	}
	for _, v := range config.CheckSources(doc.Inputs) {
		report(v)
	}
	if problems > 0 {
		return problems
	}

	logger := zerolog.Nop()
	if opts.verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(zerolog.DebugLevel)
	}

	resources, err := engine.BuildResources(doc.Inputs.ToEngineInputs())
	if err == nil {
		_, _, err = engine.NewPlanner(nil, logger).Order(resources)
	}
	if err != nil {
		report(config.ValidationError{Message: err.Error(), Severity: config.SeverityError})
		return problems
	}

	if doc.Inputs.Policy.Disabled {
		return problems
	}

	guard, err := policy.NewEngine(logger)
	if err == nil && len(doc.Inputs.Policy.Paths) > 0 {
		err = guard.LoadPolicies(cmd.Context(), doc.Inputs.Policy.Paths)
	}
	if err != nil {
		report(config.ValidationError{Path: "policy", Message: err.Error(), Severity: config.SeverityError})
		return problems
	}
	guard.SetOperation("validate")

	result, err := guard.EvaluateResources(cmd.Context(), resources)
	if err != nil {
		report(config.ValidationError{Path: "policy", Message: err.Error(), Severity: config.SeverityError})
		return problems
	}

	advisory := doc.Inputs.Policy.Mode == string(policy.ModeAdvisory)
	for _, v := range result.Violations {
		severity := config.SeverityError
		if advisory {
			severity = config.SeverityWarning
		}
		report(config.ValidationError{Path: v.Resource, Message: fmt.Sprintf("%s: %s", v.Policy, v.Message), Severity: severity})
	}
	for _, v := range result.Warnings {
		report(config.ValidationError{Path: v.Resource, Message: fmt.Sprintf("%s: %s", v.Policy, v.Message), Severity: config.SeverityWarning})
	}

	return problems
}
