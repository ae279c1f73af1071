package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/openfroyo/stackprov/pkg/engine"
	"github.com/spf13/cobra"
)

// errRunFailed is returned after a failed run has been reported.
var errRunFailed = errors.New("reconciliation failed")

func newApplyCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Converge the host to the desired state",
		Long: `Reconcile every resource once, in dependency order.

Each resource is inspected, compared with its desired state and converged
with the minimal action. A failed resource blocks everything that depends
on it; independent resources are still attempted.

Exits 0 when every resource is unchanged or converged. Otherwise prints the
first failing resource and the reason and exits non-zero.`,
		Example: `  # Apply from an inputs file
  stackprov apply -f stack.cue

  # Apply from flags only
  stackprov apply --project-root /srv/app \
    --config-source ./app.config --compose-source ./docker-compose.yml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context(), opts, "apply", cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	return cmd
}

// runReconcile runs one apply or down and reports the outcome.
func runReconcile(ctx context.Context, opts *rootOptions, operation string, stdout, stderr io.Writer) error {
	a, err := opts.newApp(ctx, operation, nil)
	if err != nil {
		reportError(stderr, err)
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	return reconcileOnce(ctx, a, operation, stdout, stderr)
}

// reconcileOnce builds the model for operation, runs it and prints the
// outcome.
func reconcileOnce(ctx context.Context, a *app, operation string, stdout, stderr io.Writer) error {
	build := engine.BuildResources
	if operation == "down" {
		build = engine.BuildStopResources
	}

	resources, err := build(a.inputs())
	if err != nil {
		reportError(stderr, err)
		return err
	}

	outcome, err := a.reconciler().Run(ctx, resources)
	if err != nil {
		reportError(stderr, err)
		return err
	}

	printOutcome(stdout, outcome)
	if !outcome.Succeeded() {
		fmt.Fprintf(stderr, "FAILED %s: [%s] %s\n", outcome.FailedResource, outcome.FailedKind, outcome.Reason)
		return fmt.Errorf("%w at %s", errRunFailed, outcome.FailedResource)
	}
	return nil
}

// printOutcome writes one line per resource and a summary.
func printOutcome(w io.Writer, outcome *engine.RunOutcome) {
	tw := tabwriter.NewWriter(w, 0, 4, 3, ' ', 0)
	for _, r := range outcome.Results {
		action := string(r.Action)
		if action == "" {
			action = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ResourceID, r.Status, action)
	}
	_ = tw.Flush()

	counts := outcome.Counts()
	fmt.Fprintf(w, "\nRun %s %s: %d unchanged, %d converged, %d failed (%s)\n",
		outcome.RunID, outcome.Status,
		counts[engine.ResultUnchanged], counts[engine.ResultConverged], counts[engine.ResultFailed],
		outcome.CompletedAt.Sub(outcome.StartedAt).Round(time.Millisecond))
}

// reportError prints an error that stopped a command before or instead of a
// run, in the same shape as a failed resource.
func reportError(w io.Writer, err error) {
	var e *engine.EngineError
	if errors.As(err, &e) {
		resource := e.Resource
		if resource == "" {
			resource = "-"
		}
		fmt.Fprintf(w, "FAILED %s: [%s] %s\n", resource, e.Kind, e.Reason())
		return
	}
	fmt.Fprintf(w, "FAILED -: %v\n", err)
}
