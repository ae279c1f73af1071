package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/openfroyo/stackprov/pkg/engine"
	"github.com/spf13/cobra"
)

func newPlanCommand(opts *rootOptions) *cobra.Command {
	var (
		dot        bool
		jsonOutput bool
		down       bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what apply would do",
		Long: `Inspect every resource in execution order and print the action apply
would take, without changing anything.

Resources whose inspection fails, and everything depending on them, are
reported with the error; the command then exits non-zero.`,
		Example: `  # Text plan
  stackprov plan -f stack.cue

  # Dependency graph colored by action
  stackprov plan -f stack.cue --dot | dot -Tpng > plan.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			operation := "apply"
			if down {
				operation = "down"
			}

			a, err := opts.newApp(ctx, operation, nil)
			if err != nil {
				reportError(cmd.ErrOrStderr(), err)
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			build := engine.BuildResources
			if down {
				build = engine.BuildStopResources
			}
			resources, err := build(a.inputs())
			if err != nil {
				reportError(cmd.ErrOrStderr(), err)
				return err
			}

			if a.guard != nil {
				if err := a.guard.CheckResources(ctx, resources); err != nil {
					reportError(cmd.ErrOrStderr(), err)
					return err
				}
			}

			plan, builder, err := a.planner().Plan(ctx, resources)
			if err != nil {
				reportError(cmd.ErrOrStderr(), err)
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case dot:
				fmt.Fprint(out, builder.ToDOT(plan.Actions()))
			case jsonOutput:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(plan); err != nil {
					return fmt.Errorf("failed to encode plan: %w", err)
				}
			default:
				printPlan(out, plan)
			}

			if plan.Summary.Errored > 0 {
				return fmt.Errorf("plan has %d resources that cannot be converged", plan.Summary.Errored)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dot, "dot", false, "print the dependency graph in Graphviz DOT format")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the plan as JSON")
	cmd.Flags().BoolVar(&down, "down", false, "plan stopping the stack instead")
	cmd.MarkFlagsMutuallyExclusive("dot", "json")

	return cmd
}

// printPlan writes one line per step and the summary.
func printPlan(w io.Writer, plan *engine.Plan) {
	tw := tabwriter.NewWriter(w, 0, 4, 3, ' ', 0)
	fmt.Fprintln(tw, "RESOURCE\tOBSERVED\tACTION")
	for _, step := range plan.Steps {
		switch {
		case step.Error != "":
			fmt.Fprintf(tw, "%s\t-\t[%s] %s\n", step.ResourceID, step.ErrorKind, step.Error)
		default:
			fmt.Fprintf(tw, "%s\t%s\t%s\n", step.ResourceID, step.State.Status, step.Action.Type)
		}
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\nPlan: %d to change, %d unchanged, %d errored\n",
		plan.Summary.Mutating, plan.Summary.NoAction, plan.Summary.Errored)
}
