package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/openfroyo/stackprov/pkg/stores"
	"github.com/spf13/cobra"
)

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var (
		limit int
		keep  int
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show journaled runs",
		Long: `List recent runs from the run journal, or the per-resource results of
one run. Requires --journal or a journal entry in the inputs file.`,
		Example: `  # Recent runs
  stackprov history --journal /var/lib/stackprov/journal.db

  # Results of one run
  stackprov history --journal /var/lib/stackprov/journal.db 7f7c...

  # Keep only the 50 newest runs
  stackprov history --journal /var/lib/stackprov/journal.db --prune 50`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			path := opts.journal
			if path == "" && opts.inputsPath != "" {
				doc, err := opts.resolve()
				if err != nil {
					return err
				}
				path = doc.Inputs.Journal
			}
			if path == "" {
				return fmt.Errorf("no journal configured, set --journal")
			}

			store, err := stores.OpenJournal(ctx, stores.Config{Path: path})
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			switch {
			case keep > 0:
				removed, err := store.PruneRuns(ctx, keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d runs\n", removed)
				return nil
			case len(args) == 1:
				return printRunResults(ctx, out, store, args[0])
			default:
				return printRuns(ctx, out, store, limit)
			}
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	cmd.Flags().IntVar(&keep, "prune", 0, "delete all but the newest N runs")

	return cmd
}

func printRuns(ctx context.Context, w io.Writer, store *stores.JournalStore, limit int) error {
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 3, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tOPERATION\tSTATUS\tDURATION\tFAILED")
	for _, run := range runs {
		failed := "-"
		if run.FailedResource != "" {
			failed = fmt.Sprintf("%s [%s]", run.FailedResource, run.FailedKind)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID,
			run.StartedAt.Local().Format(time.DateTime),
			run.Operation,
			run.Status,
			run.Duration().Round(time.Millisecond),
			failed,
		)
	}
	return tw.Flush()
}

func printRunResults(ctx context.Context, w io.Writer, store *stores.JournalStore, runID string) error {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	results, err := store.GetRunResults(ctx, runID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Run %s (%s) %s at %s\n\n",
		run.ID, run.Operation, run.Status, run.StartedAt.Local().Format(time.DateTime))

	tw := tabwriter.NewWriter(w, 0, 4, 3, ' ', 0)
	fmt.Fprintln(tw, "RESOURCE\tOBSERVED\tACTION\tSTATUS\tDURATION\tREASON")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ResourceID, dash(r.Observed), dash(r.Action), r.Status, r.Duration, dash(r.Reason))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
