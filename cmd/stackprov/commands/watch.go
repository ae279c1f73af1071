package commands

import (
	"context"
	"time"

	"github.com/openfroyo/stackprov/pkg/watcher"
	"github.com/spf13/cobra"
)

func newWatchCommand(opts *rootOptions) *cobra.Command {
	var (
		debounce      time.Duration
		metricsListen string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Apply, then re-apply whenever a source changes",
		Long: `Run apply once, then watch the configuration source, the composition
source, the inputs file and policy paths. Each settled batch of changes
triggers another apply. Runs never overlap. A failed run is reported and
watching continues.

Stops on SIGINT or SIGTERM. Source paths are read once at startup; restart
watch after pointing the inputs at different files.`,
		Example: `  stackprov watch -f stack.cue --metrics-listen :9464`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

			doc, err := opts.resolve()
			if err != nil {
				reportError(stderr, err)
				return err
			}
			if err := doc.Err(); err != nil {
				reportError(stderr, err)
				return err
			}

			tel, err := opts.newTelemetry(metricsListen)
			if err != nil {
				return err
			}
			defer tel.Shutdown(context.WithoutCancel(ctx))

			logger := tel.Logger.NewComponentLogger("watch").Zerolog()
			if server := tel.Metrics.StartMetricsServer(func(err error) {
				logger.Error().Err(err).Msg("Metrics server failed")
			}); server != nil {
				defer server.Close()
				logger.Info().Str("address", metricsListen).Msg("Serving metrics")
			}

			apply := func(ctx context.Context) {
				a, err := opts.newApp(ctx, "apply", tel)
				if err != nil {
					reportError(stderr, err)
					return
				}
				defer a.Close(context.WithoutCancel(ctx))

				// Failures are already reported; keep watching.
				_ = reconcileOnce(ctx, a, "apply", stdout, stderr)
				if err := tel.Metrics.WriteTextfile(); err != nil {
					logger.Warn().Err(err).Msg("Failed to write metrics textfile")
				}
			}

			paths := doc.Inputs.Sources()
			if doc.SourceFile != "" {
				paths = append(paths, doc.SourceFile)
			}
			paths = append(paths, doc.Inputs.Policy.Paths...)

			w, err := watcher.New(paths, logger, watcher.WithDebounce(debounce))
			if err != nil {
				return err
			}

			apply(ctx)
			logger.Info().Strs("paths", paths).Msg("Watching for changes")

			return w.Run(ctx, func(ctx context.Context, changed []string) {
				logger.Info().Strs("changed", changed).Msg("Re-applying")
				apply(ctx)
			})
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultDebounce, "wait for changes to settle this long")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "serve prometheus metrics on this address")

	return cmd
}
