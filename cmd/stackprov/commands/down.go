package commands

import (
	"github.com/spf13/cobra"
)

func newDownCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop the container stack",
		Long: `Converge the stack to stopped. Directories and files are left as they
are; nothing is ever deleted from the host. Running it against a stopped
stack does nothing.`,
		Example: `  stackprov down -f stack.cue`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context(), opts, "down", cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	return cmd
}
