package commands

import (
	"context"
	"fmt"

	"github.com/openfroyo/stackprov/pkg/config"
	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	inputsPath     string
	projectRoot    string
	configSource   string
	composeSource  string
	configName     string
	projectName    string
	journal        string
	policyPaths    []string
	noPolicy       bool
	composeCommand string
	verbose        bool
	logFormat      string
	metricsFile    string
	traceExporter  string
	otlpEndpoint   string
	version        string
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	opts := &rootOptions{version: version}

	rootCmd := &cobra.Command{
		Use:   "stackprov",
		Short: "stackprov - provision a host for a composed container stack",
		Long: `stackprov converges a local host to run a containerized service.

It manages a fixed set of resources, in dependency order:
  - the project root directory and its conf/ directory (mode 0755)
  - the service configuration file, copied into conf/
  - the composition file, copied into the project root
  - the composed container stack, brought up in the background

Every run re-inspects the host and only acts where the observed state
differs from the desired state, so repeated runs are no-ops.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.inputsPath, "inputs", "f", "", "inputs file (.cue, .toml, .yaml)")
	flags.StringVar(&opts.projectRoot, "project-root", "", "absolute project root directory")
	flags.StringVar(&opts.configSource, "config-source", "", "service configuration file to install")
	flags.StringVar(&opts.composeSource, "compose-source", "", "composition file to install")
	flags.StringVar(&opts.configName, "config-name", "", "file name of the installed configuration (default app.config)")
	flags.StringVar(&opts.projectName, "project-name", "", "stack project name (default derived from the project root)")
	flags.StringVar(&opts.journal, "journal", "", "SQLite run journal path")
	flags.StringSliceVar(&opts.policyPaths, "policy", nil, "additional .rego policy files or directories")
	flags.BoolVar(&opts.noPolicy, "no-policy", false, "disable policy checks")
	flags.StringVar(&opts.composeCommand, "compose-command", "docker compose", "compose CLI invocation")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging and run events")
	flags.StringVar(&opts.logFormat, "log-format", "console", "log format (console, json)")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "write prometheus metrics to this textfile after the run")
	flags.StringVar(&opts.traceExporter, "trace-exporter", "none", "trace exporter (none, stdout, otlp)")
	flags.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "", "OTLP collector endpoint")

	rootCmd.AddCommand(newApplyCommand(opts))
	rootCmd.AddCommand(newPlanCommand(opts))
	rootCmd.AddCommand(newDownCommand(opts))
	rootCmd.AddCommand(newValidateCommand(opts))
	rootCmd.AddCommand(newHistoryCommand(opts))
	rootCmd.AddCommand(newWatchCommand(opts))

	return rootCmd
}

// overrides returns the flag values that take precedence over the inputs
// file.
func (o *rootOptions) overrides() config.Overrides {
	return config.Overrides{
		ProjectRoot:   o.projectRoot,
		ConfigSource:  o.configSource,
		ComposeSource: o.composeSource,
		ConfigName:    o.configName,
		ProjectName:   o.projectName,
		Journal:       o.journal,
		PolicyPaths:   o.policyPaths,
		NoPolicy:      o.noPolicy,
	}
}

// resolve loads the inputs file, if any, and applies the flags.
func (o *rootOptions) resolve() (*config.Document, error) {
	doc, err := config.NewLoader().Resolve(o.inputsPath, o.overrides())
	if err != nil {
		return nil, err
	}
	return doc, nil
}
