package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/collab/pkg/config"
	"github.com/platinummonkey/collab/pkg/observability"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	EnvFiles []string
	Fixtures string
	LogLevel string
	Format   string // "json" | "text"
	Verbose  bool

	// Log carries CLI diagnostics; the service itself logs through
	// observability.Logger
	Log *logrus.Logger
}

// ValidFormats defines the allowed output formats
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the collab CLI
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Log: logrus.New()}

	cmd := &cobra.Command{
		Use:   "collab",
		Short: "collab - collaboration metadata core",
		Long: `collab resolves dependency hierarchies between annotations and keeps
idempotent file version records.

Configuration is read from COLLAB_* environment variables, optionally
loaded from --env-file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			opts.Log.SetOutput(cmd.ErrOrStderr())
			opts.Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			opts.Log.SetLevel(logrus.WarnLevel)
			if opts.Verbose {
				opts.Log.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", nil, "env files to load before reading configuration")
	cmd.PersistentFlags().StringVar(&opts.Fixtures, "fixtures", "", "YAML fixture file imported before the command runs (overrides COLLAB_FIXTURES)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "service log level (overrides COLLAB_LOG_LEVEL)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewHierarchyCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code. Errors
// are reported through the output formatter so --format json yields a JSON
// error envelope on stdout.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	format, _ := cmd.PersistentFlags().GetString("format")
	if !isValidFormat(format) {
		format = "text"
	}
	out := &OutputFormatter{Format: format, Writer: stdout, ErrWriter: stderr}
	_ = out.Error(err)
	return GetExitCode(err)
}

// loadConfig reads configuration and applies the global flag overrides
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigFrom(o.EnvFiles...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if o.Fixtures != "" {
		cfg.Fixtures.Path = o.Fixtures
	}
	if o.LogLevel != "" {
		cfg.Observability.LogLevel = observability.ParseLogLevel(o.LogLevel)
	}
	o.Log.WithFields(logrus.Fields{
		"storage":  cfg.Storage.Type,
		"fixtures": cfg.Fixtures.Path,
	}).Debug("configuration loaded")
	return cfg, nil
}

// serviceLogger builds the structured logger handed to the service
// packages. Local commands keep stdout for their own output.
func (o *RootOptions) serviceLogger(cfg *config.Config, w io.Writer) *observability.Logger {
	return observability.NewLogger(cfg.Observability.LogLevel, w)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
