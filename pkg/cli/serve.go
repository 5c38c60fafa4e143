package cli

import (
	"github.com/spf13/cobra"

	"github.com/platinummonkey/collab/pkg/app"
)

// ServeOptions holds flags for the serve command
type ServeOptions struct {
	*RootOptions
	Watch bool
	Port  string
}

// NewServeCommand creates the serve command
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Long: `Run the HTTP gateway and the health/metrics server.

Example:
  collab serve --fixtures fixtures.yaml --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "re-import the fixture file when it changes")
	cmd.Flags().StringVar(&opts.Port, "port", "", "API port (overrides COLLAB_PORT)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Watch {
		cfg.Fixtures.Watch = true
	}
	if opts.Port != "" {
		cfg.Server.Port = opts.Port
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	a, err := app.New(cmd.Context(), cfg, opts.serviceLogger(cfg, cmd.OutOrStdout()))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to start", err)
	}

	opts.Log.WithField("addr", cfg.Server.Addr()).Info("serving")
	return a.Run(cmd.Context())
}
