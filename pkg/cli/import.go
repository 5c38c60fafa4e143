package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/collab/pkg/fixtures"
)

// NewImportCommand creates the import command
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import files, dependency edges and versions from YAML",
		Long: `Import files, dependency edges and versions from a YAML fixture file
into the configured storage. Importing the same file twice is a no-op.

Example:
  COLLAB_STORAGE_TYPE=sqlite collab import fixtures.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func runImport(cmd *cobra.Command, opts *RootOptions, path string) error {
	s, err := opts.openSession(cmd, false)
	if err != nil {
		return err
	}
	defer s.close()

	out := opts.formatter(cmd)
	out.VerboseLog("importing %s into %s storage", path, s.cfg.Storage.Type)

	res, err := fixtures.LoadFile(cmd.Context(), path, s.repo)
	if err != nil {
		return WrapExitError(ExitFailure, "import failed", err)
	}

	return out.Success(res, fmt.Sprintf("imported %d files, %d/%d edges new, %d/%d versions new",
		res.Files, res.EdgesInserted, res.Edges, res.VersionsInserted, res.Versions))
}
