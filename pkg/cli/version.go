package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/collab/pkg/collab"
	"github.com/platinummonkey/collab/pkg/versions"
)

// VersionOptions holds flags for the version command
type VersionOptions struct {
	*RootOptions
	Lookup bool
}

// NewVersionCommand creates the version command
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VersionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "version <file> <md5hash>",
		Short: "Get or create the version of a file with a content hash",
		Long: `Get or create the version of a file with a content hash in the configured
storage. Running it twice reports newly_created=false the second time.

Example:
  collab version f1 deadbeefdeadbeefdeadbeefdeadbeef --fixtures fixtures.yaml`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd, opts, collab.FileID(args[0]), collab.ContentHash(args[1]))
		},
	}

	cmd.Flags().BoolVar(&opts.Lookup, "lookup", false, "only look the version up, never create it")

	return cmd
}

func runVersion(cmd *cobra.Command, opts *VersionOptions, file collab.FileID, hash collab.ContentHash) error {
	s, err := opts.openSession(cmd, true)
	if err != nil {
		return err
	}
	defer s.close()

	store := versions.NewStore(s.repo, nil, nil, versions.Config{
		MaxAttempts:  s.cfg.Versions.MaxAttempts,
		RetryBackoff: s.cfg.Versions.RetryBackoff,
	})

	var (
		v       *collab.FileVersion
		created bool
	)
	if opts.Lookup {
		v, err = store.GetVersion(cmd.Context(), file, hash)
	} else {
		v, created, err = store.GetOrCreateVersion(cmd.Context(), file, hash)
	}
	if err != nil {
		return err
	}

	resp := versions.VersionResponse{
		NewlyCreated: created,
		MD5Hash:      v.Hash,
		File:         v.File,
		CreatedAt:    v.CreatedAt,
	}
	return opts.formatter(cmd).Success(resp,
		fmt.Sprintf("%s %s newly_created=%t", v.File, v.Hash, created))
}
