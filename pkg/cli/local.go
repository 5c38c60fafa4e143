package cli

import (
	"github.com/spf13/cobra"

	"github.com/platinummonkey/collab/pkg/app"
	"github.com/platinummonkey/collab/pkg/config"
	"github.com/platinummonkey/collab/pkg/fixtures"
	"github.com/platinummonkey/collab/pkg/storage"
)

// session is a repository opened for a one-shot local command
type session struct {
	cfg  *config.Config
	repo storage.Repository
}

// openSession opens the configured repository. With withFixtures the
// configured fixture file, if any, is imported first.
func (o *RootOptions) openSession(cmd *cobra.Command, withFixtures bool) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	repo, err := app.OpenRepository(ctx, cfg.Storage, o.serviceLogger(cfg, cmd.ErrOrStderr()))
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to open storage", err)
	}

	s := &session{cfg: cfg, repo: repo}
	if withFixtures && cfg.Fixtures.Path != "" {
		res, err := fixtures.LoadFile(ctx, cfg.Fixtures.Path, repo)
		if err != nil {
			s.close()
			return nil, WrapExitError(ExitCommandError, "failed to import fixtures", err)
		}
		o.Log.WithField("files", res.Files).WithField("edges", res.Edges).Debug("fixtures imported")
	}
	return s, nil
}

func (s *session) close() {
	_ = s.repo.Close()
}
