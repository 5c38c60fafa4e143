package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/collab/pkg/observability"
	"github.com/platinummonkey/collab/pkg/storage/sqlstore"
)

const statsTimeout = 30 * time.Second

// RefreshStats reads record counts and pool statistics into the gauges
func (a *App) RefreshStats(ctx context.Context) error {
	stats, err := a.Repo.Stats(ctx)
	if err != nil {
		if a.Metrics != nil {
			a.Metrics.StatsRefreshErrorsTotal.Inc()
		}
		return fmt.Errorf("failed to read storage stats: %w", err)
	}
	a.Metrics.RecordStorageTotals(stats.Files, stats.Versions, stats.Edges)

	if s, ok := a.Repo.(*sqlstore.Store); ok {
		a.Metrics.RecordDBStats(s.Conns().Stats())
	}
	return nil
}

// StartStats schedules RefreshStats on the configured cron schedule and
// runs it once immediately. It does nothing when stats or metrics are off.
func (a *App) StartStats() error {
	if !a.Config.Stats.Enabled || a.Metrics == nil {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(a.Config.Stats.Schedule, func() {
		defer observability.RecoverPanic(a.Logger, "stats refresh")

		ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
		defer cancel()
		if err := a.RefreshStats(ctx); err != nil {
			a.Logger.WithError(err).Warn("Stats refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule stats refresh: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()
	if err := a.RefreshStats(ctx); err != nil {
		a.Logger.WithError(err).Warn("Initial stats refresh failed")
	}

	c.Start()
	a.scheduler = c
	a.Logger.WithField("schedule", a.Config.Stats.Schedule).Info("Stats refresh scheduled")
	return nil
}
