package fixtures

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/collab/pkg/observability"
)

// Watcher re-imports a fixture file whenever it changes on disk
type Watcher struct {
	path     string
	writer   Writer
	logger   *observability.Logger
	debounce time.Duration

	// OnApply, when set, is called after every import attempt
	OnApply func(Result, error)
}

// NewWatcher creates a watcher for path. Bursts of events within debounce
// trigger a single import.
func NewWatcher(path string, w Writer, logger *observability.Logger, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		path:     filepath.Clean(path),
		writer:   w,
		logger:   logger.WithField("fixtures", path),
		debounce: debounce,
	}
}

// Run watches until ctx is done. The parent directory is watched rather
// than the file so that editors which replace the file via rename are
// still seen.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	w.logger.Info("Watching fixtures for changes")

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Fixture watcher error")
		case <-timer.C:
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	defer observability.RecoverPanic(w.logger, "fixtures reload")

	res, err := LoadFile(ctx, w.path, w.writer)
	if err != nil {
		w.logger.WithError(err).Error("Failed to reload fixtures")
	} else {
		w.logger.WithFields(map[string]interface{}{
			"files":          res.Files,
			"edges_inserted": res.EdgesInserted,
			"versions":       res.VersionsInserted,
		}).Info("Fixtures reloaded")
	}

	if w.OnApply != nil {
		w.OnApply(res, err)
	}
}
