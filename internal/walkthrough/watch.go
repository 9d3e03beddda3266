package walkthrough

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/muurk/squidly/internal/logging"
	"go.uber.org/zap"
)

// WatchCatalog reloads the catalog at path whenever it changes and passes the
// result to onReload until ctx is done. The parent directory is watched so
// editors that replace the file on save are noticed.
func WatchCatalog(ctx context.Context, path string, onReload func(*Catalog, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create catalog watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to resolve catalog path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	logger := logging.Named("walkthrough")
	logger.Debug("Watching step catalog", zap.String("path", abs))

	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				logger.Info("Step catalog changed, reloading", zap.String("path", abs))
				onReload(LoadCatalog(abs))

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Step catalog watcher error", zap.Error(err))

			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}
