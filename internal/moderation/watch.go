package moderation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dailycompanion/companion/internal/logging"
)

// WatchAllowlist loads the allowlist at path into s and reloads it whenever
// the file changes, until ctx is done. A reload that fails to parse keeps
// the previous allowlist. A missing directory is treated like a missing file:
// the list is empty and nothing is watched.
func WatchAllowlist(ctx context.Context, s *Scrubber, path string, logger *logging.Logger) error {
	list, err := LoadAllowlist(path)
	if err != nil {
		return err
	}
	s.SetAllowlist(list)

	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		logger.Warn(ctx, "allowlist directory does not exist, not watching", zap.String("path", path))
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating allowlist watcher: %w", err)
	}
	// Editors often replace the file, so watch its directory.
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) {
					continue
				}
				list, err := LoadAllowlist(path)
				if err != nil {
					logger.Warn(ctx, "allowlist reload failed", zap.String("path", path), zap.Error(err))
					continue
				}
				s.SetAllowlist(list)
				logger.Info(ctx, "allowlist reloaded", zap.String("path", path), zap.Int("patterns", len(list.Regexes)))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn(ctx, "allowlist watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
