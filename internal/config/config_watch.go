package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the features block from path whenever the file changes and
// calls onChange with the new toggles. Other sections need a restart.
// Blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, cfg *Config, onChange func(FeaturesConfig)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: editors replace files via rename.
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(path)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(200 * time.Millisecond)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config.watch.error", "error", err)
		case <-debounce:
			debounce = nil
			next, err := Load(path)
			if err != nil {
				slog.Warn("config.reload.failed", "path", path, "error", err)
				continue
			}
			features := next.CurrentFeatures()
			cfg.SetFeatures(features)
			slog.Info("config.features.reloaded", "path", path)
			if onChange != nil {
				onChange(features)
			}
		}
	}
}
