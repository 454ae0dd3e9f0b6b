package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/kanshi-dev/kanshi/internal/config"
)

// reloadDebounce coalesces the burst of filesystem events a single save
// produces into one reload.
const reloadDebounce = 500 * time.Millisecond

// watchConfig reloads the configuration file whenever it changes and hands
// the result to apply. It watches the directory rather than the file itself
// because editors and provisioning tools replace the file on save, which
// would silently detach a file-level watch.
func watchConfig(ctx context.Context, path string, logger *zap.Logger, apply func(*config.Config)) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to start config watcher", zap.Error(err))
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	base := filepath.Base(path)

	if err := watcher.Add(dir); err != nil {
		logger.Error("failed to watch config directory",
			zap.String("dir", dir),
			zap.Error(err))
		return
	}

	logger.Info("watching configuration file", zap.String("path", path))

	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			}
			timer = time.NewTimer(reloadDebounce)
			pending = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher error", zap.Error(err))

		case <-pending:
			pending = nil

			next, err := config.Load(path)
			if err != nil {
				logger.Error("config reload failed; keeping previous targets", zap.Error(err))
				continue
			}
			logger.Info("configuration changed; reloading targets")
			apply(next)
		}
	}
}
