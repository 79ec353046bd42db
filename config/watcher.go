package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/GoCodeAlone/alouette/logging"
)

// Watcher reloads a config file whenever it changes on disk and applies the
// result through a Manager, which in turn emits config:changed.
type Watcher struct {
	path    string
	manager *Manager
	logger  logging.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher watches the directory of path so that editors replacing the
// file through a rename are still observed.
func NewWatcher(path string, manager *Manager, logger logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", abs, err)
	}
	return &Watcher{path: abs, manager: manager, logger: logging.OrNop(logger), watcher: fw}, nil
}

// Run processes file events until ctx is cancelled or Close is called.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.reload(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Config watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	cfg, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warn("Ignoring invalid config file", "path", w.path, "error", err)
		return
	}
	if err := w.manager.Apply(ctx, cfg); err != nil {
		w.logger.Error("Failed to apply reloaded config", "path", w.path, "error", err)
		return
	}
	w.logger.Info("Config file reloaded", "path", w.path)
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
