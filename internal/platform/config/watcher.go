package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch starts an fsnotify watch on the store's backing file and reloads
// Tunables into it on every write or create event, until ctx is cancelled.
// It is a no-op if the store was created without a path.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return err
	}

	go func() {
		defer fw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				t, err := load(s.path)
				if err != nil {
					slog.Warn("config reload failed", "path", s.path, "error", err)
					continue
				}
				s.set(t)
				slog.Info("config reloaded", "path", s.path)
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)
			}
		}
	}()
	return nil
}
