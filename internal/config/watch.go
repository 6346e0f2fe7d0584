// File: internal/config/watch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Hot reload of the .env file. Only settings that are safe to change on a
// running server are applied by callers; everything else waits for restart.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// Watch reloads path whenever it is written or replaced and passes the
// resulting configuration to onChange. It blocks until ctx is done.
// The parent directory is watched so editors that rename over the file are
// still seen.
func Watch(ctx context.Context, path string, log *slog.Logger, onChange func(Config)) error {
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := godotenv.Overload(abs); err != nil {
				log.Warn("reload env file failed", "path", abs, "err", err)
				continue
			}
			cfg, err := Load(log)
			if err != nil {
				log.Warn("reload config failed", "err", err)
				continue
			}
			log.Info("configuration reloaded", "path", abs)
			onChange(cfg)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("env watcher error", "err", err)
		}
	}
}
