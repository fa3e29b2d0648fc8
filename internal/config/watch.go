package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchDebounce is how long the file must be quiet before it is reloaded.
var WatchDebounce = 200 * time.Millisecond

// Watch reloads home/config.yaml whenever it changes and calls onChange with the
// new config. Invalid files are logged and skipped. It blocks until ctx is done.
func Watch(ctx context.Context, home string, log *slog.Logger, onChange func(Config)) error {
	if log == nil {
		log = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	// Watch the directory: editors replace the file with a rename.
	if err := w.Add(home); err != nil {
		return err
	}
	target := filepath.Clean(Path(home))

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(WatchDebounce)
			} else {
				timer.Reset(WatchDebounce)
			}
			pending = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watch error", "err", err)
		case <-pending:
			pending = nil
			cfg, err := Load(home)
			if err != nil {
				log.Error("config reload failed", "path", target, "err", err)
				continue
			}
			log.Info("config reloaded", "path", target)
			onChange(cfg)
		}
	}
}
