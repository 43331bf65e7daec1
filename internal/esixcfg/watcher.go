package esixcfg

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a [Config] from disk whenever its file is written, and
// hands the new value to a callback on the caller's goroutine (SPEC_FULL.md
// §0 "fsnotify watches the config file ... triggers a reload without
// restarting the worker"). It is grounded on the teacher's
// internal/aghos.osWatcher, trimmed from a general directory/multi-file
// tracker to the single config path esix needs.
type Watcher struct {
	logger *slog.Logger
	path   string
	fsw    *fsnotify.Watcher
	onLoad func(*Config)
}

// NewWatcher starts watching path and calls onLoad for its initial, already-
// loaded contents and for every subsequent write. logger and onLoad must not
// be nil.
func NewWatcher(logger *slog.Logger, path string, onLoad func(*Config)) (w *Watcher, err error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	if err = fsw.Add(path); err != nil {
		_ = fsw.Close()

		return nil, fmt.Errorf("watching %q: %w", path, err)
	}

	return &Watcher{
		logger: logger,
		path:   path,
		fsw:    fsw,
		onLoad: onLoad,
	}, nil
}

// Run blocks, reloading and invoking onLoad on every write event, until ctx
// is canceled or [Watcher.Close] is called. It is meant to run in its own
// goroutine, mirroring osWatcher.handleEvents.
func (w *Watcher) Run(ctx context.Context) {
	defer slogutil.RecoverAndLog(ctx, w.logger)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Write == 0 {
				continue
			}

			cfg, err := Load(w.path)
			if err != nil {
				w.logger.ErrorContext(ctx, "reloading config", slogutil.KeyError, err)

				continue
			}

			w.onLoad(cfg)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.ErrorContext(ctx, "watching config", slogutil.KeyError, err)
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() (err error) {
	return errors.Annotate(w.fsw.Close(), "closing config watcher: %w")
}
