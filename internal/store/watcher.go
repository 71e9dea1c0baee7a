package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval coalesces the bursts of file events a single SQLite
// commit produces (main file, -wal, -shm).
const debounceInterval = 500 * time.Millisecond

// Watch monitors the database file for out-of-band writes by the host
// application and calls onChange (debounced) until ctx is cancelled.
//
// The watch is placed on the containing directory because SQLite writes
// through sibling journal files, and editors of the host application may
// replace the main file wholesale.
func Watch(ctx context.Context, dbPath string, logger *slog.Logger, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(dbPath)
	if err := w.Add(dir); err != nil {
		return err
	}
	base := filepath.Base(dbPath)

	logger.Info("watcher: started", slog.String("path", dbPath))

	var fireTimer *time.Timer
	var fireCh <-chan time.Time

	schedule := func() {
		if fireTimer == nil {
			fireTimer = time.NewTimer(debounceInterval)
			fireCh = fireTimer.C
		} else {
			fireTimer.Reset(debounceInterval)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if fireTimer != nil {
				fireTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fireCh:
			logger.Debug("watcher: database changed externally")
			onChange()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), base) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				schedule()
			}

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher: error", slog.String("error", werr.Error()))
		}
	}
}
