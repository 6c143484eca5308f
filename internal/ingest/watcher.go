package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/muninn/internal/apperr"
)

// watchDebounce batches rapid file events (editor saves, bulk copies)
// into a single ingestion run.
const watchDebounce = 2 * time.Second

// Watch starts an fsnotify watcher on the corpus root and schedules a
// debounced ingestion run whenever supported documents change. It blocks
// until ctx is cancelled.
//
// New directories created at runtime are added to the watch list. The
// run itself re-diffs the whole corpus, so event kinds only matter for
// deciding whether to schedule a run at all.
func (ing *Ingestor) Watch(ctx context.Context, root string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var runTimer *time.Timer
	var runCh <-chan time.Time

	scheduleRun := func() {
		if runTimer == nil {
			runTimer = time.NewTimer(watchDebounce)
			runCh = runTimer.C
		} else {
			runTimer.Reset(watchDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if runTimer != nil {
				runTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-runCh:
			if _, err := ing.Run(ctx, "watch"); err != nil {
				if errors.Is(err, apperr.ErrBusy) {
					// A manual run is in flight; pick up the changes after.
					scheduleRun()
					continue
				}
				logger.Warn("watcher: run failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					scheduleRun()
					continue
				}
			}

			if !supportedDocument(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
				scheduleRun()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func supportedDocument(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md":
		return true
	}
	return false
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
