package importer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/logtags/internal/storage"
)

// DefaultDebounce is the quiet period Watch waits for before syncing.
const DefaultDebounce = 200 * time.Millisecond

// Watch observes root with fsnotify and runs Sync once events have been
// quiet for debounce. It returns when ctx is cancelled.
//
// Directories created at runtime are added to the watch list. Renames are
// handled by the sync itself: the old path is forgotten and the new one
// imported.
func (im *Importer) Watch(ctx context.Context, root string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	im.logger.Info("import: watching", slog.String("root", root))

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
			return
		}
		timer.Reset(debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			im.logger.Info("import: watcher stopped")
			return nil

		case <-timerCh:
			timer, timerCh = nil, nil
			if _, err := im.Sync(ctx); err != nil {
				im.logger.Error("import: sync failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if !strings.HasPrefix(filepath.Base(ev.Name), ".") {
						if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
							im.logger.Warn("import: watch new dir failed",
								slog.String("path", ev.Name),
								slog.String("error", addErr.Error()))
						}
						schedule()
					}
					continue
				}
			}
			if !storage.IsTagFile(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			im.logger.Error("import: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
