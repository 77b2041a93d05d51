package config

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce suppresses duplicate reloads from noisy editor save
// patterns (truncate+write, temp+rename all land within milliseconds).
const reloadDebounce = 200 * time.Millisecond

// Watcher reloads the config file when it changes on disk and hands the
// freshly validated Config to the onReload callback. Changes the application
// itself writes through Save are reported too; callers that need to
// distinguish their own writes should compare against their current snapshot.
type Watcher struct {
	path      string
	base      string
	onReload  func(Config)
	fsWatcher *fsnotify.Watcher
	closeOnce sync.Once
}

// NewWatcher creates a watcher for the config file at path.
// The parent directory is watched rather than the file itself: atomic
// temp+rename saves replace the inode, which drops a direct file watch on
// Windows and Linux alike.
func NewWatcher(path string, onReload func(Config)) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config path required")
	}
	if onReload == nil {
		return nil, errors.New("onReload callback is required")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	cleanPath := filepath.Clean(path)
	if err := fsWatcher.Add(filepath.Dir(cleanPath)); err != nil {
		if closeErr := fsWatcher.Close(); closeErr != nil {
			slog.Warn("[WARN-CONFIG] failed to close watcher after add failure", "error", closeErr)
		}
		return nil, err
	}

	return &Watcher{
		path:      cleanPath,
		base:      filepath.Base(cleanPath),
		onReload:  onReload,
		fsWatcher: fsWatcher,
	}, nil
}

// Run processes filesystem events until ctx is cancelled or the watcher is
// closed. Blocking call; run it on a dedicated goroutine.
func (w *Watcher) Run(ctx context.Context) {
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.isConfigChange(event) {
				continue
			}
			if time.Since(last) < reloadDebounce {
				continue
			}
			last = time.Now()
			w.reload()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Warn("[WARN-CONFIG] config watcher error", "error", err)
		}
	}
}

// Close stops the watcher. Safe to call multiple times.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsWatcher.Close()
	})
	return err
}

// isConfigChange filters directory events down to ones that can alter the
// config file's content: writes to the file and renames/creates landing on
// its name (the atomic-save pattern).
func (w *Watcher) isConfigChange(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(event.Name)
	return name == w.path || filepath.Base(name) == w.base
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		// Load already fell back to defaults; the callback still runs so the
		// application converges on a consistent state.
		slog.Warn("[WARN-CONFIG] reload after file change failed, applying defaults", "path", w.path, "error", err)
	}
	slog.Info("[INFO-CONFIG] config reloaded from disk", "path", w.path)
	w.onReload(Clone(cfg))
}
