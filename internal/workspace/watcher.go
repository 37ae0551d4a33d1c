package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/holrepl/internal/logging"
)

// reloadDebounce coalesces the bursts of events editors produce on save.
const reloadDebounce = 100 * time.Millisecond

// DepsWatcher reloads the dependency file whenever it changes and hands the
// new entries to a callback.
type DepsWatcher struct {
	path     string
	onChange func([]string)
	logger   *logging.Logger
	debounce time.Duration

	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// WatchDeps starts watching the dependency file at path. The file's
// directory is created if needed, since fsnotify watches directories more
// reliably than files that editors replace on save. Call Stop to release it.
func WatchDeps(path string, logger *logging.Logger, onChange func([]string)) (*DepsWatcher, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	w := &DepsWatcher{
		path:     path,
		onChange: onChange,
		logger:   logger.WithComponent("deps-watcher"),
		debounce: reloadDebounce,
		watcher:  watcher,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.watchLoop()
	return w, nil
}

// Stop stops watching and waits for the watch goroutine to exit.
func (w *DepsWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
	})
	<-w.done
}

func (w *DepsWatcher) watchLoop() {
	defer close(w.done)

	target := filepath.Base(w.path)
	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C
	defer debounceTimer.Stop()

	for {
		select {
		case <-w.stopCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			debounceTimer.Reset(w.debounce)

		case <-debounceTimer.C:
			entries := LoadDeps(w.path, w.logger)
			w.logger.Debug("deps file reloaded", "entries", len(entries))
			if w.onChange != nil {
				w.onChange(entries)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("deps watcher error", "error", err)
		}
	}
}
