package watch

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 100 * time.Millisecond

// ConfigWatcher calls reload whenever a file changes. The parent directory
// is watched so editors that replace the file on save are still seen.
type ConfigWatcher struct {
	*BaseWatcher
	path    string
	reload  func(path string) error
	watcher *fsnotify.Watcher

	timerMu sync.Mutex
	timer   *time.Timer
}

func NewConfigWatcher(path string, reload func(path string) error) *ConfigWatcher {
	return &ConfigWatcher{
		BaseWatcher: NewBaseWatcher("cf"),
		path:        filepath.Clean(path),
		reload:      reload,
	}
}

func (w *ConfigWatcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher

	go w.eventLoop()
	slog.Info("config watcher started", "path", w.path)
	return nil
}

func (w *ConfigWatcher) Stop() {
	w.Cancel()
	if w.watcher != nil {
		w.watcher.Close()
	}

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.timerMu.Unlock()

	slog.Info("config watcher stopped", "path", w.path)
}

func (w *ConfigWatcher) eventLoop() {
	for {
		select {
		case <-w.Context().Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("fsnotify error", "error", err)
		}
	}
}

func (w *ConfigWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceInterval, w.fire)
}

func (w *ConfigWatcher) fire() {
	if w.Context().Err() != nil {
		return
	}
	if err := w.reload(w.path); err != nil {
		slog.Error("config reload failed, keeping previous", "path", w.path, "error", err)
		return
	}
	slog.Info("config reloaded", "path", w.path)
}
