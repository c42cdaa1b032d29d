package server

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher calls back when watched files change. It watches each file's
// directory so editors and secret managers that replace files by rename are
// seen too. Bursts of events for one file are collapsed into a single call.
type Watcher struct {
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration

	mu       sync.Mutex
	handlers map[string][]func() // by cleaned absolute path
	dirs     map[string]bool
	timers   map[string]*time.Timer
}

// NewWatcher creates a Watcher. A zero debounce uses the default.
func NewWatcher(logger *slog.Logger, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		fsw:      fsw,
		logger:   logger.With("component", "watcher"),
		debounce: debounce,
		handlers: make(map[string][]func()),
		dirs:     make(map[string]bool),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Watch registers onChange for path.
func (w *Watcher) Watch(path string, onChange func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirs[dir] {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	w.handlers[abs] = append(w.handlers[abs], onChange)
	w.logger.Debug("watching file", "path", abs)
	return nil
}

// Run processes events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(filepath.Clean(event.Name))
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	handlers, ok := w.handlers[path]
	if !ok {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.logger.Info("file changed", "path", path)
		for _, h := range handlers {
			h()
		}
	})
}

func (w *Watcher) close() {
	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()
	if err := w.fsw.Close(); err != nil {
		w.logger.Warn("failed to close file watcher", "error", err)
	}
}
