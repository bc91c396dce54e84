// Package configwatch reloads the configuration file when it changes on disk.
package configwatch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"quill/internal/config"
	"quill/internal/logging"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 100 * time.Millisecond

// ReloadFunc receives a freshly loaded and validated configuration.
type ReloadFunc func(*config.Config)

// Watcher watches one configuration file.
type Watcher struct {
	path     string
	onReload ReloadFunc
	logger   *slog.Logger
	debounce time.Duration

	fsWatcher *fsnotify.Watcher
	done      chan struct{}
	wg        sync.WaitGroup

	mu       sync.Mutex
	timer    *time.Timer
	stopped  bool
	stopOnce sync.Once
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher for path. The containing directory is watched so
// atomic replace-by-rename saves are observed.
func New(path string, onReload ReloadFunc, logger *slog.Logger, opts ...Option) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("configwatch: empty path")
	}
	if onReload == nil {
		return nil, errors.New("configwatch: nil reload callback")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	w := &Watcher{
		path:     filepath.Clean(abs),
		onReload: onReload,
		logger:   logging.NewComponentLogger(logger, "configwatch"),
		debounce: DefaultDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Path returns the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Start begins watching. The directory is created when missing.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.fsWatcher = fsw
	w.wg.Add(1)
	go w.loop()
	w.logger.Debug("watching config", logging.String("path", w.path))
	return nil
}

// Stop ends the watch and cancels any pending reload.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		close(w.done)
		if w.fsWatcher != nil {
			_ = w.fsWatcher.Close()
		}
		w.wg.Wait()
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "config watch error", "config_watch_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "restart quill to re-arm the watcher"),
				logging.String(logging.FieldImpact, "config edits may not apply until restart"),
			)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	// Rename covers editors that save by replacing the file.
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}

	cfg, _, exists, err := config.Load(w.path)
	if err != nil {
		logging.WarnWithContext(w.logger, "config reload rejected", "config_reload_invalid",
			logging.String("path", w.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the config file; the previous settings stay active"),
			logging.String(logging.FieldImpact, "config change ignored"),
		)
		return
	}
	if !exists {
		return
	}
	w.logger.Info("config reloaded", logging.String("path", w.path))
	w.onReload(cfg)
}
