package persistence

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/mock-server/mockserver-sub017/internal/storage"
	"github.com/mock-server/mockserver-sub017/pkg/config"
	"github.com/mock-server/mockserver-sub017/pkg/expectation"
	"github.com/mock-server/mockserver-sub017/pkg/logging"
)

// DefaultDebounce is how long the Watcher waits for a burst of file events
// to settle before reloading.
const DefaultDebounce = 200 * time.Millisecond

// Updater is the part of the expectation store a Watcher reconciles.
type Updater interface {
	Update(es []*expectation.Expectation, cause storage.Cause) error
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger.
func WithWatcherLogger(log *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if log != nil {
			w.log = log
		}
	}
}

// WithDebounce sets how long events must be quiet before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watcher reloads the initializer files into the store when they change.
type Watcher struct {
	path     string
	patterns []string
	store    Updater
	log      *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	reloads int
}

// NewWatcher creates a Watcher for a comma-separated list of globs.
func NewWatcher(path string, store Updater, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     path,
		store:    store,
		log:      logging.Nop(),
		debounce: DefaultDebounce,
	}
	for _, p := range config.SplitPatterns(path) {
		w.patterns = append(w.patterns, filepath.Clean(p))
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch starts watching the directories the globs can match in. Run calls it
// when it has not been called yet.
func (w *Watcher) Watch() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}
	if len(w.patterns) == 0 {
		return errors.New("no initialization path to watch")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range w.watchDirs() {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return err
		}
		w.log.Debug("watching directory", "dir", dir)
	}
	w.fsw = fsw
	return nil
}

// watchDirs returns the static base of each glob, plus every directory below
// it for recursive globs.
func (w *Watcher) watchDirs() []string {
	seen := make(map[string]bool)
	var dirs []string
	add := func(dir string) {
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	for _, p := range w.patterns {
		base := baseDir(p)
		add(base)
		if !strings.Contains(p, "**") {
			continue
		}
		_ = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err == nil && d.IsDir() {
				add(path)
			}
			return nil
		})
	}
	return dirs
}

func baseDir(pattern string) string {
	if !strings.ContainsAny(pattern, "*?[{") {
		return filepath.Dir(pattern)
	}
	base, _ := doublestar.SplitPattern(filepath.ToSlash(pattern))
	return filepath.FromSlash(base)
}

// Run reloads on file changes until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Watch(); err != nil {
		return err
	}
	defer func() { _ = w.fsw.Close() }()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			// Files may land in a new directory before it is watched, so a
			// new directory also triggers a reload.
			if event.Has(fsnotify.Create) && w.watchNewDir(event.Name) {
				timer.Reset(w.debounce)
				continue
			}
			if event.Has(fsnotify.Chmod) || !w.relevant(event.Name) {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("file watcher error", "error", err)
		case <-timer.C:
			w.Reload()
		}
	}
}

func (w *Watcher) watchNewDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	for _, p := range w.patterns {
		if strings.Contains(p, "**") && strings.HasPrefix(path, baseDir(p)) {
			if err := w.fsw.Add(path); err != nil {
				w.log.Warn("failed to watch directory", "dir", path, "error", err)
				return false
			}
			return true
		}
	}
	return false
}

func (w *Watcher) relevant(name string) bool {
	name = filepath.Clean(name)
	for _, p := range w.patterns {
		if p == name {
			return true
		}
		if ok, _ := doublestar.PathMatch(p, name); ok {
			return true
		}
	}
	return false
}

// Reload reads the initializer files and reconciles the store with them. A
// file that fails to parse leaves the store unchanged.
func (w *Watcher) Reload() {
	es, err := config.LoadExpectations(w.path)
	if err != nil {
		w.log.Warn("failed to reload initializer files", "path", w.path, "error", err)
		return
	}
	if err := w.store.Update(es, storage.CauseFileWatcher); err != nil {
		w.log.Warn("some initializer expectations were rejected", "path", w.path, "error", err)
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
	w.log.Info("initializer files reloaded", "path", w.path, "expectations", len(es))
}

// Reloads returns how many reloads have completed.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}
