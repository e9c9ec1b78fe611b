// Package watcher keeps the scheme service in step with a directory of
// scheme files.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"labelcomposer/internal/domain"
	"labelcomposer/internal/loader"
	"labelcomposer/internal/metrics"
	"labelcomposer/internal/service"
)

// Target receives reloaded schemes. *service.SchemeService satisfies it.
type Target interface {
	PutScheme(ctx context.Context, scheme *domain.Scheme, source string) (*service.ImportResult, error)
	RemoveSource(ctx context.Context, source string) ([]string, error)
}

// Watcher watches a directory tree for scheme file changes
type Watcher struct {
	dir      string
	pattern  string
	target   Target
	debounce time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu sync.Mutex
}

// New creates a new directory watcher
func New(dir, pattern string, target Target) *Watcher {
	if pattern == "" {
		pattern = loader.DefaultPattern
	}
	return &Watcher{
		dir:      filepath.Clean(dir),
		pattern:  pattern,
		target:   target,
		debounce: 500 * time.Millisecond,
		logger:   slog.Default(),
	}
}

// WithDebounce sets the debounce duration
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// WithLogger sets the logger
func (w *Watcher) WithLogger(logger *slog.Logger) *Watcher {
	w.logger = logger
	return w
}

// WithMetrics records reload outcomes in m
func (w *Watcher) WithMetrics(m *metrics.Metrics) *Watcher {
	w.metrics = m
	return w
}

// Sync loads every matching file once. Files that fail to load or store are
// reported in the joined error.
func (w *Watcher) Sync(ctx context.Context) error {
	loaded, err := loader.LoadDir(w.dir, w.pattern)
	errs := []error{err}
	for _, l := range loaded {
		if _, err := w.target.PutScheme(ctx, l.Scheme, l.Path); err != nil {
			errs = append(errs, err)
			w.count("error")
			continue
		}
		w.count("ok")
	}
	w.logger.Info("scheme directory synced", "dir", w.dir, "schemes", len(loaded))
	return errors.Join(errs...)
}

// Watch starts watching the directory tree.
// It blocks until the context is cancelled or an error occurs.
func (w *Watcher) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if _, err := w.addTree(fsw, w.dir); err != nil {
		return err
	}
	w.logger.Info("watching scheme directory", "dir", w.dir, "pattern", w.pattern)

	pending := newDebouncer(w.debounce)
	defer pending.stop()

	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			path := filepath.Clean(event.Name)

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(path); err == nil && info.IsDir() {
					files, err := w.addTree(fsw, path)
					if err != nil {
						w.logger.Warn("failed to watch directory", "dir", path, "error", err)
					}
					for _, f := range files {
						pending.schedule(ctx, f)
					}
					continue
				}
			}

			if !loader.Matches(w.dir, w.pattern, path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				pending.schedule(ctx, path)
			}

		case path := <-pending.fired:
			pending.done(path)
			w.apply(ctx, path)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)

		case <-ctx.Done():
			return nil
		}
	}
}

// addTree watches root and every directory below it and returns the
// matching files already present
func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		if loader.Matches(w.dir, w.pattern, path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// apply reloads path, or removes the schemes it provided when it is gone
func (w *Watcher) apply(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	scheme, err := loader.LoadFile(path)
	if loader.IsNotExist(err) {
		removed, err := w.target.RemoveSource(ctx, path)
		if err != nil {
			w.logger.Error("failed to remove schemes", "path", path, "error", err)
			w.count("error")
			return
		}
		if len(removed) > 0 {
			w.logger.Info("scheme file removed", "path", path, "schemes", removed)
			w.count("removed")
		}
		return
	}
	if err != nil {
		w.logger.Error("failed to load scheme file", "path", path, "error", err)
		w.count("error")
		return
	}

	result, err := w.target.PutScheme(ctx, scheme, path)
	if err != nil {
		w.logger.Error("failed to store scheme", "path", path, "scheme", scheme.Name, "error", err)
		w.count("error")
		return
	}
	w.logger.Info("scheme file reloaded", "path", path, "scheme", result.Scheme, "created", result.Created)
	w.count("ok")
}

func (w *Watcher) count(result string) {
	if w.metrics != nil {
		w.metrics.WatcherReloads.WithLabelValues(result).Inc()
	}
}
