// Package watcher watches scan roots for image changes and batches them so
// a caller can rescan once a burst of activity settles.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/logging"
)

var logger = logging.Get("watcher")

// DefaultDebounce is the quiet period before a batch of changes is delivered.
const DefaultDebounce = 2 * time.Second

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period before changes are delivered.
	Debounce time.Duration

	// Match filters file events. Nil accepts every file.
	Match func(path string) bool
}

// Watcher recursively watches directories. Symlinks are not followed.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	match    func(string) bool

	mu      sync.RWMutex
	paths   map[string]bool
	pending map[string]bool
	closed  bool
}

// New creates a new Watcher.
func New(opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Watcher{
		watcher:  fsw,
		debounce: opts.Debounce,
		match:    opts.Match,
		paths:    make(map[string]bool),
		pending:  make(map[string]bool),
	}, nil
}

// Watch adds root and every directory below it.
func (w *Watcher) Watch(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	info, err := os.Lstat(absRoot)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}
	return w.addTree(absRoot)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // unreadable entries are not watched
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() {
			return w.addWatch(path)
		}
		return nil
	})
}

func (w *Watcher) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.paths[path] {
		return nil
	}
	if err := w.watcher.Add(path); err != nil {
		logger.Warn("failed to add watch", "path", path, "error", err)
		return err
	}
	w.paths[path] = true
	return nil
}

// Watched returns the number of watched directories.
func (w *Watcher) Watched() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.paths)
}

// Run delivers batches of changed file paths to onChange until ctx is done.
// A batch is delivered once no event has arrived for the debounce period.
// onChange runs on the Run goroutine, so events that arrive while it runs
// are collected into the next batch.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, changed []string)) {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.handleEvent(event) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("watcher error", "error", err)

		case <-timer.C:
			if changed := w.drain(); len(changed) > 0 {
				logger.Debug("changes settled", "files", len(changed))
				onChange(ctx, changed)
			}
		}
	}
}

// handleEvent records an event and reports whether it is relevant.
func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	path := event.Name

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		removedDir := w.removeTree(path)
		if removedDir {
			w.markPending(path)
			return true
		}
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Lstat(path); err == nil && info.IsDir() {
			_ = w.addTree(path)
			w.markPending(path)
			return true
		}
	}

	if event.Op == fsnotify.Chmod {
		return false
	}
	if w.match != nil && !w.match(path) {
		return false
	}
	w.markPending(path)
	return true
}

// removeTree drops watches at and below path and reports whether path was
// a watched directory.
func (w *Watcher) removeTree(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	was := w.paths[path]
	for p := range w.paths {
		if p == path || isSubPath(p, path) {
			_ = w.watcher.Remove(p)
			delete(w.paths, p)
		}
	}
	return was
}

func (w *Watcher) markPending(path string) {
	w.mu.Lock()
	w.pending[path] = true
	w.mu.Unlock()
}

func (w *Watcher) drain() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, 0, len(w.pending))
	for p := range w.pending {
		out = append(out, p)
	}
	w.pending = make(map[string]bool)
	sort.Strings(out)
	return out
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.paths = make(map[string]bool)
	return w.watcher.Close()
}

// isSubPath checks if path is under parent directory.
func isSubPath(path, parent string) bool {
	return len(path) > len(parent) && path[:len(parent)+1] == parent+string(filepath.Separator)
}
