// Package walker discovers candidate image files beneath a set of roots.
package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/gobwas/glob"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/decode"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/logging"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

var logger = logging.Get("walker")

// Options controls discovery.
type Options struct {
	// Exclude patterns are matched against the full path and the base name.
	// A matching directory is not descended into.
	Exclude []string

	// Include patterns, when present, restrict results to matching files.
	Include []string

	// Match decides whether a regular file is a candidate. Defaults to
	// decode.IsImage.
	Match func(path string) bool
}

// Walker lists image files. Create with New.
type Walker struct {
	exclude []glob.Glob
	include []glob.Glob
	match   func(string) bool
}

// New compiles the patterns in opts.
func New(opts Options) (*Walker, error) {
	exclude, err := compile("exclude", opts.Exclude)
	if err != nil {
		return nil, err
	}
	include, err := compile("include", opts.Include)
	if err != nil {
		return nil, err
	}

	match := opts.Match
	if match == nil {
		match = decode.IsImage
	}
	return &Walker{exclude: exclude, include: include, match: match}, nil
}

func compile(field string, patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, &types.ConfigurationError{Field: field, Value: p, Reason: err.Error()}
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// ListImageFiles walks dirs with the default options.
func ListImageFiles(ctx context.Context, dirs []string) ([]string, []types.ScanError, error) {
	w, err := New(Options{})
	if err != nil {
		return nil, nil, err
	}
	return w.List(ctx, dirs)
}

// List walks every root and returns absolute paths of candidate files,
// sorted and without duplicates. Symlinks are not followed. Unreadable
// entries are omitted and reported in the returned errors; an unusable root
// is reported the same way. The error is non-nil only on cancellation.
func (w *Walker) List(ctx context.Context, dirs []string) ([]string, []types.ScanError, error) {
	var (
		mu       sync.Mutex
		found    = make(map[string]struct{})
		scanErrs []types.ScanError
	)

	addErr := func(path string, err error) {
		mu.Lock()
		scanErrs = append(scanErrs, types.ScanError{Path: path, Error: err.Error()})
		mu.Unlock()
		logger.Debug("skipping unreadable path", "path", path, "error", err)
	}

	conf := fastwalk.Config{Follow: false}

	for _, dir := range dirs {
		root, err := resolveRoot(dir)
		if err != nil {
			addErr(dir, err)
			continue
		}

		err = fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return fastwalk.ErrSkipFiles
			}
			if err != nil {
				addErr(path, err)
				return nil
			}

			if path != root && w.excluded(path) {
				if d.IsDir() {
					return fastwalk.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			if !w.match(path) || !w.included(path) {
				return nil
			}

			mu.Lock()
			found[path] = struct{}{}
			mu.Unlock()
			return nil
		})
		if err != nil && !errors.Is(err, fastwalk.ErrSkipFiles) && !errors.Is(err, context.Canceled) {
			addErr(root, err)
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
	}

	paths := make([]string, 0, len(found))
	for p := range found {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	slices.SortFunc(scanErrs, func(a, b types.ScanError) int {
		switch {
		case a.Path < b.Path:
			return -1
		case a.Path > b.Path:
			return 1
		}
		return 0
	})

	logger.Info("discovery complete", "roots", len(dirs), "files", len(paths), "errors", len(scanErrs))
	return paths, scanErrs, nil
}

func resolveRoot(dir string) (string, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: %w", root, errNotDir)
	}
	return filepath.Clean(root), nil
}

var errNotDir = errors.New("not a directory")

func (w *Walker) excluded(path string) bool {
	return matchAny(w.exclude, path)
}

func (w *Walker) included(path string) bool {
	return len(w.include) == 0 || matchAny(w.include, path)
}

func matchAny(globs []glob.Glob, path string) bool {
	base := filepath.Base(path)
	slash := filepath.ToSlash(path)
	for _, g := range globs {
		if g.Match(base) || g.Match(slash) {
			return true
		}
	}
	return false
}
