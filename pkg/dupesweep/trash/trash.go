// Package trash moves files to the system trash. It never deletes files
// permanently: when no trash is usable it returns ErrNoTrash.
package trash

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/logging"
)

var logger = logging.Get("trash")

// commandTimeout is the maximum time to wait for trash commands.
const commandTimeout = 30 * time.Second

// ErrNoTrash is returned when no trash mechanism could take the file.
var ErrNoTrash = errors.New("no usable trash")

// Trasher moves a file somewhere it can be restored from.
type Trasher interface {
	Trash(ctx context.Context, path string) error
}

// System tries the platform's trash integration, then a FreeDesktop.org
// trash directory.
type System struct {
	goos     string
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error

	// Fallback is used when no platform tool succeeds. Nil disables it.
	Fallback Trasher
}

// NewSystem returns a trasher for the running platform.
func NewSystem() *System {
	var fallback Trasher
	if runtime.GOOS != "darwin" && runtime.GOOS != "windows" {
		fallback = NewFreeDesktop("")
	}
	return &System{
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
		run:      runCommand,
		Fallback: fallback,
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return exec.CommandContext(ctx, name, args...).Run()
}

// Trash implements Trasher.
func (s *System) Trash(ctx context.Context, path string) error {
	// Verify the path exists before attempting to trash it.
	if _, err := os.Lstat(path); err != nil {
		return fmt.Errorf("cannot trash %q: %w", path, err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("cannot resolve absolute path for %q: %w", path, err)
	}

	var attempts []error
	for _, cmd := range s.commands(absPath) {
		err := s.try(ctx, cmd[0], cmd[1:]...)
		if err == nil {
			return nil
		}
		attempts = append(attempts, err)
	}

	if s.Fallback != nil {
		err := s.Fallback.Trash(ctx, absPath)
		if err == nil {
			return nil
		}
		attempts = append(attempts, err)
	}

	logger.Warn("no trash available", "path", absPath, "attempts", len(attempts))
	return fmt.Errorf("trash %q: %w", absPath, errors.Join(append([]error{ErrNoTrash}, attempts...)...))
}

// commands lists the platform tools to try, in order.
func (s *System) commands(path string) [][]string {
	switch s.goos {
	case "darwin":
		// Finder integration keeps "Put Back" working.
		script := fmt.Sprintf(`tell application "Finder" to delete POSIX file %q`, path)
		return [][]string{{"osascript", "-e", script}}
	case "linux", "freebsd", "openbsd", "netbsd":
		return [][]string{{"gio", "trash", path}, {"trash-put", path}}
	}
	return nil
}

func (s *System) try(ctx context.Context, tool string, args ...string) error {
	bin, err := s.lookPath(tool)
	if err != nil {
		return fmt.Errorf("%s: %w", tool, err)
	}
	if err := s.run(ctx, bin, args...); err != nil {
		return fmt.Errorf("%s: %w", tool, err)
	}
	logger.Debug("trashed", "tool", tool, "path", args[len(args)-1])
	return nil
}
