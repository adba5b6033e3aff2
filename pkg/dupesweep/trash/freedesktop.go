package trash

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/adrg/xdg"
)

// FreeDesktop implements the FreeDesktop.org home trash: files go to
// <dir>/files and a matching .trashinfo is written to <dir>/info.
type FreeDesktop struct {
	Dir string
	now func() time.Time
}

// NewFreeDesktop returns a trash rooted at dir, or $XDG_DATA_HOME/Trash
// when dir is empty.
func NewFreeDesktop(dir string) *FreeDesktop {
	if dir == "" {
		dir = filepath.Join(xdg.DataHome, "Trash")
	}
	return &FreeDesktop{Dir: dir, now: time.Now}
}

// Trash implements Trasher. Files on another filesystem than the trash
// directory are refused rather than copied.
func (f *FreeDesktop) Trash(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	filesDir := filepath.Join(f.Dir, "files")
	infoDir := filepath.Join(f.Dir, "info")
	for _, d := range []string{filesDir, infoDir} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return fmt.Errorf("%w: %v", ErrNoTrash, err)
		}
	}

	name, infoFile, err := f.reserve(infoDir, filepath.Base(absPath), absPath)
	if err != nil {
		return err
	}

	if err := os.Rename(absPath, filepath.Join(filesDir, name)); err != nil {
		_ = os.Remove(infoFile)
		if errors.Is(err, syscall.EXDEV) {
			return fmt.Errorf("%w: %s is on a different filesystem than %s", ErrNoTrash, absPath, f.Dir)
		}
		return fmt.Errorf("moving %q to trash: %w", absPath, err)
	}
	logger.Debug("trashed", "path", absPath, "trash", f.Dir, "name", name)
	return nil
}

// reserve claims a unique name by creating its .trashinfo exclusively.
func (f *FreeDesktop) reserve(infoDir, base, original string) (string, string, error) {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	content := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
		escapePath(original), f.now().Format("2006-01-02T15:04:05"))

	for i := 0; i < 1000; i++ {
		name := base
		if i > 0 {
			name = stem + "." + strconv.Itoa(i) + ext
		}
		infoFile := filepath.Join(infoDir, name+".trashinfo")
		fh, err := os.OpenFile(infoFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrNoTrash, err)
		}
		_, werr := fh.WriteString(content)
		cerr := fh.Close()
		if err := errors.Join(werr, cerr); err != nil {
			_ = os.Remove(infoFile)
			return "", "", fmt.Errorf("%w: %v", ErrNoTrash, err)
		}
		return name, infoFile, nil
	}
	return "", "", fmt.Errorf("%w: too many trashed files named %q", ErrNoTrash, base)
}

// escapePath percent-encodes each path segment as the trash spec requires.
func escapePath(p string) string {
	parts := strings.Split(filepath.ToSlash(p), "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}
