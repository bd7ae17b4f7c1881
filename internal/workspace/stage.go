package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/magefile/mage/sh"

	"github.com/mesh-intelligence/stagehand/pkg/types"
)

// Options controls what Stage copies.
type Options struct {
	// Excludes are doublestar patterns, relative to the source root and
	// slash-separated. A matching directory is skipped with its contents.
	Excludes []string
}

// Stage replaces dst with a recursive copy of src.
//
// dst is removed first if it exists. src and dst must not overlap. On failure
// the partially written dst is removed and the error wraps types.ErrSetup.
func Stage(ctx context.Context, src, dst string, opts Options) error {
	src, err := filepath.Abs(src)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrSetup, err)
	}
	dst, err = filepath.Abs(dst)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrSetup, err)
	}

	if overlaps(src, dst) {
		return fmt.Errorf("%w: %w: %s and %s", types.ErrSetup, types.ErrWorkspaceInsideSource, src, dst)
	}

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%w: source: %v", types.ErrSetup, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: source %s is not a directory", types.ErrSetup, src)
	}

	slog.Info("staging workspace", "source", src, "workspace", dst)

	if err := sh.Rm(dst); err != nil {
		return fmt.Errorf("%w: remove stale workspace: %v", types.ErrSetup, err)
	}

	c := &copier{src: src, dst: dst, excludes: opts.Excludes}
	if err := c.copyTree(ctx); err != nil {
		_ = os.RemoveAll(dst)
		return fmt.Errorf("%w: stage %s: %w", types.ErrSetup, src, err)
	}

	slog.Debug("workspace staged", "files", c.files, "links", c.links, "dirs", len(c.dirs))
	return nil
}

// overlaps reports whether a and b are the same path or one contains the other.
func overlaps(a, b string) bool {
	return within(a, b) || within(b, a)
}

// within reports whether child is parent or lies beneath it.
func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// excluded reports whether the slash-separated relative path matches one of
// the patterns.
func excluded(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

type dirMode struct {
	path string
	mode fs.FileMode
}

// copier holds the state of one tree copy.
type copier struct {
	src      string
	dst      string
	excludes []string

	dirs  []dirMode // Directory modes, applied after their contents are written.
	files int
	links int
}

func (c *copier) copyTree(ctx context.Context) error {
	err := filepath.WalkDir(c.src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(c.src, path)
		if err != nil {
			return err
		}
		if rel != "." && excluded(c.excludes, filepath.ToSlash(rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		return c.copyEntry(path, filepath.Join(c.dst, rel), d)
	})
	if err != nil {
		return err
	}

	// Deepest first so a read-only parent does not block its children.
	slices.Reverse(c.dirs)
	for _, d := range c.dirs {
		if err := os.Chmod(d.path, d.mode); err != nil {
			return err
		}
	}
	return nil
}

func (c *copier) copyEntry(path, target string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	switch mode := info.Mode(); {
	case mode.IsDir():
		if err := os.MkdirAll(target, 0o755); err != nil {
			return err
		}
		c.dirs = append(c.dirs, dirMode{path: target, mode: mode.Perm()})
		return nil

	case mode&fs.ModeSymlink != 0:
		link, err := os.Readlink(path)
		if err != nil {
			return err
		}
		c.links++
		return os.Symlink(link, target)

	case mode.IsRegular():
		c.files++
		return copyFile(path, target, mode.Perm())

	default:
		slog.Debug("skipping special file", "path", path, "mode", mode)
		return nil
	}
}

// copyFile copies a regular file, creating target with perm.
func copyFile(path, target string, perm fs.FileMode) (err error) {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}

	// The umask may have stripped bits at create time.
	if err := out.Chmod(perm); err != nil && !errors.Is(err, errors.ErrUnsupported) {
		return err
	}
	return nil
}
