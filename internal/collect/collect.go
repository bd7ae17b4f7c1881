package collect

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/magefile/mage/sh"

	"github.com/mesh-intelligence/stagehand/internal/workspace"
	"github.com/mesh-intelligence/stagehand/pkg/types"
)

// Find returns the absolute paths of the regular files under root whose
// slash-separated relative path matches pattern, sorted.
func Find(root, pattern string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s in %s: %w", pattern, root, err)
	}

	var out []string
	for _, m := range matches {
		abs := filepath.Join(root, filepath.FromSlash(m))
		info, err := os.Lstat(abs)
		if err != nil {
			return nil, err
		}
		if info.Mode().IsRegular() {
			out = append(out, abs)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Clear creates outputDir if needed and removes every file in it whose name
// matches the last element of pattern. It returns the number of files removed.
func Clear(outputDir, pattern string) (int, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrSetup, err)
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrSetup, err)
	}

	base := path.Base(pattern)
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() && e.Type()&fs.ModeSymlink == 0 {
			continue
		}
		if ok, _ := doublestar.Match(base, e.Name()); !ok {
			continue
		}
		if err := os.Remove(filepath.Join(outputDir, e.Name())); err != nil {
			return removed, fmt.Errorf("%w: %v", types.ErrSetup, err)
		}
		removed++
	}

	slog.Debug("cleared output directory", "dir", outputDir, "removed", removed)
	return removed, nil
}

// found is an artifact located in the workspace before copying.
type found struct {
	src   string
	rel   string
	owner int // Index into the build order; len(order) when unowned.
}

// Collect copies every artifact under ws matching pattern into outputDir and
// returns the collected set, one entry per output file name.
//
// Files are copied grouped by owning package in build order, then files
// outside every package, each group sorted by path. Files already inside
// outputDir are ignored.
func Collect(ws, outputDir, pattern string, order []types.Package) ([]types.Artifact, error) {
	paths, err := Find(ws, pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCollect, err)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCollect, err)
	}
	outAbs, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCollect, err)
	}

	items := make([]found, 0, len(paths))
	for _, p := range paths {
		if filepath.Dir(p) == outAbs {
			continue
		}
		rel, err := filepath.Rel(ws, p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrCollect, err)
		}
		rel = filepath.ToSlash(rel)
		items = append(items, found{src: p, rel: rel, owner: ownerIndex(order, rel)})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].owner != items[j].owner {
			return items[i].owner < items[j].owner
		}
		return items[i].rel < items[j].rel
	})

	var artifacts []types.Artifact
	byName := make(map[string]int)
	for _, it := range items {
		name := filepath.Base(it.src)
		dst := filepath.Join(outAbs, name)

		if err := sh.Copy(dst, it.src); err != nil {
			return nil, fmt.Errorf("%w: copy %s: %v", types.ErrCollect, it.rel, err)
		}

		a, err := describe(name, it.src, dst)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrCollect, err)
		}
		if it.owner < len(order) {
			a.Package = order[it.owner].Path
		}

		if i, dup := byName[name]; dup {
			slog.Debug("artifact overwritten", "name", name, "previous", artifacts[i].Source, "source", it.src)
			artifacts = slices.Delete(artifacts, i, i+1)
			for n, j := range byName {
				if j > i {
					byName[n] = j - 1
				}
			}
		}
		byName[name] = len(artifacts)
		artifacts = append(artifacts, a)
	}

	slog.Info("collected artifacts", "count", len(artifacts), "output", outAbs)
	return artifacts, nil
}

// ownerIndex returns the index of the deepest package in order containing
// rel, or len(order) if none does.
func ownerIndex(order []types.Package, rel string) int {
	best := len(order)
	for i, p := range order {
		if !p.Contains(rel) {
			continue
		}
		if best == len(order) || len(p.Path) > len(order[best].Path) {
			best = i
		}
	}
	return best
}

// describe builds the artifact record for a copied file.
func describe(name, src, dst string) (types.Artifact, error) {
	info, err := os.Stat(dst)
	if err != nil {
		return types.Artifact{}, err
	}
	dgst, err := workspace.FileDigest(dst)
	if err != nil {
		return types.Artifact{}, err
	}
	return types.Artifact{
		Name:   name,
		Source: src,
		Path:   dst,
		Size:   info.Size(),
		Digest: dgst,
	}, nil
}

// List returns the artifacts already in outputDir whose names match the last
// element of pattern, sorted by name.
func List(outputDir, pattern string) ([]types.Artifact, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, err
	}

	base := path.Base(pattern)
	var artifacts []types.Artifact
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if ok, _ := doublestar.Match(base, e.Name()); !ok {
			continue
		}
		p := filepath.Join(outputDir, e.Name())
		a, err := describe(e.Name(), "", p)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}
