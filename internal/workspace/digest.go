package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
)

// TreeDigest returns a digest over the structure and content of the tree at
// root: every entry's relative path, type and permission bits, file contents
// and symlink targets. Entries matching excludes are left out. Two trees with
// the same digest are identical for staging purposes; the root's own mode is
// not included.
func TreeDigest(root string, excludes []string) (digest.Digest, error) {
	digester := digest.Canonical.Digester()
	h := digester.Hash()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if excluded(excludes, rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		mode := info.Mode()

		var content string
		switch {
		case mode.IsRegular():
			dgst, err := FileDigest(path)
			if err != nil {
				return err
			}
			content = dgst.String()
		case mode&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			content = "-> " + link
		default:
			content = "-"
		}

		_, err = fmt.Fprintf(h, "%s\x00%o\x00%s\n", rel, mode&(fs.ModeType|fs.ModePerm), content)
		return err
	})
	if err != nil {
		return "", err
	}

	return digester.Digest(), nil
}

// FileDigest returns the canonical content digest of the file at path.
func FileDigest(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return digest.Canonical.FromReader(f)
}
