package table

import (
	"fmt"
	"path/filepath"

	"github.com/mesh-intelligence/stagehand/pkg/types"
)

// Table is a validated, immutable dependency table.
type Table struct {
	packages []types.Package
	index    map[string]int
}

// New validates pkgs and returns a table whose recipes have defaults applied.
//
// Every package path must be unique and relative; every dependency must be
// owned by some package in the table.
func New(pkgs []types.Package, defaults types.Recipe) (*Table, error) {
	if len(pkgs) == 0 {
		return nil, types.ErrNoPackages
	}

	t := &Table{
		packages: make([]types.Package, 0, len(pkgs)),
		index:    make(map[string]int, len(pkgs)),
	}

	for _, p := range pkgs {
		if err := types.ValidateRelPath(p.Path); err != nil {
			return nil, fmt.Errorf("package %q: %w", p.Path, err)
		}
		if _, dup := t.index[p.Path]; dup {
			return nil, fmt.Errorf("%w: %s", types.ErrDuplicatePackage, p.Path)
		}

		p.Recipe = p.Recipe.WithDefaults(defaults)
		if err := p.Recipe.Validate(); err != nil {
			return nil, fmt.Errorf("package %s: %w", p.Path, err)
		}

		t.index[p.Path] = len(t.packages)
		t.packages = append(t.packages, p)
	}

	for _, p := range t.packages {
		for _, dep := range p.DependsOn {
			if err := types.ValidateRelPath(dep); err != nil {
				return nil, fmt.Errorf("package %s: dependency %q: %w", p.Path, dep, err)
			}
			if _, ok := t.Owner(dep); !ok {
				return nil, fmt.Errorf("package %s: %w: %s", p.Path, types.ErrUnknownDependency, dep)
			}
		}
	}

	return t, nil
}

// Packages returns the packages in declared order.
func (t *Table) Packages() []types.Package {
	return append([]types.Package(nil), t.packages...)
}

// Lookup returns the package with the given path.
func (t *Table) Lookup(path string) (types.Package, bool) {
	i, ok := t.index[path]
	if !ok {
		return types.Package{}, false
	}
	return t.packages[i], true
}

// Owner returns the package whose directory contains rel. When packages are
// nested the deepest one wins.
func (t *Table) Owner(rel string) (types.Package, bool) {
	best := -1
	for i, p := range t.packages {
		if !p.Contains(rel) {
			continue
		}
		if best < 0 || len(p.Path) > len(t.packages[best].Path) {
			best = i
		}
	}
	if best < 0 {
		return types.Package{}, false
	}
	return t.packages[best], true
}

// SearchPath returns the search-path configuration for the package at path:
// its dependency entries in declared order, as absolute paths under
// workspace, with repeated entries dropped. A package that is not in the
// table, or lists no dependencies, resolves to an empty configuration.
func (t *Table) SearchPath(path, workspace string) []string {
	p, ok := t.Lookup(path)
	if !ok || len(p.DependsOn) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(p.DependsOn))
	out := make([]string, 0, len(p.DependsOn))
	for _, dep := range p.DependsOn {
		abs := filepath.Join(workspace, filepath.FromSlash(dep))
		if seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, abs)
	}
	return out
}
