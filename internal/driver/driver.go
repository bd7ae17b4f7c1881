package driver

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/magefile/mage/sh"

	"github.com/mesh-intelligence/stagehand/internal/collect"
	"github.com/mesh-intelligence/stagehand/internal/table"
	"github.com/mesh-intelligence/stagehand/pkg/types"
)

// Options configures a Driver.
type Options struct {
	Pattern       string            // Artifact pattern, matched inside each package directory.
	SearchPathVar string            // Variable carrying the search path.
	Env           map[string]string // Variables for every invocation; step env overrides them.
}

// Driver builds packages one after another.
type Driver struct {
	table   *table.Table
	invoker Invoker
	opts    Options
	now     func() time.Time

	// OnResult, if set, is called with each package's final result.
	OnResult func(types.PackageResult)
}

// New returns a Driver resolving search paths from t and running procedures
// through inv.
func New(t *table.Table, inv Invoker, opts Options) *Driver {
	return &Driver{
		table:   t,
		invoker: inv,
		opts:    opts,
		now:     time.Now,
	}
}

// Run builds order in sequence inside workspace. It stops at the first
// failing package and returns the results gathered so far together with that
// package's *types.BuildError.
func (d *Driver) Run(ctx context.Context, workspace string, order []types.Package) ([]types.PackageResult, error) {
	results := make([]types.PackageResult, 0, len(order))
	for i, p := range order {
		slog.Info(fmt.Sprintf("building package %d/%d", i+1, len(order)), "package", p.Path)

		res := d.build(ctx, workspace, p)
		results = append(results, res)
		if d.OnResult != nil {
			d.OnResult(res)
		}

		if res.Err != nil {
			slog.Error("package failed", "package", p.Path, "error", res.Err)
			return results, res.Err
		}
		slog.Info("package built", "package", p.Path, "artifacts", len(res.Artifacts),
			"duration", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	}
	return results, nil
}

// step is one labelled invocation of a recipe.
type step struct {
	label string
	types.Step
}

// plan expands a recipe into the invocations it runs, in order.
func plan(r types.Recipe) []step {
	var steps []step
	for i, s := range r.Pre {
		steps = append(steps, step{label: fmt.Sprintf("pre[%d]", i), Step: s})
	}
	for i := range r.Repeat {
		label := "build"
		if r.Repeat > 1 {
			label = fmt.Sprintf("build#%d", i+1)
		}
		steps = append(steps, step{label: label, Step: r.Build})
	}
	for i, s := range r.Post {
		steps = append(steps, step{label: fmt.Sprintf("post[%d]", i), Step: s})
	}
	return steps
}

// build runs one package through pending, staged and building to a terminal
// state.
func (d *Driver) build(ctx context.Context, workspace string, p types.Package) types.PackageResult {
	res := types.PackageResult{
		Package:   p.Path,
		State:     types.StatePending,
		StartedAt: d.now(),
	}

	fail := func(label string, code int, err error) types.PackageResult {
		res.State = types.StateFailed
		res.ExitCode = code
		res.Err = &types.BuildError{Package: p.Path, Step: label, ExitCode: code, Err: err}
		res.FinishedAt = d.now()
		return res
	}
	advance := func(to types.PackageState) error {
		next, err := res.State.Transition(to)
		res.State = next
		return err
	}

	dir := filepath.Join(workspace, filepath.FromSlash(p.Path))
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fail("stage", 0, fmt.Errorf("%w: %s", types.ErrPackageMissing, dir))
	}
	if err := advance(types.StateStaged); err != nil {
		return fail("stage", 0, err)
	}

	res.SearchPath = d.table.SearchPath(p.Path, workspace)
	if err := advance(types.StateBuilding); err != nil {
		return fail("build", 0, err)
	}

	for _, rel := range p.Clean {
		target := filepath.Join(dir, filepath.FromSlash(rel))
		slog.Debug("clean", "package", p.Path, "path", target)
		if err := sh.Rm(target); err != nil {
			return fail("clean", 0, err)
		}
	}

	before, err := d.snapshot(dir)
	if err != nil {
		return fail("artifacts", 0, err)
	}

	for _, s := range plan(p.Recipe) {
		env := make(map[string]string, len(d.opts.Env)+len(s.Env))
		maps.Copy(env, d.opts.Env)
		maps.Copy(env, s.Env)

		inv := Invocation{
			Package:       p.Path,
			Step:          s.label,
			Dir:           dir,
			Args:          s.Command,
			Env:           env,
			SearchPathVar: d.opts.SearchPathVar,
			SearchPath:    res.SearchPath,
		}
		slog.Debug("run", "package", p.Path, "step", s.label, "command", s.String(), "search_path", res.SearchPath)
		if err := d.invoker.Invoke(ctx, inv); err != nil {
			return fail(s.label, sh.ExitStatus(err), err)
		}
	}

	found, err := d.produced(dir, before)
	if err != nil {
		return fail("artifacts", 0, err)
	}
	res.Artifacts = found
	if len(found) == 0 && p.Artifacts == types.ArtifactsRequired {
		return fail("artifacts", 0, fmt.Errorf("%w matching %s", types.ErrNoArtifacts, d.opts.Pattern))
	}

	if err := advance(types.StateSucceeded); err != nil {
		return fail("build", 0, err)
	}
	res.FinishedAt = d.now()
	return res
}

// stamp identifies one version of a file.
type stamp struct {
	size int64
	mod  time.Time
}

// snapshot records the artifacts present in dir before any step runs.
func (d *Driver) snapshot(dir string) (map[string]stamp, error) {
	found, err := collect.Find(dir, d.opts.Pattern)
	if err != nil {
		return nil, err
	}
	out := make(map[string]stamp, len(found))
	for _, f := range found {
		info, err := os.Stat(f)
		if err != nil {
			return nil, err
		}
		out[f] = stamp{size: info.Size(), mod: info.ModTime()}
	}
	return out, nil
}

// produced returns the artifacts in dir that are new or rewritten since
// before was taken. Files left untouched by the steps are not counted.
func (d *Driver) produced(dir string, before map[string]stamp) ([]string, error) {
	found, err := collect.Find(dir, d.opts.Pattern)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, f := range found {
		old, ok := before[f]
		if ok {
			info, err := os.Stat(f)
			if err != nil {
				return nil, err
			}
			if info.Size() == old.size && info.ModTime().Equal(old.mod) {
				slog.Debug("ignoring artifact older than the build", "path", f)
				continue
			}
		}
		out = append(out, f)
	}
	return out, nil
}
