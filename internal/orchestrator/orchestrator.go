package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/mesh-intelligence/stagehand/internal/collect"
	"github.com/mesh-intelligence/stagehand/internal/driver"
	"github.com/mesh-intelligence/stagehand/internal/report"
	"github.com/mesh-intelligence/stagehand/internal/table"
	"github.com/mesh-intelligence/stagehand/internal/workspace"
	"github.com/mesh-intelligence/stagehand/pkg/types"
)

// Recorder stores run history. *ledger.Ledger implements it.
type Recorder interface {
	BeginRun(workspace, outputDir string, source digest.Digest) (types.Run, error)
	RecordSource(id string, source digest.Digest) error
	RecordPackage(id string, res types.PackageResult) error
	RecordArtifacts(id string, artifacts []types.Artifact) error
	FinishRun(id, status string, runErr error) error
}

var errNoInvoker = errors.New("orchestrator: no invoker")

// Options configures an Orchestrator beyond its Config.
type Options struct {
	Invoker     driver.Invoker // Runs codegen and build procedures.
	Out         io.Writer      // Receives the artifact report; io.Discard if nil.
	Recorder    Recorder       // Optional run history.
	SkipCodegen bool
}

// Orchestrator drives runs for one configuration.
type Orchestrator struct {
	cfg      types.Config
	table    *table.Table
	order    []types.Package
	opts     Options
	reporter *report.Reporter
	now      func() time.Time
}

// New validates cfg, builds its dependency table and computes the build
// order. Errors here are configuration errors and wrap none of the run error
// classes.
func New(cfg types.Config, opts Options) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Invoker == nil {
		return nil, errNoInvoker
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}

	t, err := table.New(cfg.Packages, cfg.Defaults)
	if err != nil {
		return nil, err
	}
	order, err := t.Order(cfg.Order)
	if err != nil {
		return nil, err
	}
	if cfg.Order == types.OrderDeclared {
		for _, v := range t.Violations() {
			slog.Warn("declared order violates dependency", "package", v.Package, "dependency", v.Dependency)
		}
	}

	return &Orchestrator{
		cfg:      cfg,
		table:    t,
		order:    order,
		opts:     opts,
		reporter: report.New(),
		now:      time.Now,
	}, nil
}

// Table returns the validated dependency table.
func (o *Orchestrator) Table() *table.Table {
	return o.table
}

// Order returns the build order.
func (o *Orchestrator) Order() []types.Package {
	return append([]types.Package(nil), o.order...)
}

// Run performs one build. It returns a summary even when the run fails; the
// summary then holds the results gathered up to the failure.
func (o *Orchestrator) Run(ctx context.Context) (*types.RunSummary, error) {
	cfg := o.cfg
	sum := &types.RunSummary{
		Run: types.Run{
			StartedAt: o.now(),
			Status:    types.RunRunning,
			Workspace: cfg.Workspace,
			OutputDir: cfg.OutputDir,
		},
	}
	for _, p := range o.order {
		sum.Order = append(sum.Order, p.Path)
	}

	rec := o.opts.Recorder
	finish := func(err error) (*types.RunSummary, error) {
		sum.Run.FinishedAt = o.now()
		sum.Run.Status = types.RunSucceeded
		if err != nil {
			sum.Run.Status = types.RunFailed
			sum.Run.Error = err.Error()
		}
		if rec != nil && sum.Run.ID != "" {
			if lerr := rec.FinishRun(sum.Run.ID, sum.Run.Status, err); lerr != nil {
				slog.Warn("ledger: cannot finish run", "run", sum.Run.ID, "error", lerr)
			}
		}
		return sum, err
	}

	if rec != nil {
		run, err := rec.BeginRun(cfg.Workspace, cfg.OutputDir, "")
		if err != nil {
			slog.Warn("ledger: cannot record run", "error", err)
			rec = nil
		} else {
			sum.Run.ID = run.ID
			sum.Run.StartedAt = run.StartedAt
		}
	}

	if err := o.codegen(ctx); err != nil {
		return finish(err)
	}

	if _, err := collect.Clear(cfg.OutputDir, cfg.ArtifactPattern); err != nil {
		return finish(err)
	}

	excludes := o.excludes()
	srcDigest, err := o.stage(ctx, excludes)
	if err != nil {
		return finish(err)
	}
	sum.Run.SourceDigest = srcDigest

	if rec != nil && srcDigest != "" {
		if err := rec.RecordSource(sum.Run.ID, srcDigest); err != nil {
			slog.Warn("ledger: cannot record source digest", "run", sum.Run.ID, "error", err)
		}
	}

	d := driver.New(o.table, o.opts.Invoker, driver.Options{
		Pattern:       cfg.ArtifactPattern,
		SearchPathVar: cfg.SearchPathVar,
		Env:           cfg.Env,
	})
	if rec != nil {
		id := sum.Run.ID
		d.OnResult = func(res types.PackageResult) {
			if err := rec.RecordPackage(id, res); err != nil {
				slog.Warn("ledger: cannot record package", "package", res.Package, "error", err)
			}
		}
	}

	results, err := d.Run(ctx, cfg.Workspace, o.order)
	sum.Packages = results
	if err != nil {
		return finish(err)
	}

	artifacts, err := collect.Collect(cfg.Workspace, cfg.OutputDir, cfg.ArtifactPattern, o.order)
	if err != nil {
		return finish(err)
	}
	sum.Artifacts = artifacts

	_, sum.ReportFailures = o.reporter.Report(o.opts.Out, cfg.OutputDir, cfg.ArtifactPattern)

	if rec != nil {
		if err := rec.RecordArtifacts(sum.Run.ID, artifacts); err != nil {
			slog.Warn("ledger: cannot record artifacts", "run", sum.Run.ID, "error", err)
		}
	}
	return finish(nil)
}

// codegen runs the configured code generation command in the source root.
func (o *Orchestrator) codegen(ctx context.Context) error {
	if len(o.cfg.Codegen) == 0 {
		return nil
	}
	if o.opts.SkipCodegen {
		slog.Info("skipping code generation")
		return nil
	}

	slog.Info("running code generation", "command", strings.Join(o.cfg.Codegen, " "))
	err := o.opts.Invoker.Invoke(ctx, driver.Invocation{
		Step: "codegen",
		Dir:  o.cfg.SourceRoot,
		Args: o.cfg.Codegen,
		Env:  o.cfg.Env,
	})
	if err != nil {
		return fmt.Errorf("%w: %w: %v", types.ErrSetup, types.ErrCodegen, err)
	}
	return nil
}

// excludes returns the configured stage excludes, every file matching the
// artifact pattern and the output directory when it lies inside the source
// tree. Artifacts left in the source are never staged.
func (o *Orchestrator) excludes() []string {
	ex := append([]string(nil), o.cfg.Exclude...)
	ex = append(ex, artifactExclude(o.cfg.ArtifactPattern))
	rel, err := filepath.Rel(o.cfg.SourceRoot, o.cfg.OutputDir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ex
	}
	rel = filepath.ToSlash(rel)
	return append(ex, rel, rel+"/**")
}

// artifactExclude turns an artifact pattern, matched inside each package
// directory, into one matched from the source root.
func artifactExclude(pattern string) string {
	if strings.HasPrefix(pattern, "**/") {
		return pattern
	}
	return "**/" + pattern
}

// stage copies the source tree into the workspace. With VerifyStage set it
// compares tree digests of both sides afterwards. It returns the source
// digest when one was computed.
func (o *Orchestrator) stage(ctx context.Context, excludes []string) (digest.Digest, error) {
	cfg := o.cfg

	var src digest.Digest
	if cfg.VerifyStage {
		var err error
		if src, err = workspace.TreeDigest(cfg.SourceRoot, excludes); err != nil {
			return "", fmt.Errorf("%w: %v", types.ErrSetup, err)
		}
	}

	if err := workspace.Stage(ctx, cfg.SourceRoot, cfg.Workspace, workspace.Options{Excludes: excludes}); err != nil {
		return "", err
	}

	if cfg.VerifyStage {
		staged, err := workspace.TreeDigest(cfg.Workspace, excludes)
		if err != nil {
			return "", fmt.Errorf("%w: %v", types.ErrSetup, err)
		}
		if staged != src {
			return "", fmt.Errorf("%w: %w: source %s, workspace %s", types.ErrSetup, types.ErrStageMismatch, src, staged)
		}
		slog.Debug("workspace verified", "digest", src)
	}
	return src, nil
}
