package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/stagehand/internal/driver"
	"github.com/mesh-intelligence/stagehand/internal/ledger"
	"github.com/mesh-intelligence/stagehand/pkg/types"
)

const builtMarker = ".built"

// fakeBuilder simulates package builds. A build fails unless every
// directory on its search path holds a marker left by an earlier build; on
// success it writes the marker and <package>.deb into its directory, unless
// the package is silent.
type fakeBuilder struct {
	calls   []driver.Invocation
	fail    map[string]bool
	silent  map[string]bool
	codegen error
}

func (f *fakeBuilder) Invoke(_ context.Context, inv driver.Invocation) error {
	f.calls = append(f.calls, inv)
	if inv.Step == "codegen" {
		return f.codegen
	}
	if f.fail[inv.Package] {
		return errors.New("exit status 1")
	}
	for _, dir := range inv.SearchPath {
		if _, err := os.Stat(filepath.Join(dir, builtMarker)); err != nil {
			return fmt.Errorf("import error: %s not built", dir)
		}
	}
	if err := os.WriteFile(filepath.Join(inv.Dir, builtMarker), nil, 0o644); err != nil {
		return err
	}
	if f.silent[inv.Package] {
		return nil
	}
	name := filepath.Base(inv.Package) + ".deb"
	return os.WriteFile(filepath.Join(inv.Dir, "deb_dist", name), []byte("deb "+inv.Package), 0o644)
}

func (f *fakeBuilder) built() []string {
	var out []string
	for _, c := range f.calls {
		if c.Step != "codegen" {
			out = append(out, c.Package)
		}
	}
	return out
}

// fakeRecorder keeps run history in memory.
type fakeRecorder struct {
	begun     int
	source    digest.Digest
	packages  []string
	artifacts []types.Artifact
	status    string
	failBegin bool
}

func (r *fakeRecorder) BeginRun(ws, out string, src digest.Digest) (types.Run, error) {
	if r.failBegin {
		return types.Run{}, errors.New("disk full")
	}
	r.begun++
	return types.Run{ID: "run-1", Workspace: ws, OutputDir: out, SourceDigest: src}, nil
}

func (r *fakeRecorder) RecordSource(_ string, src digest.Digest) error {
	r.source = src
	return nil
}

func (r *fakeRecorder) RecordPackage(_ string, res types.PackageResult) error {
	r.packages = append(r.packages, res.Package)
	return nil
}

func (r *fakeRecorder) RecordArtifacts(_ string, a []types.Artifact) error {
	r.artifacts = a
	return nil
}

func (r *fakeRecorder) FinishRun(_, status string, _ error) error {
	r.status = status
	return nil
}

// project writes a source tree with one directory per package and returns a
// config building it.
func project(t *testing.T, pkgs ...types.Package) types.Config {
	t.Helper()
	root := t.TempDir()
	src := filepath.Join(root, "src")
	for _, p := range pkgs {
		dir := filepath.Join(src, filepath.FromSlash(p.Path))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "deb_dist"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "setup.py"), []byte(p.Path), 0o644))
	}
	return types.Config{
		SourceRoot:      src,
		Workspace:       filepath.Join(root, "ws"),
		OutputDir:       filepath.Join(root, "out"),
		ArtifactPattern: "**/*.deb",
		SearchPathVar:   "PYTHONPATH",
		Order:           types.OrderTopological,
		Codegen:         []string{"bin/protogen"},
		VerifyStage:     true,
		Defaults: types.Recipe{
			Build:     types.Step{Command: []string{"python3", "setup.py", "bdist_deb"}},
			Artifacts: types.ArtifactsRequired,
		},
		Packages: pkgs,
	}
}

func outputNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestRunBuildsDependencyFirst(t *testing.T) {
	cfg := project(t,
		types.Package{Path: "b", DependsOn: []string{"a"}},
		types.Package{Path: "a"},
	)
	inv := &fakeBuilder{}
	var out bytes.Buffer
	o, err := New(cfg, Options{Invoker: inv, Out: &out})
	require.NoError(t, err)

	sum, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, sum.Order)
	assert.Equal(t, []string{"a", "b"}, inv.built())
	assert.Equal(t, "codegen", inv.calls[0].Step)
	assert.Equal(t, cfg.SourceRoot, inv.calls[0].Dir)

	assert.Equal(t, types.RunSucceeded, sum.Run.Status)
	assert.NotEmpty(t, sum.Run.SourceDigest)
	require.Len(t, sum.Packages, 2)
	assert.Empty(t, sum.Packages[0].SearchPath)
	assert.Equal(t, []string{filepath.Join(cfg.Workspace, "a")}, sum.Packages[1].SearchPath)

	assert.Equal(t, []string{"a.deb", "b.deb"}, outputNames(t, cfg.OutputDir))
	assert.Len(t, sum.Artifacts, 2)
	assert.Contains(t, out.String(), "2 artifact(s)")

	// The source tree is untouched.
	assert.NoFileExists(t, filepath.Join(cfg.SourceRoot, "a", builtMarker))
	assert.NoFileExists(t, filepath.Join(cfg.SourceRoot, "a", "deb_dist", "a.deb"))
}

func TestRunDeclaredOrderViolationFails(t *testing.T) {
	cfg := project(t,
		types.Package{Path: "b", DependsOn: []string{"a"}},
		types.Package{Path: "a"},
	)
	cfg.Order = types.OrderDeclared
	inv := &fakeBuilder{}
	o, err := New(cfg, Options{Invoker: inv})
	require.NoError(t, err)

	sum, err := o.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrBuildFailed)

	assert.Equal(t, []string{"b"}, inv.built())
	assert.Equal(t, types.RunFailed, sum.Run.Status)
	assert.Empty(t, sum.Artifacts)
	assert.Empty(t, outputNames(t, cfg.OutputDir))
}

func TestRunFailureStopsLaterPackages(t *testing.T) {
	cfg := project(t,
		types.Package{Path: "a"},
		types.Package{Path: "b"},
		types.Package{Path: "c"},
	)
	stale := filepath.Join(cfg.OutputDir, "old.deb")
	require.NoError(t, os.MkdirAll(cfg.OutputDir, 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	inv := &fakeBuilder{fail: map[string]bool{"b": true}}
	o, err := New(cfg, Options{Invoker: inv})
	require.NoError(t, err)

	sum, err := o.Run(context.Background())
	assert.ErrorIs(t, err, types.ErrBuildFailed)

	var be *types.BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "b", be.Package)

	assert.Equal(t, []string{"a", "b"}, inv.built())
	assert.Len(t, sum.Packages, 2)
	assert.NoFileExists(t, stale)
	assert.Empty(t, outputNames(t, cfg.OutputDir))
}

func TestRunIsRepeatable(t *testing.T) {
	cfg := project(t, types.Package{Path: "a"}, types.Package{Path: "sdk/python", DependsOn: []string{"a"}})
	o, err := New(cfg, Options{Invoker: &fakeBuilder{}})
	require.NoError(t, err)

	first, err := o.Run(context.Background())
	require.NoError(t, err)
	names := outputNames(t, cfg.OutputDir)

	second, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, names, outputNames(t, cfg.OutputDir))
	require.Len(t, second.Artifacts, len(first.Artifacts))
	for i := range first.Artifacts {
		assert.Equal(t, first.Artifacts[i].Name, second.Artifacts[i].Name)
		assert.Equal(t, first.Artifacts[i].Digest, second.Artifacts[i].Digest)
	}
	assert.Equal(t, first.Run.SourceDigest, second.Run.SourceDigest)
}

func TestRunCodegenFailure(t *testing.T) {
	cfg := project(t, types.Package{Path: "a"})
	inv := &fakeBuilder{codegen: errors.New("protoc missing")}
	o, err := New(cfg, Options{Invoker: inv})
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	assert.ErrorIs(t, err, types.ErrSetup)
	assert.ErrorIs(t, err, types.ErrCodegen)
	assert.Empty(t, inv.built())
	assert.NoDirExists(t, cfg.Workspace)
}

func TestRunSkipCodegen(t *testing.T) {
	cfg := project(t, types.Package{Path: "a"})
	inv := &fakeBuilder{codegen: errors.New("not called")}
	o, err := New(cfg, Options{Invoker: inv, SkipCodegen: true})
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, inv.built())
}

func TestRunOutputInsideSource(t *testing.T) {
	cfg := project(t, types.Package{Path: "a"})
	cfg.OutputDir = filepath.Join(cfg.SourceRoot, "build", "debs")
	require.NoError(t, os.MkdirAll(cfg.OutputDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.OutputDir, "stale.deb"), []byte("x"), 0o644))

	o, err := New(cfg, Options{Invoker: &fakeBuilder{}})
	require.NoError(t, err)

	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.deb"}, outputNames(t, cfg.OutputDir))
	assert.NoDirExists(t, filepath.Join(cfg.Workspace, "build", "debs"))
	assert.Len(t, sum.Artifacts, 1)
}

func TestRunDoesNotStageSourceArtifacts(t *testing.T) {
	cfg := project(t, types.Package{Path: "a"})
	old := filepath.Join(cfg.SourceRoot, "a", "deb_dist", "old.deb")
	require.NoError(t, os.WriteFile(old, []byte("old"), 0o644))

	inv := &fakeBuilder{silent: map[string]bool{"a": true}}
	o, err := New(cfg, Options{Invoker: inv})
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	assert.ErrorIs(t, err, types.ErrBuildFailed)
	assert.ErrorIs(t, err, types.ErrNoArtifacts)
	assert.NoFileExists(t, filepath.Join(cfg.Workspace, "a", "deb_dist", "old.deb"))
	assert.FileExists(t, old)
	assert.Empty(t, outputNames(t, cfg.OutputDir))

	sum, err := mustNew(t, cfg, &fakeBuilder{}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, sum.Artifacts, 1)
	assert.Equal(t, "a.deb", sum.Artifacts[0].Name)
	assert.Equal(t, []string{"a.deb"}, outputNames(t, cfg.OutputDir))
}

func mustNew(t *testing.T, cfg types.Config, inv driver.Invoker) *Orchestrator {
	t.Helper()
	o, err := New(cfg, Options{Invoker: inv})
	require.NoError(t, err)
	return o
}

func TestRunWorkspaceInsideSource(t *testing.T) {
	cfg := project(t, types.Package{Path: "a"})
	cfg.Workspace = filepath.Join(cfg.SourceRoot, "ws")
	o, err := New(cfg, Options{Invoker: &fakeBuilder{}})
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	assert.ErrorIs(t, err, types.ErrSetup)
	assert.ErrorIs(t, err, types.ErrWorkspaceInsideSource)
}

func TestRunRecordsHistory(t *testing.T) {
	cfg := project(t, types.Package{Path: "a"}, types.Package{Path: "b"})
	rec := &fakeRecorder{}
	o, err := New(cfg, Options{Invoker: &fakeBuilder{}, Recorder: rec})
	require.NoError(t, err)

	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", sum.Run.ID)
	assert.Equal(t, 1, rec.begun)
	assert.Equal(t, []string{"a", "b"}, rec.packages)
	assert.Len(t, rec.artifacts, 2)
	assert.Equal(t, types.RunSucceeded, rec.status)
	assert.Equal(t, sum.Run.SourceDigest, rec.source)
	assert.NotEmpty(t, rec.source)
}

func TestRunRecordsSetupFailure(t *testing.T) {
	cfg := project(t, types.Package{Path: "a"})
	l, err := ledger.Open(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	inv := &fakeBuilder{codegen: errors.New("protoc missing")}
	o, err := New(cfg, Options{Invoker: inv, Recorder: l})
	require.NoError(t, err)
	sum, err := o.Run(context.Background())
	assert.ErrorIs(t, err, types.ErrCodegen)
	require.NotEmpty(t, sum.Run.ID)

	run, err := l.Run(sum.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, run.Status)
	assert.Contains(t, run.Error, "protoc missing")
	assert.Empty(t, run.SourceDigest)
	results, err := l.PackageResults(sum.Run.ID)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunLedgerFailureIsNotFatal(t *testing.T) {
	cfg := project(t, types.Package{Path: "a"})
	rec := &fakeRecorder{failBegin: true}
	o, err := New(cfg, Options{Invoker: &fakeBuilder{}, Recorder: rec})
	require.NoError(t, err)

	sum, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sum.Run.ID)
	assert.Empty(t, rec.packages)
	assert.Empty(t, rec.status)
}

func TestRunWithLedger(t *testing.T) {
	cfg := project(t, types.Package{Path: "a"})
	l, err := ledger.Open(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	o, err := New(cfg, Options{Invoker: &fakeBuilder{}, Recorder: l})
	require.NoError(t, err)
	sum, err := o.Run(context.Background())
	require.NoError(t, err)

	run, err := l.Run(sum.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunSucceeded, run.Status)
	assert.Equal(t, sum.Run.SourceDigest, run.SourceDigest)
	artifacts, err := l.Artifacts(sum.Run.ID)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "a", artifacts[0].Package)
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := project(t, types.Package{Path: "a", DependsOn: []string{"b"}}, types.Package{Path: "b", DependsOn: []string{"a"}})

	_, err := New(cfg, Options{Invoker: &fakeBuilder{}})
	assert.ErrorIs(t, err, types.ErrDependencyCycle)
	assert.NotErrorIs(t, err, types.ErrSetup)

	cfg.Order = "random"
	_, err = New(cfg, Options{Invoker: &fakeBuilder{}})
	assert.ErrorIs(t, err, types.ErrUnknownOrder)

	_, err = New(project(t, types.Package{Path: "a"}), Options{})
	assert.Error(t, err)
}
