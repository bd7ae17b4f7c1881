package ledger

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/stagehand/pkg/types"
)

func openTest(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

// clock returns a now function advancing one second per call.
func clock() func() time.Time {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func TestOpenCreatesDatabase(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	l, err := Open(dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, FileName))
	assert.Equal(t, filepath.Join(dir, FileName), l.Path())
	require.NoError(t, l.Close())

	// Reopening keeps existing history.
	l, err = Open(dir)
	require.NoError(t, err)
	defer l.Close()
	runs, err := l.Runs(0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunLifecycle(t *testing.T) {
	l := openTest(t)
	l.now = clock()

	src := digest.FromString("source tree")
	run, err := l.BeginRun("/tmp/ws", "/out", src)
	require.NoError(t, err)
	assert.Equal(t, types.RunRunning, run.Status)
	assert.Len(t, run.ID, 36)

	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, l.RecordPackage(run.ID, types.PackageResult{
		Package:    "signing",
		State:      types.StateSucceeded,
		Artifacts:  []string{"/tmp/ws/signing/a.deb"},
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
	}))
	require.NoError(t, l.RecordPackage(run.ID, types.PackageResult{
		Package:    "cli",
		State:      types.StateFailed,
		SearchPath: []string{"/tmp/ws/signing", "/tmp/ws/sdk/python"},
		ExitCode:   2,
		Err:        errors.New("build failed"),
		StartedAt:  start.Add(time.Second),
		FinishedAt: start.Add(2 * time.Second),
	}))
	require.NoError(t, l.RecordArtifacts(run.ID, []types.Artifact{{
		Name:    "a.deb",
		Package: "signing",
		Source:  "/tmp/ws/signing/a.deb",
		Path:    "/out/a.deb",
		Size:    10,
		Digest:  digest.FromString("a"),
	}}))
	require.NoError(t, l.FinishRun(run.ID, types.RunFailed, errors.New("package cli failed")))

	got, err := l.Run(run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, got.Status)
	assert.Equal(t, src, got.SourceDigest)
	assert.Equal(t, "package cli failed", got.Error)
	assert.True(t, got.FinishedAt.After(got.StartedAt))

	results, err := l.PackageResults(run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "signing", results[0].Package)
	assert.Len(t, results[0].Artifacts, 1)
	assert.Nil(t, results[0].SearchPath)
	assert.Equal(t, "cli", results[1].Package)
	assert.Equal(t, []string{"/tmp/ws/signing", "/tmp/ws/sdk/python"}, results[1].SearchPath)
	assert.Equal(t, 2, results[1].ExitCode)
	assert.EqualError(t, results[1].Err, "build failed")
	assert.Equal(t, start.Add(2*time.Second), results[1].FinishedAt)

	artifacts, err := l.Artifacts(run.ID)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "signing", artifacts[0].Package)
	assert.Equal(t, digest.FromString("a"), artifacts[0].Digest)
}

func TestRunsNewestFirst(t *testing.T) {
	l := openTest(t)
	l.now = clock()

	var ids []string
	for range 3 {
		run, err := l.BeginRun("/ws", "/out", "")
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	runs, err := l.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[0], runs[2].ID)
	assert.Empty(t, runs[0].SourceDigest)
	assert.True(t, runs[0].FinishedAt.IsZero())

	runs, err = l.Runs(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunsOrderAcrossFractionalSeconds(t *testing.T) {
	l := openTest(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	times := []time.Time{base, base.Add(100 * time.Millisecond), base.Add(time.Second)}

	var ids []string
	for _, at := range times {
		l.now = func() time.Time { return at }
		run, err := l.BeginRun("/ws", "/out", "")
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	runs, err := l.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{runs[0].ID, runs[1].ID, runs[2].ID})
	assert.True(t, times[1].Equal(runs[1].StartedAt))
}

func TestRecordSource(t *testing.T) {
	l := openTest(t)
	run, err := l.BeginRun("/ws", "/out", "")
	require.NoError(t, err)

	src := digest.FromString("tree")
	require.NoError(t, l.RecordSource(run.ID, src))
	got, err := l.Run(run.ID)
	require.NoError(t, err)
	assert.Equal(t, src, got.SourceDigest)

	assert.ErrorIs(t, l.RecordSource("missing", src), ErrRunNotFound)
}

func TestRunByPrefix(t *testing.T) {
	l := openTest(t)
	run, err := l.BeginRun("/ws", "/out", "")
	require.NoError(t, err)

	got, err := l.Run(run.ID[:13])
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)

	_, err = l.Run("ffffffff-nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestFinishUnknownRun(t *testing.T) {
	l := openTest(t)
	err := l.FinishRun("missing", types.RunSucceeded, nil)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestClosedLedger(t *testing.T) {
	l, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, l.Close())

	assert.ErrorIs(t, l.Close(), ErrClosed)
	_, err = l.BeginRun("/ws", "/out", "")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = l.Runs(1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, l.RecordArtifacts("x", nil), ErrClosed)
}
