package report

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/mesh-intelligence/stagehand/internal/collect"
	"github.com/mesh-intelligence/stagehand/internal/paint"
	"github.com/mesh-intelligence/stagehand/pkg/types"
)

// Inspector reads the metadata embedded in one artifact format.
type Inspector func(path string) (types.Metadata, error)

// Report is the outcome of inspecting one artifact.
type Report struct {
	Artifact types.Artifact
	Metadata *types.Metadata // nil for formats without an inspector
	Err      error
}

// Reporter prints artifact summaries.
type Reporter struct {
	inspectors map[string]Inspector // keyed by file extension
}

// New returns a Reporter that reads .deb files.
func New() *Reporter {
	return &Reporter{inspectors: map[string]Inspector{".deb": ReadDeb}}
}

// Register sets the inspector used for files with extension ext.
func (r *Reporter) Register(ext string, fn Inspector) {
	r.inspectors[strings.ToLower(ext)] = fn
}

// Report inspects every artifact in outputDir matching pattern and prints a
// summary to w. It returns one report per artifact and the number of
// artifacts that could not be read.
func (r *Reporter) Report(w io.Writer, outputDir, pattern string) ([]Report, int) {
	artifacts, err := collect.List(outputDir, pattern)
	if err != nil {
		slog.Warn("cannot list artifacts", "dir", outputDir, "error", err)
		fmt.Fprintf(w, "%s %v\n", paint.For(w).Sprint(paint.Danger, "error:"), err)
		return nil, 1
	}
	return r.ReportArtifacts(w, artifacts)
}

// ReportArtifacts inspects and prints the given artifacts.
func (r *Reporter) ReportArtifacts(w io.Writer, artifacts []types.Artifact) ([]Report, int) {
	p := paint.For(w)
	reports := make([]Report, 0, len(artifacts))
	failures := 0
	for _, a := range artifacts {
		rep := r.inspect(a)
		if rep.Err != nil {
			failures++
			slog.Warn("cannot read artifact", "artifact", a.Name, "error", rep.Err)
		}
		printReport(w, p, rep)
		reports = append(reports, rep)
	}

	fmt.Fprintf(w, "\n%d artifact(s)", len(reports))
	if failures > 0 {
		fmt.Fprintf(w, ", %s", p.Sprintf(paint.Warn, "%d unreadable", failures))
	}
	fmt.Fprintln(w)
	return reports, failures
}

func (r *Reporter) inspect(a types.Artifact) Report {
	rep := Report{Artifact: a}
	fn, ok := r.inspectors[strings.ToLower(filepath.Ext(a.Name))]
	if !ok {
		return rep
	}
	md, err := fn(a.Path)
	if err != nil {
		rep.Err = err
		return rep
	}
	rep.Metadata = &md
	return rep
}

func printReport(w io.Writer, p paint.Painter, rep Report) {
	a := rep.Artifact
	fmt.Fprintf(w, "%s  %s  %s\n", p.Sprint(paint.Bold, a.Name), humanSize(a.Size), a.Digest)

	switch {
	case rep.Err != nil:
		fmt.Fprintf(w, "  %s %v\n", p.Sprint(paint.Danger, "unreadable:"), rep.Err)
	case rep.Metadata != nil:
		md := rep.Metadata
		fmt.Fprintf(w, "  package:      %s\n", md.Name)
		fmt.Fprintf(w, "  version:      %s\n", md.Version)
		fmt.Fprintf(w, "  architecture: %s\n", md.Architecture)
		if md.Maintainer != "" {
			fmt.Fprintf(w, "  maintainer:   %s\n", md.Maintainer)
		}
		if md.Description != "" {
			fmt.Fprintf(w, "  description:  %s\n", summary(md.Description))
		}
	}
}

// summary shortens a description synopsis to at most 72 characters.
func summary(desc string) string {
	if utf8.RuneCountInString(desc) <= 72 {
		return desc
	}
	return string([]rune(desc)[:69]) + "..."
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
