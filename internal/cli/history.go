package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/stagehand/internal/ledger"
	"github.com/mesh-intelligence/stagehand/internal/paint"
	"github.com/mesh-intelligence/stagehand/pkg/types"
)

// runView is the JSON form of a recorded run.
type runView struct {
	ID           string           `json:"id"`
	Status       string           `json:"status"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   *time.Time       `json:"finished_at,omitempty"`
	SourceDigest string           `json:"source_digest,omitempty"`
	Workspace    string           `json:"workspace"`
	OutputDir    string           `json:"output_dir"`
	Error        string           `json:"error,omitempty"`
	Packages     []packageView    `json:"packages,omitempty"`
	Artifacts    []types.Artifact `json:"artifacts,omitempty"`
}

type packageView struct {
	Package   string   `json:"package"`
	State     string   `json:"state"`
	Path      []string `json:"search_path,omitempty"`
	Artifacts int      `json:"artifacts"`
	ExitCode  int      `json:"exit_code,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func newRunView(r types.Run) runView {
	v := runView{
		ID:           r.ID,
		Status:       r.Status,
		StartedAt:    r.StartedAt,
		SourceDigest: r.SourceDigest.String(),
		Workspace:    r.Workspace,
		OutputDir:    r.OutputDir,
		Error:        r.Error,
	}
	if !r.FinishedAt.IsZero() {
		v.FinishedAt = &r.FinishedAt
	}
	return v
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or show one run in detail",
		Long: `History reads the run ledger. Without arguments it lists recent runs, newest
first. With a run ID, or a unique prefix of one, it shows that run's package
outcomes and collected artifacts.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig("")
			if err != nil {
				return err
			}
			l, err := ledger.Open(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer l.Close()

			if len(args) == 1 {
				return showRun(cmd.OutOrStdout(), l, args[0])
			}
			return listRuns(cmd.OutOrStdout(), l, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list (0 = all)")
	return cmd
}

func listRuns(w io.Writer, l *ledger.Ledger, limit int) error {
	runs, err := l.Runs(limit)
	if err != nil {
		return err
	}

	if flags.jsonMode {
		views := make([]runView, 0, len(runs))
		for _, r := range runs {
			views = append(views, newRunView(r))
		}
		return writeJSON(w, views)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTATUS\tSTARTED\tDURATION\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status, r.StartedAt.Local().Format(time.DateTime), duration(r), firstLine(r.Error))
	}
	return tw.Flush()
}

func showRun(w io.Writer, l *ledger.Ledger, id string) error {
	run, err := l.Run(id)
	if err != nil {
		return err
	}
	results, err := l.PackageResults(run.ID)
	if err != nil {
		return err
	}
	artifacts, err := l.Artifacts(run.ID)
	if err != nil {
		return err
	}

	if flags.jsonMode {
		v := newRunView(run)
		for _, res := range results {
			pv := packageView{
				Package:   res.Package,
				State:     string(res.State),
				Path:      res.SearchPath,
				Artifacts: len(res.Artifacts),
				ExitCode:  res.ExitCode,
			}
			if res.Err != nil {
				pv.Error = res.Err.Error()
			}
			v.Packages = append(v.Packages, pv)
		}
		v.Artifacts = artifacts
		return writeJSON(w, v)
	}

	fmt.Fprintf(w, "run       %s\n", run.ID)
	fmt.Fprintf(w, "status    %s\n", statusText(paint.For(w), run.Status))
	fmt.Fprintf(w, "started   %s\n", run.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "duration  %s\n", duration(run))
	if run.SourceDigest != "" {
		fmt.Fprintf(w, "source    %s\n", run.SourceDigest)
	}
	fmt.Fprintf(w, "workspace %s\n", run.Workspace)
	fmt.Fprintf(w, "output    %s\n", run.OutputDir)
	if run.Error != "" {
		fmt.Fprintf(w, "error     %s\n", run.Error)
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PACKAGE\tSTATE\tARTIFACTS\tDURATION")
	for _, res := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", res.Package, string(res.State), len(res.Artifacts),
			res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(artifacts) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ARTIFACT\tPACKAGE\tSIZE\tDIGEST")
		for _, a := range artifacts {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", a.Name, a.Package, a.Size, a.Digest)
		}
		return tw.Flush()
	}
	return nil
}

func statusText(p paint.Painter, s string) string {
	switch s {
	case types.RunSucceeded:
		return p.Sprint(paint.Success, s)
	case types.RunFailed:
		return p.Sprint(paint.Danger, s)
	default:
		return s
	}
}

func duration(r types.Run) string {
	if r.FinishedAt.IsZero() {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
