package cli

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/stagehand/internal/report"
)

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Summarise the artifacts in the output directory",
		Long: `Report prints the name, size, digest and embedded metadata of every artifact
in the output directory. Unreadable artifacts are listed but do not fail the
command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig("")
			if err != nil {
				return err
			}
			report.New().Report(cmd.OutOrStdout(), cfg.OutputDir, cfg.ArtifactPattern)
			return nil
		},
	}
}
