package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/stagehand/internal/config"
	"github.com/mesh-intelligence/stagehand/internal/table"
	"github.com/mesh-intelligence/stagehand/pkg/types"
)

// errConfigExists is returned when init would overwrite a config file.
var errConfigExists = errors.New("config file already exists (use --force to overwrite)")

const configHeader = `# stagehand configuration
#
# packages lists every package in the project with the package paths it needs
# on its search path. Fields of a package's recipe that are left out are taken
# from defaults.

`

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a stagehand.yaml with the built-in package table",
		Long: `Init writes a configuration file holding the built-in dependency table and
default recipe, ready to be edited. The file is written to --config when given,
otherwise to stagehand.yaml in the source root.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	path := flags.configFile
	if path == "" {
		root := flags.sourceRoot
		if root == "" {
			root = "."
		}
		path = filepath.Join(root, config.FileName)
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s: %w", path, errConfigExists)
	}

	data, err := defaultConfigYAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

// defaultConfigYAML renders the built-in configuration.
func defaultConfigYAML() ([]byte, error) {
	cfg := types.Config{
		OutputDir:       types.DefaultOutputDir,
		ArtifactPattern: types.DefaultArtifactPattern,
		SearchPathVar:   types.DefaultSearchPathVar,
		Order:           types.DefaultOrder,
		Codegen:         table.DefaultCodegen,
		Ledger:          true,
		Defaults:        table.DefaultRecipe(),
		Packages:        table.DefaultPackages(),
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&cfg); err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
