package types

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// Build order modes.
const (
	OrderTopological = "topological" // computed from the dependency table
	OrderDeclared    = "declared"    // the sequence packages are listed in
)

// Defaults applied by the config loader when a key is unset.
const (
	DefaultArtifactPattern = "**/*.deb"
	DefaultSearchPathVar   = "PYTHONPATH"
	DefaultOutputDir       = "build/debs"
	DefaultOrder           = OrderTopological
)

// Config holds everything one orchestrator run needs.
type Config struct {
	SourceRoot      string            `mapstructure:"source_root" yaml:"source_root,omitempty"`
	Workspace       string            `mapstructure:"workspace" yaml:"workspace,omitempty"`
	OutputDir       string            `mapstructure:"output_dir" yaml:"output_dir"`
	DataDir         string            `mapstructure:"data_dir" yaml:"data_dir,omitempty"`
	ArtifactPattern string            `mapstructure:"artifact_pattern" yaml:"artifact_pattern"`
	SearchPathVar   string            `mapstructure:"search_path_var" yaml:"search_path_var"`
	Order           string            `mapstructure:"order" yaml:"order"`
	EnvFile         string            `mapstructure:"env_file" yaml:"env_file,omitempty"`
	Env             map[string]string `mapstructure:"env" yaml:"env,omitempty"`
	Codegen         []string          `mapstructure:"codegen" yaml:"codegen,omitempty,flow"`
	Exclude         []string          `mapstructure:"exclude" yaml:"exclude,omitempty"`
	VerifyStage     bool              `mapstructure:"verify_stage" yaml:"verify_stage"`
	Ledger          bool              `mapstructure:"ledger" yaml:"ledger"`
	Defaults        Recipe            `mapstructure:"defaults" yaml:"defaults"`
	Packages        []Package         `mapstructure:"packages" yaml:"packages"`
}

// Validate checks that the Config is well-formed. It does not inspect the
// dependency table beyond requiring at least one package; see table.New.
func (c Config) Validate() error {
	if c.SourceRoot == "" {
		return ErrSourceRootEmpty
	}
	if c.Workspace == "" {
		return ErrWorkspaceEmpty
	}
	if c.OutputDir == "" {
		return ErrOutputDirEmpty
	}
	if c.SearchPathVar == "" {
		return ErrSearchPathVarEmpty
	}
	if c.ArtifactPattern == "" || !doublestar.ValidatePattern(c.ArtifactPattern) {
		return fmt.Errorf("%w: %q", ErrInvalidArtifactGlob, c.ArtifactPattern)
	}
	for _, ex := range c.Exclude {
		if !doublestar.ValidatePattern(ex) {
			return fmt.Errorf("%w: exclude %q", ErrInvalidArtifactGlob, ex)
		}
	}
	switch c.Order {
	case OrderTopological, OrderDeclared:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOrder, c.Order)
	}
	if len(c.Packages) == 0 {
		return ErrNoPackages
	}
	return nil
}
