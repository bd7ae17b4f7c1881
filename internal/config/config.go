// Package config loads the orchestrator configuration.
//
// Scalar settings come from viper: built-in defaults, then stagehand.yaml,
// then STAGEHAND_* environment variables. The dependency table, the default
// recipe and the invocation environment are decoded from the same file with
// yaml.v3, which keeps map keys such as variable names case-sensitive. When
// the file declares no packages the built-in table is used.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/stagehand/internal/paths"
	"github.com/mesh-intelligence/stagehand/internal/table"
	"github.com/mesh-intelligence/stagehand/pkg/types"
)

const (
	configFileName = "stagehand"
	configFileType = "yaml"

	// FileName is the configuration file searched for in the source root
	// and the configuration directory.
	FileName = configFileName + "." + configFileType

	envPrefix = "STAGEHAND"
)

// Config keys read through viper.
const (
	keySourceRoot      = "source_root"
	keyWorkspace       = "workspace"
	keyOutputDir       = "output_dir"
	keyDataDir         = "data_dir"
	keyArtifactPattern = "artifact_pattern"
	keySearchPathVar   = "search_path_var"
	keyOrder           = "order"
	keyEnvFile         = "env_file"
	keyCodegen         = "codegen"
	keyExclude         = "exclude"
	keyVerifyStage     = "verify_stage"
	keyLedger          = "ledger"
)

// Overrides carries command-line values, which win over the file and the
// environment. Empty fields are ignored.
type Overrides struct {
	ConfigFile string
	SourceRoot string
	Workspace  string
	OutputDir  string
	DataDir    string
	Order      string
}

// tableFile is the part of the file decoded case-sensitively.
type tableFile struct {
	Env      map[string]string `yaml:"env"`
	Defaults *types.Recipe     `yaml:"defaults"`
	Packages []types.Package   `yaml:"packages"`
}

// Load resolves the configuration for one invocation and returns it with
// every directory absolute. It returns the path of the file read, or "" when
// none was found.
func Load(o Overrides) (types.Config, string, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetDefault(keyOutputDir, types.DefaultOutputDir)
	v.SetDefault(keyArtifactPattern, types.DefaultArtifactPattern)
	v.SetDefault(keySearchPathVar, types.DefaultSearchPathVar)
	v.SetDefault(keyOrder, types.DefaultOrder)
	v.SetDefault(keyVerifyStage, false)
	v.SetDefault(keyLedger, true)

	// Directory keys that paths resolves with its own precedence are not
	// bound to the environment here.
	for _, k := range []string{keySourceRoot, keyOutputDir, keyArtifactPattern, keySearchPathVar, keyOrder, keyEnvFile, keyVerifyStage, keyLedger} {
		if err := v.BindEnv(k); err != nil {
			return types.Config{}, "", err
		}
	}

	sourceRoot := o.SourceRoot
	if sourceRoot == "" {
		sourceRoot = v.GetString(keySourceRoot)
	}
	if sourceRoot == "" {
		sourceRoot = "."
	}
	sourceRoot, err := filepath.Abs(sourceRoot)
	if err != nil {
		return types.Config{}, "", err
	}

	if o.ConfigFile != "" {
		if _, err := os.Stat(o.ConfigFile); err != nil {
			return types.Config{}, "", fmt.Errorf("read config: %w", err)
		}
		v.SetConfigFile(o.ConfigFile)
	} else {
		configDir, err := paths.ResolveConfigDir("")
		if err != nil {
			return types.Config{}, "", err
		}
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(sourceRoot)
		v.AddConfigPath(configDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return types.Config{}, "", fmt.Errorf("read config: %w", err)
		}
	}
	used := v.ConfigFileUsed()
	if _, err := os.Stat(used); err != nil {
		used = ""
	}

	// A source root set in the file is relative to the file. The flag and
	// the environment win over it.
	if o.SourceRoot == "" && os.Getenv(envPrefix+"_SOURCE_ROOT") == "" && used != "" && v.InConfig(keySourceRoot) {
		sourceRoot = relTo(filepath.Dir(used), v.GetString(keySourceRoot))
	}

	cfg := types.Config{
		SourceRoot:      sourceRoot,
		ArtifactPattern: v.GetString(keyArtifactPattern),
		SearchPathVar:   v.GetString(keySearchPathVar),
		Order:           v.GetString(keyOrder),
		EnvFile:         v.GetString(keyEnvFile),
		Codegen:         v.GetStringSlice(keyCodegen),
		Exclude:         v.GetStringSlice(keyExclude),
		VerifyStage:     v.GetBool(keyVerifyStage),
		Ledger:          v.GetBool(keyLedger),
	}
	if o.Order != "" {
		cfg.Order = o.Order
	}

	if o.OutputDir != "" {
		if cfg.OutputDir, err = filepath.Abs(o.OutputDir); err != nil {
			return types.Config{}, "", err
		}
	} else {
		cfg.OutputDir = relTo(sourceRoot, v.GetString(keyOutputDir))
	}

	if cfg.Workspace, err = paths.ResolveWorkspace(o.Workspace, fileValue(v, used, keyWorkspace)); err != nil {
		return types.Config{}, "", err
	}
	if cfg.DataDir, err = paths.ResolveDataDir(o.DataDir, fileValue(v, used, keyDataDir)); err != nil {
		return types.Config{}, "", err
	}

	tf, err := readTable(used)
	if err != nil {
		return types.Config{}, "", err
	}
	cfg.Env = tf.Env
	cfg.Packages = tf.Packages
	cfg.Defaults = table.DefaultRecipe()
	if tf.Defaults != nil {
		cfg.Defaults = tf.Defaults.WithDefaults(table.DefaultRecipe())
	}
	if len(cfg.Packages) == 0 {
		cfg.Packages = table.DefaultPackages()
		if !v.IsSet(keyCodegen) {
			cfg.Codegen = table.DefaultCodegen
		}
	}

	if cfg.EnvFile != "" {
		base := sourceRoot
		if used != "" {
			base = filepath.Dir(used)
		}
		cfg.EnvFile = relTo(base, cfg.EnvFile)
		if cfg.Env, err = mergeEnvFile(cfg.EnvFile, cfg.Env); err != nil {
			return types.Config{}, "", err
		}
	}

	return cfg, used, nil
}

// fileValue returns key from the configuration file, made absolute relative
// to the file's directory. Environment and defaults are not consulted.
func fileValue(v *viper.Viper, used, key string) string {
	if used == "" || !v.InConfig(key) {
		return ""
	}
	return relTo(filepath.Dir(used), v.GetString(key))
}

// readTable decodes the case-sensitive part of the configuration file.
func readTable(path string) (tableFile, error) {
	var tf tableFile
	if path == "" {
		return tf, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return tf, err
	}
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return tf, fmt.Errorf("parse %s: %w", path, err)
	}
	return tf, nil
}

// mergeEnvFile returns the variables of a dotenv file overlaid with env.
func mergeEnvFile(path string, env map[string]string) (map[string]string, error) {
	fromFile, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	maps.Copy(fromFile, env)
	return fromFile, nil
}

// relTo returns p as an absolute path, interpreting a relative p against base.
func relTo(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
