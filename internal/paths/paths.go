// Package paths resolves the configuration, data and workspace directories.
//
// Each directory follows the same precedence chain: command-line flag, then
// the value from the configuration file where one exists, then an environment
// variable, then an XDG base directory default.
package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// AppName names the per-application subdirectory of each XDG base directory.
const AppName = "stagehand"

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "STAGEHAND_CONFIG_DIR"
	EnvDataDir   = "STAGEHAND_DATA_DIR"
	EnvWorkspace = "STAGEHAND_WORKSPACE"
)

// DefaultConfigDir returns $XDG_CONFIG_HOME/stagehand, or the platform
// equivalent.
func DefaultConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DefaultDataDir returns $XDG_DATA_HOME/stagehand, or the platform
// equivalent. The run ledger lives here.
func DefaultDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// DefaultWorkspace returns $XDG_CACHE_HOME/stagehand/workspace. The
// workspace is disposable, so it belongs with cached data.
func DefaultWorkspace() string {
	return filepath.Join(xdg.CacheHome, AppName, "workspace")
}

// ResolveConfigDir returns the configuration directory: flag >
// STAGEHAND_CONFIG_DIR > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	return resolve(flag, "", EnvConfigDir, DefaultConfigDir())
}

// ResolveDataDir returns the data directory: flag > configValue >
// STAGEHAND_DATA_DIR > DefaultDataDir().
func ResolveDataDir(flag, configValue string) (string, error) {
	return resolve(flag, configValue, EnvDataDir, DefaultDataDir())
}

// ResolveWorkspace returns the workspace directory: flag > configValue >
// STAGEHAND_WORKSPACE > DefaultWorkspace().
func ResolveWorkspace(flag, configValue string) (string, error) {
	return resolve(flag, configValue, EnvWorkspace, DefaultWorkspace())
}

// resolve returns the first non-empty candidate as an absolute path.
func resolve(flag, configValue, envKey, fallback string) (string, error) {
	for _, v := range []string{flag, configValue, os.Getenv(envKey)} {
		if v != "" {
			return filepath.Abs(v)
		}
	}
	return filepath.Abs(fallback)
}
