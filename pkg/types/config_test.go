package types

import (
	"errors"
	"testing"
)

func validConfig() Config {
	return Config{
		SourceRoot:      "/src",
		Workspace:       "/tmp/ws",
		OutputDir:       "/src/build/debs",
		ArtifactPattern: DefaultArtifactPattern,
		SearchPathVar:   DefaultSearchPathVar,
		Order:           OrderTopological,
		Packages:        []Package{{Path: "signing"}},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: nil,
		},
		{
			name:    "empty source root",
			mutate:  func(c *Config) { c.SourceRoot = "" },
			wantErr: ErrSourceRootEmpty,
		},
		{
			name:    "empty workspace",
			mutate:  func(c *Config) { c.Workspace = "" },
			wantErr: ErrWorkspaceEmpty,
		},
		{
			name:    "empty output dir",
			mutate:  func(c *Config) { c.OutputDir = "" },
			wantErr: ErrOutputDirEmpty,
		},
		{
			name:    "empty search path variable",
			mutate:  func(c *Config) { c.SearchPathVar = "" },
			wantErr: ErrSearchPathVarEmpty,
		},
		{
			name:    "malformed artifact pattern",
			mutate:  func(c *Config) { c.ArtifactPattern = "**/[*.deb" },
			wantErr: ErrInvalidArtifactGlob,
		},
		{
			name:    "malformed exclude",
			mutate:  func(c *Config) { c.Exclude = []string{"{a,b"} },
			wantErr: ErrInvalidArtifactGlob,
		},
		{
			name:    "unknown order",
			mutate:  func(c *Config) { c.Order = "random" },
			wantErr: ErrUnknownOrder,
		},
		{
			name:    "declared order is accepted",
			mutate:  func(c *Config) { c.Order = OrderDeclared },
			wantErr: nil,
		},
		{
			name:    "no packages",
			mutate:  func(c *Config) { c.Packages = nil },
			wantErr: ErrNoPackages,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}
