package types

import (
	"fmt"
	"path"
	"strings"
)

// Artifact expectations for a recipe.
const (
	ArtifactsRequired = "required" // zero artifacts fails the package
	ArtifactsOptional = "optional" // zero artifacts is a valid outcome
)

// Step is one command of a recipe, run in the package's workspace directory.
type Step struct {
	Command []string          `mapstructure:"command" yaml:"command,flow"`
	Env     map[string]string `mapstructure:"env" yaml:"env,omitempty"`
}

// IsZero reports whether the step has no command.
func (s Step) IsZero() bool {
	return len(s.Command) == 0
}

func (s Step) String() string {
	return strings.Join(s.Command, " ")
}

// Recipe is the declarative build procedure of a package. Exceptions to the
// common case (stale state to clear, a command that must run twice) are data
// here rather than branches in the driver.
type Recipe struct {
	Clean     []string `mapstructure:"clean" yaml:"clean,omitempty,flow"`
	Pre       []Step   `mapstructure:"pre" yaml:"pre,omitempty"`
	Build     Step     `mapstructure:"build" yaml:"build,omitempty"`
	Repeat    int      `mapstructure:"repeat" yaml:"repeat,omitempty"`
	Post      []Step   `mapstructure:"post" yaml:"post,omitempty"`
	Artifacts string   `mapstructure:"artifacts" yaml:"artifacts,omitempty"`
}

// WithDefaults returns the recipe with every unset field taken from d. A nil
// list inherits the default; an explicitly empty list does not.
func (r Recipe) WithDefaults(d Recipe) Recipe {
	out := r
	if out.Clean == nil {
		out.Clean = d.Clean
	}
	if out.Pre == nil {
		out.Pre = d.Pre
	}
	if out.Build.IsZero() {
		out.Build = d.Build
	}
	if out.Repeat == 0 {
		out.Repeat = d.Repeat
	}
	if out.Repeat == 0 {
		out.Repeat = 1
	}
	if out.Post == nil {
		out.Post = d.Post
	}
	if out.Artifacts == "" {
		out.Artifacts = d.Artifacts
	}
	if out.Artifacts == "" {
		out.Artifacts = ArtifactsOptional
	}
	return out
}

// Validate checks a recipe after defaults have been applied.
func (r Recipe) Validate() error {
	if r.Build.IsZero() {
		return ErrEmptyBuildCommand
	}
	if r.Repeat < 0 {
		return ErrInvalidRepeat
	}
	switch r.Artifacts {
	case ArtifactsRequired, ArtifactsOptional:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownExpectation, r.Artifacts)
	}
	for _, p := range r.Clean {
		if err := ValidateRelPath(p); err != nil {
			return fmt.Errorf("clean %q: %w", p, err)
		}
	}
	return nil
}

// Package is one buildable unit of the project.
type Package struct {
	Path      string   `mapstructure:"path" yaml:"path"`
	DependsOn []string `mapstructure:"depends_on" yaml:"depends_on,omitempty,flow"`
	Recipe    `mapstructure:",squash" yaml:",inline"`
}

// ValidateRelPath reports whether p is a clean, relative, slash-separated
// path that stays inside its root.
func ValidateRelPath(p string) error {
	if p == "" {
		return ErrEmptyPackagePath
	}
	if path.IsAbs(p) || strings.Contains(p, `\`) {
		return ErrInvalidPackagePath
	}
	clean := path.Clean(p)
	if clean != p || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return ErrInvalidPackagePath
	}
	return nil
}

// Contains reports whether rel is the package directory itself or a path
// nested inside it.
func (p Package) Contains(rel string) bool {
	return rel == p.Path || strings.HasPrefix(rel, p.Path+"/")
}
